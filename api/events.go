/*
Copyright 2024 Paymux Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/paymux/paymux/api/model"
	"github.com/paymux/paymux/internal/apierror"
)

// GetEvent returns one stored inbox event by its row id.
func (a Api) GetEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}

	resp, err := a.paymux.GetInboxEvent(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetAllEvents lists stored events, newest first, filtered by the query
// string.
func (a Api) GetAllEvents(c *gin.Context) {
	var query model2.ListEvents
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := query.ValidateListEvents(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.paymux.GetInboxEvents(c.Request.Context(), query.ToFilter())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RetryEvent moves a failed or ignored event back into the pipeline.
//
// Responses:
// - 200 OK: Event is queued again (or already pending).
// - 404 Not Found: No such event.
// - 409 Conflict: Event is processing or already processed.
func (a Api) RetryEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}

	resp, err := a.paymux.RetryInboxEvent(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SweepEvents triggers one sweep immediately instead of waiting for the next
// scheduled tick.
func (a Api) SweepEvents(c *gin.Context) {
	swept, err := a.paymux.SweepInboxEvents(c.Request.Context())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"swept": swept})
}

func eventID(c *gin.Context) (int64, bool) {
	raw, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a number"})
		return 0, false
	}
	return id, true
}
