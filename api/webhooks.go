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

	"github.com/gin-gonic/gin"

	"github.com/paymux/paymux/api/middleware"
	"github.com/paymux/paymux/internal/apierror"
)

// ReceiveWebhook accepts one provider callback. The signature middleware has
// already authenticated the raw body by the time this runs. A 200 here means
// the event is durably stored; the provider must not redeliver.
//
// Responses:
// - 400 Bad Request: Unknown provider, non-JSON body, or missing identity fields.
// - 200 OK: Stored (first delivery and duplicates look the same).
func (a Api) ReceiveWebhook(c *gin.Context) {
	provider, passed := c.Params.Get("provider")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider is required. pass provider in the route /webhooks/:provider"})
		return
	}

	rawBody, exists := c.Get(middleware.RawBodyKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request body was not captured"})
		return
	}

	resp, err := a.paymux.ReceiveInboxEvent(c.Request.Context(), provider, rawBody.([]byte), c.Request.Header)
	if err != nil {
		message := err.Error()
		if apiErr, ok := err.(apierror.APIError); ok {
			message = apiErr.Message
		}
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       resp.ID,
		"provider": resp.Provider,
		"event_id": resp.EventID,
		"status":   resp.Status,
	})
}
