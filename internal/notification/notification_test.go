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

package notification

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/paymux/paymux/config"
)

func TestSlackNotification(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "postgres://localhost:5432/paymux"},
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
		Notification: config.Notification{
			Slack: config.SlackWebhook{WebhookUrl: "https://hooks.slack.com/services/T000/B000/XXX"},
		},
	})

	var posted string
	httpmock.RegisterResponder("POST", "https://hooks.slack.com/services/T000/B000/XXX",
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			posted = string(body)
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"ok": "true"})
		})

	SlackNotification(errors.New("inbox event 42 exhausted its retry budget"))

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Contains(t, posted, "inbox event 42 exhausted its retry budget")
	assert.Contains(t, posted, "Error From Paymux")
}
