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
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/paymux/paymux"
	"github.com/paymux/paymux/api/middleware"
	"github.com/paymux/paymux/config"
	"github.com/paymux/paymux/database"
	"github.com/paymux/paymux/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	err := json.NewDecoder(resp.Body).Decode(&s.Response)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func setupRouter(cnf *config.Configuration) (*gin.Engine, sqlmock.Sqlmock, error) {
	if cnf == nil {
		cnf = &config.Configuration{}
	}
	if cnf.Redis.Dns == "" {
		cnf.Redis.Dns = "localhost:6379"
	}
	if cnf.DataSource.Dns == "" {
		cnf.DataSource.Dns = "postgres://postgres:@localhost:5432/paymux?sslmode=disable"
	}
	config.MockConfig(cnf)

	db, mock, err := sqlmock.New()
	if err != nil {
		return nil, nil, err
	}
	newPaymux, err := paymux.NewPaymux(&database.Datasource{Conn: db})
	if err != nil {
		return nil, nil, err
	}
	router := NewAPI(newPaymux).Router()

	return router, mock, nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestReceiveWebhook(t *testing.T) {
	router, mock, err := setupRouter(nil)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	now := time.Now()
	mock.ExpectQuery("INSERT INTO paymux.inbox_events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "received_at", "updated_at"}).AddRow(int64(1), now, now))

	body := []byte(`{"id":"evt_123","type":"payment.succeeded","livemode":true}`)
	var response map[string]interface{}
	testRequest := TestRequest{
		Payload:  bytes.NewReader(body),
		Response: &response,
		Method:   "POST",
		Route:    "/webhooks/" + model.ProviderCardNetwork,
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "evt_123", response["event_id"])
	assert.Equal(t, model.ProviderCardNetwork, response["provider"])
}

func TestReceiveWebhookUnknownProvider(t *testing.T) {
	router, _, err := setupRouter(nil)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	var response map[string]interface{}
	testRequest := TestRequest{
		Payload:  bytes.NewReader([]byte(`{"id":"evt_1","type":"x"}`)),
		Response: &response,
		Method:   "POST",
		Route:    "/webhooks/mystery_gateway",
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestReceiveWebhookMalformedBody(t *testing.T) {
	router, _, err := setupRouter(nil)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	var response map[string]interface{}
	testRequest := TestRequest{
		Payload:  bytes.NewReader([]byte(`not json at all`)),
		Response: &response,
		Method:   "POST",
		Route:    "/webhooks/" + model.ProviderCardNetwork,
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Invalid webhook payload", response["error"])
}

func TestReceiveWebhookSignatureVerified(t *testing.T) {
	router, mock, err := setupRouter(&config.Configuration{
		Inbox: config.InboxConfig{
			WebhookSecrets: map[string]string{model.ProviderCardNetwork: "whsec_test"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	now := time.Now()
	mock.ExpectQuery("INSERT INTO paymux.inbox_events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "received_at", "updated_at"}).AddRow(int64(2), now, now))

	body := []byte(`{"id":"evt_456","type":"payment.failed","livemode":false}`)
	var response map[string]interface{}
	testRequest := TestRequest{
		Payload:  bytes.NewReader(body),
		Response: &response,
		Method:   "POST",
		Route:    "/webhooks/" + model.ProviderCardNetwork,
		Header:   map[string]string{middleware.SignatureHeader: signBody("whsec_test", body)},
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "evt_456", response["event_id"])
}

func TestReceiveWebhookBadSignature(t *testing.T) {
	router, _, err := setupRouter(&config.Configuration{
		Inbox: config.InboxConfig{
			WebhookSecrets: map[string]string{model.ProviderCardNetwork: "whsec_test"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	body := []byte(`{"id":"evt_789","type":"payment.failed"}`)
	var response map[string]interface{}
	testRequest := TestRequest{
		Payload:  bytes.NewReader(body),
		Response: &response,
		Method:   "POST",
		Route:    "/webhooks/" + model.ProviderCardNetwork,
		Header:   map[string]string{middleware.SignatureHeader: "deadbeef"},
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestReceiveWebhookMissingSignature(t *testing.T) {
	router, _, err := setupRouter(&config.Configuration{
		Inbox: config.InboxConfig{
			WebhookSecrets: map[string]string{model.ProviderCardNetwork: "whsec_test"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	var response map[string]interface{}
	testRequest := TestRequest{
		Payload:  bytes.NewReader([]byte(`{"id":"evt_1","type":"x"}`)),
		Response: &response,
		Method:   "POST",
		Route:    "/webhooks/" + model.ProviderCardNetwork,
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestReceiveWebhookSecureModeRequiresSecret(t *testing.T) {
	router, _, err := setupRouter(&config.Configuration{
		Server: config.ServerConfig{Secure: true, SecretKey: "sk_test"},
	})
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	// no webhook secret configured for the provider in secure mode
	var response map[string]interface{}
	testRequest := TestRequest{
		Payload:  bytes.NewReader([]byte(`{"id":"evt_1","type":"x"}`)),
		Response: &response,
		Method:   "POST",
		Route:    "/webhooks/" + model.ProviderCardNetwork,
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
