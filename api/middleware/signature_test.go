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
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/paymux/paymux/config"
)

func signatureRouter(verifiers map[string]Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/:provider", SignatureVerificationMiddleware(verifiers), func(c *gin.Context) {
		body, _ := c.Get(RawBodyKey)
		c.JSON(http.StatusOK, gin.H{"bytes": len(body.([]byte))})
	})
	return r
}

func hexSign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSignatureVerificationValid(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
		DataSource: config.DataSourceConfig{Dns: "postgres://localhost"},
	})
	router := signatureRouter(map[string]Verifier{
		"card_network": HMACVerifier{Secret: "whsec_test"},
	})

	body := []byte(`{"id":"evt_1"}`)
	req := httptest.NewRequest("POST", "/webhooks/card_network", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, hexSign("whsec_test", body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"bytes":14`)
}

func TestSignatureVerificationInvalid(t *testing.T) {
	router := signatureRouter(map[string]Verifier{
		"card_network": HMACVerifier{Secret: "whsec_test"},
	})

	body := []byte(`{"id":"evt_1"}`)
	req := httptest.NewRequest("POST", "/webhooks/card_network", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "deadbeef")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestSignatureVerificationMissingHeader(t *testing.T) {
	router := signatureRouter(map[string]Verifier{
		"card_network": HMACVerifier{Secret: "whsec_test"},
	})

	req := httptest.NewRequest("POST", "/webhooks/card_network", bytes.NewReader([]byte(`{}`)))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestSignatureVerificationNoVerifierInsecureMode(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
		DataSource: config.DataSourceConfig{Dns: "postgres://localhost"},
	})
	router := signatureRouter(map[string]Verifier{})

	req := httptest.NewRequest("POST", "/webhooks/card_network", bytes.NewReader([]byte(`{}`)))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	// local development without secrets passes through
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestSignatureVerificationNoVerifierSecureMode(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Server:     config.ServerConfig{Secure: true, SecretKey: "sk"},
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
		DataSource: config.DataSourceConfig{Dns: "postgres://localhost"},
	})
	router := signatureRouter(map[string]Verifier{})

	req := httptest.NewRequest("POST", "/webhooks/card_network", bytes.NewReader([]byte(`{}`)))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestDefaultVerifiers(t *testing.T) {
	verifiers := DefaultVerifiers(&config.Configuration{
		Inbox: config.InboxConfig{
			WebhookSecrets: map[string]string{
				"card_network": "whsec_1",
				"alt_payment":  "",
			},
		},
	})

	assert.Contains(t, verifiers, "card_network")
	assert.NotContains(t, verifiers, "alt_payment")
}
