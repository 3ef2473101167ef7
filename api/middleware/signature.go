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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/paymux/paymux/config"
)

// SignatureHeader carries the provider's hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Webhook-Signature"

// RawBodyKey is the gin context key under which the verified raw request body
// is stored for the webhook handler.
const RawBodyKey = "rawBody"

// Verifier authenticates one provider's callback before it is parsed. The
// body passed in is the exact bytes on the wire.
type Verifier interface {
	Verify(r *http.Request, body []byte) error
}

// HMACVerifier checks a hex HMAC-SHA256 of the raw body against a shared
// secret.
type HMACVerifier struct {
	Secret string
	Header string
}

func (v HMACVerifier) Verify(r *http.Request, body []byte) error {
	header := v.Header
	if header == "" {
		header = SignatureHeader
	}
	signature := r.Header.Get(header)
	if signature == "" {
		return errors.Errorf("missing %s header", header)
	}

	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New("signature mismatch")
	}
	return nil
}

// DefaultVerifiers builds an HMAC verifier per provider with a configured
// webhook secret.
func DefaultVerifiers(conf *config.Configuration) map[string]Verifier {
	verifiers := make(map[string]Verifier)
	for provider, secret := range conf.Inbox.WebhookSecrets {
		if secret == "" {
			continue
		}
		verifiers[provider] = HMACVerifier{Secret: secret}
	}
	return verifiers
}

// SignatureVerificationMiddleware reads the raw request body, authenticates
// it with the provider's verifier, and hands the verified bytes to the
// handler via the context. A provider without a verifier is rejected in
// secure mode and waved through otherwise, so local development does not need
// secrets.
func SignatureVerificationMiddleware(verifiers map[string]Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
			return
		}
		_ = c.Request.Body.Close()

		provider := c.Param("provider")
		verifier, ok := verifiers[provider]
		if !ok {
			conf, err := config.Fetch()
			if err != nil || conf.Server.Secure {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no webhook secret configured for provider"})
				return
			}
			c.Set(RawBodyKey, body)
			c.Next()
			return
		}

		if err := verifier.Verify(c.Request, body); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(RawBodyKey, body)
		c.Next()
	}
}
