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

package paymux

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/paymux/paymux/model"
)

// BackoffDelay maps an attempt count to a capped exponential delay:
// min(cap, base * 2^(attempt-1)). Deterministic, no jitter.
func BackoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return cap
	}

	// guard the shift before it can overflow a Duration
	shift := uint(attempt - 1)
	if shift > 32 {
		return cap
	}
	delay := base << shift
	if delay > cap || delay < base {
		return cap
	}
	return delay
}

// HTTP status codes from upstream calls that indicate a transient condition.
var retryableHTTPStatus = map[int]bool{
	408: true, 425: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// HTTP status codes that will not improve on retry.
var terminalHTTPStatus = map[int]bool{
	400: true, 401: true, 403: true, 404: true, 409: true, 410: true, 422: true,
}

// RetryableError classifies a business-handler failure. Parse failures and
// terminal upstream statuses are not retried; transient network and server
// errors are. Unknown error shapes default to retryable, so a misclassified
// terminal error still lands in IGNORED once the attempt budget runs out.
func RetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrUnsupportedProvider) {
		return false
	}

	var payloadErr *model.PayloadError
	if errors.As(err, &payloadErr) {
		return false
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return false
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		if terminalHTTPStatus[httpErr.Status] {
			return false
		}
		if retryableHTTPStatus[httpErr.Status] {
			return true
		}
		return true
	}

	var netErr *model.NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var rawNetErr net.Error
	if errors.As(err, &rawNetErr) {
		return true
	}

	return true
}
