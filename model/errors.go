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

package model

import "fmt"

// Business handlers wrap the raw failures of their upstream calls into these
// shapes before they reach the retry classifier. Anything else is classified
// as unknown and retried until the attempt budget runs out.

// HTTPError carries the status code of a failed upstream HTTP call made by a
// business handler.
type HTTPError struct {
	Status int
	Msg    string
}

func (e *HTTPError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Msg)
}

// NetworkError carries a transport-level failure code such as a connection
// reset or timeout.
type NetworkError struct {
	Code string
	Msg  string
}

func (e *NetworkError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("network error %s", e.Code)
	}
	return fmt.Sprintf("network error %s: %s", e.Code, e.Msg)
}

// PayloadError marks a stored payload that cannot be parsed by its handler.
// Retrying cannot fix a payload that was stored broken.
type PayloadError struct {
	Msg string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid payload: %s", e.Msg)
}
