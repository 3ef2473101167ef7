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

package main

import (
	"context"
	"encoding/json"
	"log"

	"github.com/paymux/paymux"
	"github.com/paymux/paymux/model"
)

// registerHandlers binds a business handler to every supported provider.
// Deployments replace these with their own handlers; the defaults parse the
// stored payload and log the event so the pipeline is observable end to end.
func registerHandlers(d *paymux.Dispatcher) {
	for _, provider := range []string{
		model.ProviderCardNetwork,
		model.ProviderCardNetworkAlt,
		model.ProviderAltPayment,
		model.ProviderRegionalGW,
	} {
		d.Register(provider, logHandler(provider))
	}
}

func logHandler(provider string) paymux.Handler {
	return func(ctx context.Context, payload []byte) error {
		var event map[string]interface{}
		if err := json.Unmarshal(payload, &event); err != nil {
			return &model.PayloadError{Msg: err.Error()}
		}
		log.Printf(" [*] %s event received: %v", provider, event["type"])
		return nil
	}
}
