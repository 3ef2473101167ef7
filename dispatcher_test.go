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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paymux/paymux/model"
)

func TestDispatcherInvoke(t *testing.T) {
	d := NewDispatcher()

	var got []byte
	d.Register(model.ProviderCardNetwork, func(ctx context.Context, payload []byte) error {
		got = payload
		return nil
	})

	err := d.Invoke(context.Background(), model.ProviderCardNetwork, []byte(`{"id":"evt_1"}`))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"id":"evt_1"}`, string(got))
}

func TestDispatcherUnknownProvider(t *testing.T) {
	d := NewDispatcher()

	err := d.Invoke(context.Background(), "mystery_gateway", []byte(`{}`))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedProvider))
}

func TestDispatcherReRegisterReplacesHandler(t *testing.T) {
	d := NewDispatcher()

	d.Register(model.ProviderAltPayment, func(ctx context.Context, payload []byte) error {
		return errors.New("old handler")
	})
	d.Register(model.ProviderAltPayment, func(ctx context.Context, payload []byte) error {
		return nil
	})

	assert.NoError(t, d.Invoke(context.Background(), model.ProviderAltPayment, nil))
}

func TestDispatcherHandlerErrorPropagates(t *testing.T) {
	d := NewDispatcher()
	want := &model.HTTPError{Status: 503}

	d.Register(model.ProviderRegionalGW, func(ctx context.Context, payload []byte) error {
		return want
	})

	err := d.Invoke(context.Background(), model.ProviderRegionalGW, nil)
	var httpErr *model.HTTPError
	assert.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 503, httpErr.Status)
}
