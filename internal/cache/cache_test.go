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
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
)

type cachedEvent struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func newTestCache(t *testing.T) Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c, err := newRedisCache("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	stored := cachedEvent{ID: 42, Status: "PROCESSED"}
	err := c.Set(ctx, "inbox:event:42", stored, 10*time.Minute)
	assert.NoError(t, err)

	var fetched cachedEvent
	err = c.Get(ctx, "inbox:event:42", &fetched)
	assert.NoError(t, err)
	assert.Equal(t, stored, fetched)
}

func TestCacheMissLeavesDataUntouched(t *testing.T) {
	c := newTestCache(t)

	fetched := cachedEvent{ID: -1}
	err := c.Get(context.Background(), "inbox:event:404", &fetched)
	assert.NoError(t, err)
	assert.Equal(t, int64(-1), fetched.ID)
}

func TestCacheDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "inbox:event:7", cachedEvent{ID: 7, Status: "IGNORED"}, time.Minute)
	assert.NoError(t, err)
	assert.NoError(t, c.Delete(ctx, "inbox:event:7"))
}
