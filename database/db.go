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

package database

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/paymux/paymux/config"
	"github.com/paymux/paymux/internal/cache"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ConnectDB opens the database and pings it with a short exponential backoff,
// so a server racing its database container at startup does not fail hard.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	pingPolicy := backoff.NewExponentialBackOff()
	pingPolicy.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(func() error {
		return db.Ping()
	}, pingPolicy)
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}

	err = createInboxEventTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createInboxEventTable creates the PostgreSQL table for the InboxEvent struct.
// The UNIQUE (provider, event_id) constraint is what makes ingestion idempotent.
func createInboxEventTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE SCHEMA IF NOT EXISTS paymux;
		CREATE TABLE IF NOT EXISTS paymux.inbox_events (
			id BIGSERIAL PRIMARY KEY,
			provider TEXT NOT NULL,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			livemode BOOLEAN,
			status TEXT NOT NULL DEFAULT 'RECEIVED',
			attempts INT NOT NULL DEFAULT 0,
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processing_started_at TIMESTAMPTZ,
			processed_at TIMESTAMPTZ,
			next_retry_at TIMESTAMPTZ,
			payload_hash TEXT NOT NULL,
			payload_raw TEXT NOT NULL,
			headers JSONB,
			last_error TEXT,
			UNIQUE (provider, event_id)
		);
		CREATE INDEX IF NOT EXISTS idx_inbox_events_sweep
			ON paymux.inbox_events (status, next_retry_at, updated_at);
		CREATE INDEX IF NOT EXISTS idx_inbox_events_received_at
			ON paymux.inbox_events (received_at, id)
	`)
	if err != nil {
		log.Printf("Error creating inbox_events table: %v", err)
	}
	return err
}
