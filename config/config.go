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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5003"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PAYMUX_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PAYMUX_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PAYMUX_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"PAYMUX_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PAYMUX_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PAYMUX_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PAYMUX_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"PAYMUX_REDIS_DNS"`
}

// InboxConfig carries the knobs of the webhook inbox pipeline: the queue the
// reception service publishes to, the worker pool size, the retry policy and
// the sweeper schedule.
type InboxConfig struct {
	QueueName              string `json:"queue_name" envconfig:"PAYMUX_INBOX_QUEUE_NAME"`
	WorkerConcurrency      int    `json:"worker_concurrency" envconfig:"PAYMUX_INBOX_WORKER_CONCURRENCY"`
	MaxAttempts            int    `json:"max_attempts" envconfig:"PAYMUX_INBOX_MAX_ATTEMPTS"`
	RetryBaseDelaySec      int    `json:"retry_base_delay_sec" envconfig:"PAYMUX_INBOX_RETRY_BASE_DELAY_SEC"`
	RetryCapDelaySec       int    `json:"retry_cap_delay_sec" envconfig:"PAYMUX_INBOX_RETRY_CAP_DELAY_SEC"`
	SweepIntervalSec       int    `json:"sweep_interval_sec" envconfig:"PAYMUX_INBOX_SWEEP_INTERVAL_SEC"`
	SweepBatchSize         int    `json:"sweep_batch_size" envconfig:"PAYMUX_INBOX_SWEEP_BATCH_SIZE"`
	StaleEnqueuedThreshSec int    `json:"stale_enqueued_threshold_sec" envconfig:"PAYMUX_INBOX_STALE_ENQUEUED_THRESHOLD_SEC"`
	MonitoringPort         string `json:"monitoring_port" envconfig:"PAYMUX_INBOX_MONITORING_PORT"`
	// WebhookSecrets maps a provider tag to its shared signing secret. A
	// provider without a secret is rejected at the door when the server runs
	// in secure mode.
	WebhookSecrets map[string]string `json:"webhook_secrets" envconfig:"PAYMUX_INBOX_WEBHOOK_SECRETS"`
}

func (i InboxConfig) RetryBaseDelay() time.Duration {
	return time.Duration(i.RetryBaseDelaySec) * time.Second
}

func (i InboxConfig) RetryCapDelay() time.Duration {
	return time.Duration(i.RetryCapDelaySec) * time.Second
}

func (i InboxConfig) SweepInterval() time.Duration {
	return time.Duration(i.SweepIntervalSec) * time.Second
}

func (i InboxConfig) StaleEnqueuedThreshold() time.Duration {
	return time.Duration(i.StaleEnqueuedThreshSec) * time.Second
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PAYMUX_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PAYMUX_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PAYMUX_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"PAYMUX_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Inbox        InboxConfig      `json:"inbox"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("paymux", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called paymux.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Paymux Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Inbox.applyDefaults()

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (i *InboxConfig) applyDefaults() {
	if i.QueueName == "" {
		i.QueueName = "webhook_inbox"
	}
	if i.WorkerConcurrency <= 0 {
		i.WorkerConcurrency = 5
	}
	if i.MaxAttempts <= 0 {
		i.MaxAttempts = 8
	}
	if i.RetryBaseDelaySec <= 0 {
		i.RetryBaseDelaySec = 30
	}
	if i.RetryCapDelaySec <= 0 {
		i.RetryCapDelaySec = 3600
	}
	if i.SweepIntervalSec <= 0 {
		i.SweepIntervalSec = 60
	}
	if i.SweepBatchSize <= 0 {
		i.SweepBatchSize = 200
	}
	if i.StaleEnqueuedThreshSec <= 0 {
		i.StaleEnqueuedThreshSec = 900
	}
	if i.MonitoringPort == "" {
		i.MonitoringPort = "5004"
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.Inbox.applyDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
