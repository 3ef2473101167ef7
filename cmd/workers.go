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
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/spf13/cobra"

	"github.com/paymux/paymux"
	"github.com/paymux/paymux/config"
	redis_db "github.com/paymux/paymux/internal/redis-db"
)

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: conf.Inbox.WorkerConcurrency,
			Queues: map[string]int{
				conf.Inbox.QueueName: 1,
			},
		},
	), nil
}

// workerCommands defines the "workers" command. It runs the processing pool
// consuming inbox jobs and the sweeper that re-enqueues due events, plus an
// asynqmon server for queue monitoring.
func workerCommands(p *paymuxInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start paymux workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			registerHandlers(p.paymux.Dispatcher())

			srv, err := initializeWorkerServer(conf)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			mux.HandleFunc(conf.Inbox.QueueName, p.paymux.ProcessInboxEvent)

			sweeper := paymux.NewSweeper(p.paymux)
			if err := sweeper.Start(ctx); err != nil {
				log.Fatalf("could not start sweeper: %v", err)
			}
			defer sweeper.Stop()

			// Start asynqmon server for health checks and monitoring
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Inbox.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}

// sweepCommands defines the "sweep" command, a one-shot manual sweep for
// operators who do not want to wait for the next scheduled tick.
func sweepCommands(p *paymuxInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "re-enqueue all due inbox events once",
		Run: func(cmd *cobra.Command, args []string) {
			swept, err := p.paymux.SweepInboxEvents(context.Background())
			if err != nil {
				log.Fatalf("sweep failed: %v", err)
			}
			log.Printf("Re-enqueued %d inbox events", swept)
		},
	}

	return cmd
}
