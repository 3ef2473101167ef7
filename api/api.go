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
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/paymux/paymux"
	"github.com/paymux/paymux/api/middleware"
	"github.com/paymux/paymux/config"
)

type Api struct {
	paymux    *paymux.Paymux
	router    *gin.Engine
	verifiers map[string]middleware.Verifier
}

// Router registers the reception and admin routes. The webhook route carries
// its own signature verification; the admin routes sit behind the secret key
// middleware when the server runs in secure mode.
func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/webhooks/:provider", middleware.SignatureVerificationMiddleware(a.verifiers), a.ReceiveWebhook)

	admin := router.Group("/")
	conf, err := config.Fetch()
	if err == nil && conf.Server.Secure {
		admin.Use(middleware.SecretKeyAuthMiddleware())
	}
	admin.GET("/events", a.GetAllEvents)
	admin.GET("/events/:id", a.GetEvent)
	admin.POST("/events/:id/retry", a.RetryEvent)
	admin.POST("/events/sweep", a.SweepEvents)

	return a.router
}

func NewAPI(p *paymux.Paymux) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{
		paymux:    p,
		router:    r,
		verifiers: middleware.DefaultVerifiers(conf),
	}
}

// SetVerifier overrides the signature verifier for one provider. Must be
// called before Router.
func (a *Api) SetVerifier(provider string, v middleware.Verifier) {
	a.verifiers[provider] = v
}
