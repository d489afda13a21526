// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package server wires the static and proxy responders behind a single
// router. A GET whose path starts with the proxy prefix goes to the proxy;
// every other request is served from disk. Both paths share the isolation
// header middleware.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/go-core-stack/coi-devserver/pkg/config"
	"github.com/go-core-stack/coi-devserver/pkg/isolation"
	"github.com/go-core-stack/coi-devserver/pkg/proxy"
	"github.com/go-core-stack/coi-devserver/pkg/static"
)

// New builds the request router for cfg.
func New(cfg config.Config) (*mux.Router, error) {
	policy := isolation.New(cfg.Headers, cfg.ExcludedHeaders)
	files := static.New(cfg.Root, cfg.MIMETypes)

	// The file server resolves paths itself; mux must not redirect them.
	router := mux.NewRouter().SkipClean(true)
	router.Use(accessLog, policy.Middleware)

	if cfg.ProxyEnabled() {
		px, err := proxy.New(cfg, policy)
		if err != nil {
			return nil, fmt.Errorf("construct proxy: %w", err)
		}
		// Plain string prefix: "/distfoo" is proxied too.
		router.Methods(http.MethodGet).PathPrefix(cfg.ProxyPrefix).Handler(px)
	}

	router.PathPrefix("/").Handler(files)

	// Request targets outside "/" (e.g. "OPTIONS *") miss every route.
	router.NotFoundHandler = accessLog(policy.Middleware(http.NotFoundHandler()))

	return router, nil
}
