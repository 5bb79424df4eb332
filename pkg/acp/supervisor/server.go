// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/acp-project/acp-go/internal/logger"
	"github.com/acp-project/acp-go/internal/metrics"
)

// HealthServer exposes the supervisor's health, liveness, readiness and
// Prometheus metrics over HTTP.
type HealthServer struct {
	checker *Checker
	logger  logger.Logger
	port    int
	server  *http.Server
}

// NewHealthServer builds a server bound to a running supervisor.
func NewHealthServer(probe ConnectivityProbe, log logger.Logger, port int) *HealthServer {
	return &HealthServer{
		checker: NewChecker(probe),
		logger:  log,
		port:    port,
	}
}

// Start begins serving in the background.
func (s *HealthServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/live", s.handleLiveness)
	mux.HandleFunc("/health/ready", s.handleReadiness)
	mux.Handle("/metrics", metrics.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting supervisor health server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health server error: " + err.Error())
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *HealthServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.checker.CheckAll()

	switch status.Status {
	case StatusUnhealthy:
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *HealthServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func (s *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status := s.checker.CheckAll()
	ready := status.Connectivity != nil && status.Connectivity.Status != StatusUnhealthy

	response := map[string]any{
		"ready":        ready,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"connectivity": status.Connectivity,
	}

	if !ready {
		response["errors"] = status.Errors
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
