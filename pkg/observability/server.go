// Copyright 2026 Embercore
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Server serves the /metrics endpoint on its own listener, isolated from
// the front door so a metrics scraper never needs front-door auth and a
// front-door outage never takes metrics down with it.
type Server struct {
	http *http.Server
}

// NewServer builds a metrics Server, or nil if m is nil (metrics disabled).
// Callers should check for nil before calling Start.
func NewServer(m *Metrics) *Server {
	if m == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{http: &http.Server{Addr: m.config.Addr, Handler: mux}}
}

// Start runs the metrics server until the listener fails or Shutdown is
// called.
func (s *Server) Start(context.Context) error {
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
