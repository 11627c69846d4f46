// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"

	"github.com/momentics/hioload-proxy/control"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics shares an existing metrics registry.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMaxPendingAccepts bounds the pending-accept queue; zero means unbounded.
func WithMaxPendingAccepts(n int) Option {
	return func(s *Server) {
		s.cfg.MaxPendingAccepts = n
	}
}

// WithEventsCapacity overrides the per-wait event buffer size.
func WithEventsCapacity(n int) Option {
	return func(s *Server) {
		s.cfg.EventsCapacity = n
	}
}
