// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server configuration and lifecycle status.

package server

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/momentics/hioload-proxy/internal/listener"
	"github.com/momentics/hioload-proxy/internal/session"
	"github.com/momentics/hioload-proxy/internal/socket"
	"github.com/momentics/hioload-proxy/reactor"
)

// DefaultListenAddr is the loopback endpoint served when none is configured.
const DefaultListenAddr = "127.0.0.1:8080"

// Config holds all server-side configuration parameters.
type Config struct {
	Listen            []string                 `yaml:"listen"`              // bind addresses, e.g. "127.0.0.1:8080"
	Backlog           int                      `yaml:"backlog"`             // listen(2) backlog
	EventsCapacity    int                      `yaml:"events_capacity"`     // max events per reactor wait
	PollTimeout       time.Duration            `yaml:"poll_timeout"`        // negative blocks indefinitely
	MaxSessions       int                      `yaml:"max_sessions"`        // 0 = unlimited
	MaxPendingAccepts int                      `yaml:"max_pending_accepts"` // 0 = unlimited
	Timeouts          session.Timeouts         `yaml:"timeouts"`
	ActivationRetry   listener.ActivationRetry `yaml:"activation_retry"`
	LogLevel          string                   `yaml:"log_level"`
	CPU               int                      `yaml:"cpu"` // pin the reactor thread; negative disables
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          []string{DefaultListenAddr},
		Backlog:         socket.DefaultBacklog,
		EventsCapacity:  reactor.DefaultEventsCapacity,
		PollTimeout:     -1,
		Timeouts:        session.DefaultTimeouts(),
		ActivationRetry: listener.DefaultActivationRetry(),
		LogLevel:        "info",
		CPU:             -1,
	}
}

// ListenAddrs parses and validates the listen addresses.
func (c *Config) ListenAddrs() ([]netip.AddrPort, error) {
	if len(c.Listen) == 0 {
		return nil, fmt.Errorf("config: no listen address")
	}
	seen := make(map[netip.AddrPort]struct{}, len(c.Listen))
	out := make([]netip.AddrPort, 0, len(c.Listen))
	for _, s := range c.Listen {
		addr, err := netip.ParseAddrPort(s)
		if err != nil {
			return nil, fmt.Errorf("config: listen address %q: %w", s, err)
		}
		// v4-mapped v6 binds the plain v4 socket
		addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("config: duplicate listen address %s", addr)
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// pollTimeoutMs converts PollTimeout for EventReactor.Wait.
func (c *Config) pollTimeoutMs() int {
	if c.PollTimeout < 0 {
		return -1
	}
	return int(c.PollTimeout.Milliseconds())
}

// Status is the server lifecycle state.
type Status int32

const (
	Idle Status = iota
	Running
	Stopped
)

var statusName = map[Status]string{
	Idle:    "idle",
	Running: "running",
	Stopped: "stopped",
}

func (s Status) String() string {
	if n, ok := statusName[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int32(s))
}
