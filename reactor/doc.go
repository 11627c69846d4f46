// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-threaded readiness reactor that drives the
// proxy front end: an edge-triggered epoll poller on Linux, a stub elsewhere, and an
// eventfd based Waker used to interrupt a blocked Wait.
package reactor
