// File: server/pending.go
// Author: momentics <momentics@gmail.com>
//
// FIFO of accepted connections awaiting session creation.

package server

import (
	"github.com/eapache/queue"
	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/internal/socket"
)

// pendingAccept is a connection accepted during dispatch, awaiting promotion.
type pendingAccept struct {
	conn        socket.Conn
	listenToken api.Token
}

// pendingQueue is the FIFO between accept detection and session creation.
type pendingQueue struct {
	q *queue.Queue
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{q: queue.New()}
}

func (p *pendingQueue) Push(pa pendingAccept) {
	p.q.Add(pa)
}

// Pop removes the oldest entry; the queue must not be empty.
func (p *pendingQueue) Pop() pendingAccept {
	return p.q.Remove().(pendingAccept)
}

func (p *pendingQueue) Len() int {
	return p.q.Length()
}
