// Package session
// Author: momentics <momentics@gmail.com>
//
// Session bookkeeping for the proxy front end.
// Every registered event source lives in one Token-keyed Manager: listening
// endpoints as ListenSession and accepted connections as HTTPSession. The set of
// variants is closed; dispatch sites switch over them exhaustively.
//
// The Manager is owned by the reactor goroutine and performs no locking.

package session
