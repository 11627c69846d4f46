// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

import "strconv"

// Token is an opaque, process-unique handle correlating reactor readiness
// events with listeners and sessions.
type Token uint64

// InvalidToken is never handed out by an allocator.
const InvalidToken Token = 0

func (t Token) String() string {
	return "token(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// Interest selects the readiness kinds a registration is notified about.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

// Readiness describes what a reactor event reported.
type Readiness uint8

const (
	ReadinessRead Readiness = 1 << iota
	ReadinessWrite
	ReadinessError
	ReadinessHangup
	ReadinessReadClosed // peer shut down its write side; the socket may still be writable
)

// IsReadable reports read readiness.
func (r Readiness) IsReadable() bool { return r&ReadinessRead != 0 }

// IsWritable reports write readiness.
func (r Readiness) IsWritable() bool { return r&ReadinessWrite != 0 }

// IsClosed reports an error or a full hang-up. A half-close is not a close.
func (r Readiness) IsClosed() bool { return r&(ReadinessError|ReadinessHangup) != 0 }

// IsReadClosed reports that the peer will send no more data.
func (r Readiness) IsReadClosed() bool { return r&ReadinessReadClosed != 0 }

func (r Readiness) String() string {
	if r == 0 {
		return "none"
	}
	s := ""
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if r.IsReadable() {
		add("read")
	}
	if r.IsWritable() {
		add("write")
	}
	if r&ReadinessError != 0 {
		add("error")
	}
	if r&ReadinessHangup != 0 {
		add("hangup")
	}
	if r.IsReadClosed() {
		add("read-closed")
	}
	return s
}
