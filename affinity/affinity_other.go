//go:build !linux

// File: affinity/affinity_other.go
// Author: momentics <momentics@gmail.com>

package affinity

import "github.com/momentics/hioload-proxy/api"

func pinCurrentThread(int) (func(), error) {
	return nil, api.ErrNotSupported
}
