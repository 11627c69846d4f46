// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// CPU pinning for the reactor thread. Platform-specific implementations are
// located in separate files guarded by build tags.

package affinity

import "runtime"

// PinReactorThread locks the calling goroutine to its OS thread and binds that
// thread to cpuID. The returned func restores the previous CPU mask and unlocks
// the thread; it must run on the same goroutine.
func PinReactorThread(cpuID int) (restore func(), err error) {
	runtime.LockOSThread()
	undo, err := pinCurrentThread(cpuID)
	if err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}
	return func() {
		undo()
		runtime.UnlockOSThread()
	}, nil
}
