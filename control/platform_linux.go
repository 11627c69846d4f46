//go:build linux
// +build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific process probes backed by gopsutil.

package control

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

// RegisterPlatformProbes sets Linux-specific debug probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	dp.RegisterProbe("process.fds", func() any {
		n, err := proc.NumFDs()
		if err != nil {
			return err.Error()
		}
		return n
	})
	dp.RegisterProbe("process.rss", func() any {
		mi, err := proc.MemoryInfo()
		if err != nil {
			return err.Error()
		}
		return mi.RSS
	})
}
