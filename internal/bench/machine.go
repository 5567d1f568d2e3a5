package bench

import (
	"NWBBenchmarks/internal/core/model"
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

// CollectMachineInfo describes the current host. Fields that cannot be read
// stay empty.
func CollectMachineInfo(ctx context.Context) model.MachineInfo {
	info := model.MachineInfo{Arch: runtime.GOARCH, OS: runtime.GOOS}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
	} else {
		log.Warnf("bench: failed to read host info: %v", err)
	}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUs = n
	} else {
		info.CPUs = runtime.NumCPU()
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryBytes = vm.Total
	} else {
		log.Warnf("bench: failed to read memory info: %v", err)
	}
	return info
}
