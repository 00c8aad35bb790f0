// Package sysmetrics reads host and process figures for the metrics stream.
package sysmetrics

import (
	"context"
	"os"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"llmgate/internal/logx"
	"llmgate/pkg/types"
)

// Collector produces a SystemMetrics readout.
type Collector interface {
	Collect(ctx context.Context) (types.SystemMetrics, error)
	// RSS is the resident set size of pid in bytes; pid 0 means this process.
	RSS(ctx context.Context, pid int) (uint64, error)
}

// Host collects via gopsutil. BackendPID reports the backend child process,
// or 0 when the backend is remote.
type Host struct {
	BackendPID func() int
}

// NewHost returns a collector. backendPID may be nil.
func NewHost(backendPID func() int) *Host {
	return &Host{BackendPID: backendPID}
}

func (h *Host) backendPID() int {
	if h.BackendPID == nil {
		return 0
	}
	return h.BackendPID()
}

// Fallback is reported when collection fails.
func Fallback() types.SystemMetrics {
	return types.SystemMetrics{CPUCores: 1}
}

// Collect reads system memory, logical CPU count, CPU seconds of this
// process plus the backend child, and estimates VRAM. The model lives in the
// backend's memory, so its RSS stands in for VRAM use; the total is
// max(2*used, 10% of system memory).
func (h *Host) Collect(ctx context.Context) (types.SystemMetrics, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Fallback(), err
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores <= 0 {
		cores = 1
	}
	out := types.SystemMetrics{
		SysMemTotal: vm.Total,
		SysMemUsed:  vm.Used,
		CPUCores:    cores,
	}

	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return Fallback(), err
	}
	if t, err := self.TimesWithContext(ctx); err == nil {
		out.ProcCPUSec = t.User + t.System
	}
	vramProc := self
	if pid := h.backendPID(); pid > 0 {
		if child, err := process.NewProcessWithContext(ctx, int32(pid)); err == nil {
			vramProc = child
			if t, err := child.TimesWithContext(ctx); err == nil {
				out.ProcCPUSec += t.User + t.System
			}
		} else {
			logx.Log.Debug().Err(err).Int("pid", pid).Msg("backend process not readable")
		}
	}
	if mi, err := vramProc.MemoryInfoWithContext(ctx); err == nil {
		out.VRAMUsed = float64(mi.RSS)
	}
	out.VRAMTotal = max(2*out.VRAMUsed, 0.1*float64(vm.Total))
	return out, nil
}

// RSS implements Collector.
func (h *Host) RSS(ctx context.Context, pid int) (uint64, error) {
	if pid <= 0 {
		pid = os.Getpid()
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, err
	}
	mi, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return mi.RSS, nil
}
