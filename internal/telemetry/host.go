package telemetry

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/shaiso/squll/internal/domain"
)

// HostSampler снимает показатели машины через gopsutil.
type HostSampler struct{}

// Load возвращает load average. Если ОС его не отдаёт, снимок невалиден.
func (HostSampler) Load() domain.LoadSample {
	avg, err := load.Avg()
	if err != nil || avg == nil {
		return domain.LoadSample{}
	}
	return domain.LoadSample{
		Load1:  avg.Load1,
		Load5:  avg.Load5,
		Load15: avg.Load15,
		Valid:  true,
	}
}

// Info возвращает число логических CPU и объём RAM в байтах.
// Недоступные значения остаются нулевыми.
func (HostSampler) Info() domain.HostInfo {
	var info domain.HostInfo
	if n, err := cpu.Counts(true); err == nil {
		info.CPUCount = n
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.RAMSize = vm.Total
	}
	return info
}
