// Package sysinfo collects the host facts printed by the info command.
package sysinfo

import (
	"context"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// CPU describes the processor.
type CPU struct {
	BrandName     string
	Vendor        string
	PhysicalCores int
	LogicalCores  int
	// SIMD lists the vector extensions relevant to PCM processing that the
	// processor supports.
	SIMD []string
}

// Info is a snapshot of the host.
type Info struct {
	OS            string
	Architecture  string
	Platform      string
	PlatformVer   string
	KernelVersion string
	Hostname      string
	GoVersion     string

	CPU CPU

	MemoryTotal     uint64
	MemoryAvailable uint64
	MemoryUsedPct   float64

	Load1, Load5, Load15 float64
}

// GetCPU reads the processor description from cpuid.
func GetCPU() CPU {
	c := CPU{
		BrandName:     cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
	}
	if c.LogicalCores == 0 {
		// cpuid reports nothing useful on some ARM boards
		c.LogicalCores = runtime.NumCPU()
	}
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.SSE2, "SSE2"},
		{cpuid.SSE4, "SSE4.1"},
		{cpuid.AVX, "AVX"},
		{cpuid.AVX2, "AVX2"},
		{cpuid.AVX512F, "AVX512F"},
		{cpuid.ASIMD, "NEON"},
	} {
		if cpuid.CPU.Supports(f.id) {
			c.SIMD = append(c.SIMD, f.name)
		}
	}
	return c
}

// Collect gathers the snapshot. Facts the platform cannot provide are left
// zero and the errors reading them are returned.
func Collect(ctx context.Context) (Info, []error) {
	info := Info{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		GoVersion:    runtime.Version(),
		CPU:          GetCPU(),
	}
	var errs []error

	if h, err := host.InfoWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		info.PlatformVer = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		info.MemoryTotal = vm.Total
		info.MemoryAvailable = vm.Available
		info.MemoryUsedPct = vm.UsedPercent
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		info.Load1, info.Load5, info.Load15 = avg.Load1, avg.Load5, avg.Load15
	}

	return info, errs
}
