// Package sysinfo summarises the machine hostprobe itself runs on.
package sysinfo

import (
	"context"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

type Summary struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platformVersion"`
	KernelVersion   string  `json:"kernelVersion"`
	Uptime          uint64  `json:"uptime"`
	Load1           float64 `json:"load1"`
	Load5           float64 `json:"load5"`
	Load15          float64 `json:"load15"`
	MemTotal        uint64  `json:"memTotal"`
	MemUsedPercent  float64 `json:"memUsedPercent"`
}

// Collect gathers the summary. Host identity is required; load and memory
// are best effort and stay zero where the platform lacks them.
func Collect(ctx context.Context) (*Summary, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	s := &Summary{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		Uptime:          info.Uptime,
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.Load1, s.Load5, s.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemTotal = vm.Total
		s.MemUsedPercent = vm.UsedPercent
	}
	return s, nil
}
