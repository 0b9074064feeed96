package metrics

import (
	"log/slog"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceCollector samples CPU, memory and thread usage of the backend child
// at scrape time. pid returns 0 while no child is running.
type ResourceCollector struct {
	pid func() int

	cpuPercent *prometheus.Desc
	rssBytes   *prometheus.Desc
	threads    *prometheus.Desc
	fds        *prometheus.Desc
}

func NewResourceCollector(pid func() int) *ResourceCollector {
	return &ResourceCollector{
		pid: pid,
		cpuPercent: prometheus.NewDesc("hcdesk_sidecar_cpu_percent",
			"CPU usage of the backend process.", nil, nil),
		rssBytes: prometheus.NewDesc("hcdesk_sidecar_memory_rss_bytes",
			"Resident memory of the backend process.", nil, nil),
		threads: prometheus.NewDesc("hcdesk_sidecar_threads",
			"Thread count of the backend process.", nil, nil),
		fds: prometheus.NewDesc("hcdesk_sidecar_open_fds",
			"Open file descriptors of the backend process (Unix only).", nil, nil),
	}
}

func (c *ResourceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuPercent
	ch <- c.rssBytes
	ch <- c.threads
	ch <- c.fds
}

func (c *ResourceCollector) Collect(ch chan<- prometheus.Metric) {
	pid := c.pid()
	if pid <= 0 {
		return
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		slog.Debug("sidecar process not found", "pid", pid, "error", err)
		return
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.cpuPercent, prometheus.GaugeValue, cpu)
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.rssBytes, prometheus.GaugeValue, float64(mem.RSS))
	}
	if n, err := proc.NumThreads(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(n))
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDs(); err == nil {
			ch <- prometheus.MustNewConstMetric(c.fds, prometheus.GaugeValue, float64(n))
		}
	}
}
