package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"codeberg.org/mutker/nvidiamon/internal/monitor"
)

// reportCollector exposes the latest cycle report as Prometheus
// gauges. It reads through the StatsSource on every scrape, so values
// are as fresh as the last completed cycle.
type reportCollector struct {
	source  StatsSource
	metrics []deviceMetric

	burnRunningDesc  *prometheus.Desc
	burnDurationDesc *prometheus.Desc
	burnErrorsDesc   *prometheus.Desc
	cycleOKDesc      *prometheus.Desc
}

type deviceMetric struct {
	desc    *prometheus.Desc
	extract func(device monitor.DeviceReport) float64
}

func newReportCollector(source StatsSource) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName("nvidiamon", "gpu", name),
			help,
			[]string{"gpu_index", "gpu_name"},
			nil,
		)
	}

	burnDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName("nvidiamon", "burn", name),
			help,
			nil,
			nil,
		)
	}

	return &reportCollector{
		source: source,
		metrics: []deviceMetric{
			{
				desc: desc("temperature_celsius", "Current GPU temperature in Celsius."),
				extract: func(device monitor.DeviceReport) float64 {
					return device.Temperature
				},
			},
			{
				desc: desc("peak_temperature_celsius", "Peak GPU temperature since the last reset."),
				extract: func(device monitor.DeviceReport) float64 {
					return device.PeakTemperature
				},
			},
			{
				desc: desc("temp_change_rate_celsius_per_minute", "Smoothed temperature trend in degrees per minute."),
				extract: func(device monitor.DeviceReport) float64 {
					return device.TempChangeRate
				},
			},
			{
				desc: desc("utilization_percent", "Current GPU utilization percentage."),
				extract: func(device monitor.DeviceReport) float64 {
					return device.Utilization
				},
			},
			{
				desc: desc("fan_speed_percent", "Current fan speed percentage."),
				extract: func(device monitor.DeviceReport) float64 {
					return device.FanSpeed
				},
			},
			{
				desc: desc("power_draw_watts", "Current GPU power draw in Watts."),
				extract: func(device monitor.DeviceReport) float64 {
					return device.PowerDraw
				},
			},
			{
				desc: desc("memory_used_mib", "Current GPU memory usage in MiB."),
				extract: func(device monitor.DeviceReport) float64 {
					return device.MemoryUsed
				},
			},
		},
		burnRunningDesc:  burnDesc("running", "Whether a stress workload is currently detected."),
		burnDurationDesc: burnDesc("duration_seconds", "Seconds the current stress workload has been running."),
		burnErrorsDesc:   burnDesc("errors_total", "Workload errors reported since the last reset."),
		cycleOKDesc: prometheus.NewDesc(
			prometheus.BuildFQName("nvidiamon", "cycle", "success"),
			"Whether the most recent collection cycle succeeded.",
			nil,
			nil,
		),
	}
}

func (c *reportCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.metrics {
		ch <- metric.desc
	}
	ch <- c.burnRunningDesc
	ch <- c.burnDurationDesc
	ch <- c.burnErrorsDesc
	ch <- c.cycleOKDesc
}

func (c *reportCollector) Collect(ch chan<- prometheus.Metric) {
	report := c.source.Latest()

	ch <- prometheus.MustNewConstMetric(c.cycleOKDesc, prometheus.GaugeValue, boolToFloat(report.Success))

	if !report.Success {
		return
	}

	for _, device := range report.GPUs {
		index := strconv.Itoa(device.Index)
		for _, metric := range c.metrics {
			ch <- prometheus.MustNewConstMetric(
				metric.desc,
				prometheus.GaugeValue,
				metric.extract(device),
				index,
				device.Name,
			)
		}
	}

	if report.BurnMetrics != nil {
		ch <- prometheus.MustNewConstMetric(c.burnRunningDesc, prometheus.GaugeValue, boolToFloat(report.BurnMetrics.Running))
		ch <- prometheus.MustNewConstMetric(c.burnDurationDesc, prometheus.GaugeValue, report.BurnMetrics.Duration)
		ch <- prometheus.MustNewConstMetric(c.burnErrorsDesc, prometheus.GaugeValue, float64(report.BurnMetrics.Errors))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
