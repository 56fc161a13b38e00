// Package metrics exposes the current reading and poll outcomes as
// Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/luki/airdash/internal/aqi"
	"github.com/luki/airdash/internal/poller"
)

const namespace = "airdash"

// Source provides the state to export.
type Source interface {
	Snapshot() poller.State
}

// Collector reads a snapshot on every scrape; it never triggers a fetch.
// Every scrape builds its own const metrics, so concurrent scrapes do not
// share values.
type Collector struct {
	src Source

	hasReading  *prometheus.Desc
	lastSuccess *prometheus.Desc
	lastError   *prometheus.Desc
	loading     *prometheus.Desc
	info        *prometheus.Desc

	aqiValue        *prometheus.Desc
	pm1Ugm3         *prometheus.Desc
	pm25Ugm3        *prometheus.Desc
	pm10Ugm3        *prometheus.Desc
	tempCelsius     *prometheus.Desc
	humidityPercent *prometheus.Desc
	pressureHPa     *prometheus.Desc
	mqRaw           *prometheus.Desc
	gasPPM          *prometheus.Desc

	attempts *prometheus.Desc
	failures *prometheus.Desc
}

func desc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
}

func NewCollector(src Source) *Collector {
	return &Collector{
		src:             src,
		hasReading:      desc("reading_available", "1 once a reading has been applied"),
		lastSuccess:     desc("last_update_timestamp_seconds", "When the current reading was applied (epoch seconds)"),
		lastError:       desc("last_poll_failed", "1 if the most recent applied poll failed"),
		loading:         desc("loading", "1 while a fetch is in flight"),
		info:            desc("reading_info", "Device and AQI category of the current reading", "device_id", "category", "aqi_text"),
		aqiValue:        desc("aqi", "Air Quality Index"),
		pm1Ugm3:         desc("pm1_ugm3", "PM1.0 concentration (ug/m3)"),
		pm25Ugm3:        desc("pm25_ugm3", "PM2.5 concentration (ug/m3)"),
		pm10Ugm3:        desc("pm10_ugm3", "PM10 concentration (ug/m3)"),
		tempCelsius:     desc("temperature_celsius", "Temperature (celsius)"),
		humidityPercent: desc("humidity_percent", "Relative humidity (%)"),
		pressureHPa:     desc("pressure_hpa", "Barometric pressure (hPa)"),
		mqRaw:           desc("mq_raw", "MQ gas sensor raw reading"),
		gasPPM:          desc("gas_ppm", "Gas concentration (ppm)"),
		attempts:        desc("poll_attempts_total", "Fetches started"),
		failures:        desc("poll_failures_total", "Fetches that failed and were applied as errors"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.hasReading, c.lastSuccess, c.lastError, c.loading, c.info,
		c.aqiValue, c.pm1Ugm3, c.pm25Ugm3, c.pm10Ugm3,
		c.tempCelsius, c.humidityPercent, c.pressureHPa, c.mqRaw, c.gasPPM,
		c.attempts, c.failures,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Snapshot()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	gauge(c.hasReading, boolGauge(s.HasReading))
	gauge(c.lastError, boolGauge(s.Err != nil))
	gauge(c.loading, boolGauge(s.Loading))
	ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(s.Attempts))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.Failures))

	if !s.HasReading {
		return
	}

	r := s.Reading
	gauge(c.lastSuccess, float64(s.UpdatedAt.Unix()))
	gauge(c.info, 1, r.DeviceID, aqi.Classify(r.AQIValue).Category, r.AQIText)
	gauge(c.aqiValue, r.AQIValue)
	gauge(c.pm1Ugm3, r.PM1)
	gauge(c.pm25Ugm3, r.PM25)
	gauge(c.pm10Ugm3, r.PM10)
	gauge(c.tempCelsius, r.Temp)
	gauge(c.humidityPercent, r.Humidity)
	gauge(c.pressureHPa, r.Pressure)
	gauge(c.mqRaw, r.MQ)
	gauge(c.gasPPM, r.PPM)
}

// NewRegistry returns a registry holding the collector plus the standard
// Go and process collectors.
func NewRegistry(src Source) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
