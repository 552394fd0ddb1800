package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolStats is one reading of the database connection pool.
type PoolStats struct {
	Total    int32
	Idle     int32
	Acquired int32
	Max      int32
}

// DBPoolStatFunc reads the pool without this package importing the driver.
type DBPoolStatFunc func() PoolStats

// dbPoolCollector exposes pool gauges labelled with the configured driver.
type dbPoolCollector struct {
	stats DBPoolStatFunc

	total    *prometheus.Desc
	idle     *prometheus.Desc
	acquired *prometheus.Desc
	max      *prometheus.Desc
}

// NewDBPoolCollector creates a collector reading stats on every scrape.
func NewDBPoolCollector(driver string, stats DBPoolStatFunc) prometheus.Collector {
	labels := prometheus.Labels{"driver": driver}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("samely_db_pool_"+name, help, nil, labels)
	}
	return &dbPoolCollector{
		stats:    stats,
		total:    desc("total_conns", "Open connections in the pool."),
		idle:     desc("idle_conns", "Idle connections in the pool."),
		acquired: desc("acquired_conns", "Connections checked out by requests or the activity collector."),
		max:      desc("max_conns", "Configured upper bound of the pool (database.max_conns)."),
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.idle
	ch <- c.acquired
	ch <- c.max
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for _, g := range []struct {
		desc *prometheus.Desc
		v    int32
	}{
		{c.total, s.Total},
		{c.idle, s.Idle},
		{c.acquired, s.Acquired},
		{c.max, s.Max},
	} {
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, float64(g.v))
	}
}
