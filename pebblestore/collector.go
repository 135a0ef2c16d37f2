// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pebblestore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a subset of pebble metrics of a Store.
type Collector struct {
	store *Store

	compactions   *prometheus.Desc
	compactDebt   *prometheus.Desc
	memtableSize  *prometheus.Desc
	memtableCount *prometheus.Desc
	walSize       *prometheus.Desc
	walBytesIn    *prometheus.Desc
}

func NewCollector(store *Store) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("rscache_pebble_"+name, help, nil, nil)
	}
	return &Collector{
		store:         store,
		compactions:   desc("compactions_total", "Compactions performed."),
		compactDebt:   desc("compaction_debt_bytes", "Estimated bytes left to compact."),
		memtableSize:  desc("memtable_size_bytes", "Bytes allocated by memtables."),
		memtableCount: desc("memtable_count", "Memtables in use."),
		walSize:       desc("wal_size_bytes", "Size of live WAL files."),
		walBytesIn:    desc("wal_bytes_in_total", "Logical bytes written to the WAL."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactions
	ch <- c.compactDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walSize
	ch <- c.walBytesIn
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.store.Metrics()
	ch <- prometheus.MustNewConstMetric(c.compactions, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.compactDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.walBytesIn, prometheus.CounterValue, float64(m.WAL.BytesIn))
}
