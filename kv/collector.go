package kv

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the storage engine's internal health to Prometheus:
// compaction backlog, memtable pressure, and WAL volume. Register it next
// to the engine collectors when running a metrics endpoint.
type Collector struct {
	db      *pebble.DB
	metrics []engineMetric
}

type engineMetric struct {
	desc  *prometheus.Desc
	vtype prometheus.ValueType
	read  func(m *pebble.Metrics) float64
}

func NewCollector(p *Pebble) *Collector {
	mk := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("shelf_store_pebble_"+name, help, nil, nil)
	}
	counter := prometheus.CounterValue
	gauge := prometheus.GaugeValue
	return &Collector{db: p.db, metrics: []engineMetric{
		{mk("compaction_count_total", "Compactions performed"), counter,
			func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }},
		{mk("compaction_default_count_total", "Default compactions performed"), counter,
			func(m *pebble.Metrics) float64 { return float64(m.Compact.DefaultCount) }},
		{mk("compaction_elision_only_total", "Elision-only compactions performed"), counter,
			func(m *pebble.Metrics) float64 { return float64(m.Compact.ElisionOnlyCount) }},
		{mk("compaction_move_total", "Move compactions performed"), counter,
			func(m *pebble.Metrics) float64 { return float64(m.Compact.MoveCount) }},
		{mk("compaction_read_total", "Read compactions performed"), counter,
			func(m *pebble.Metrics) float64 { return float64(m.Compact.ReadCount) }},
		{mk("compaction_rewrite_total", "Rewrite compactions performed"), counter,
			func(m *pebble.Metrics) float64 { return float64(m.Compact.RewriteCount) }},
		{mk("compaction_multilevel_total", "Multi-level compactions performed"), counter,
			func(m *pebble.Metrics) float64 { return float64(m.Compact.MultiLevelCount) }},
		{mk("compaction_estimated_debt_bytes", "Bytes to compact to reach a stable state"), gauge,
			func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }},
		{mk("compaction_in_progress_bytes", "Bytes being compacted right now"), gauge,
			func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) }},
		{mk("compaction_marked_files_total", "Files marked for compaction"), gauge,
			func(m *pebble.Metrics) float64 { return float64(m.Compact.MarkedFiles) }},

		{mk("memtable_size_bytes", "Current memtable size"), gauge,
			func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }},
		{mk("memtable_count_total", "Current memtable count"), gauge,
			func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }},
		{mk("memtable_zombie_size_bytes", "Zombie memtable size"), gauge,
			func(m *pebble.Metrics) float64 { return float64(m.MemTable.ZombieSize) }},
		{mk("memtable_zombie_count_total", "Zombie memtable count"), gauge,
			func(m *pebble.Metrics) float64 { return float64(m.MemTable.ZombieCount) }},

		{mk("wal_files_total", "Live WAL files"), gauge,
			func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) }},
		{mk("wal_obsolete_files_total", "Obsolete WAL files"), gauge,
			func(m *pebble.Metrics) float64 { return float64(m.WAL.ObsoleteFiles) }},
		{mk("wal_size_bytes", "Live WAL data size"), gauge,
			func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }},
		{mk("wal_bytes_in_total", "Logical bytes written to the WAL"), counter,
			func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesIn) }},
		{mk("wal_bytes_written_total", "Physical bytes written to the WAL"), counter,
			func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) }},
	}}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.db.Metrics()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.vtype, m.read(stats))
	}
}
