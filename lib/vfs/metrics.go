package vfs

import (
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	readOps       = metrics.GetOrCreateCounter(`kvfs_vfs_ops_total{op="read"}`)
	writeOps      = metrics.GetOrCreateCounter(`kvfs_vfs_ops_total{op="write"}`)
	readBytes     = metrics.GetOrCreateCounter(`kvfs_vfs_bytes_total{op="read"}`)
	writeBytes    = metrics.GetOrCreateCounter(`kvfs_vfs_bytes_total{op="write"}`)
	opErrors      = metrics.GetOrCreateCounter(`kvfs_vfs_errors_total`)
	openFiles     = metrics.GetOrCreateCounter(`kvfs_vfs_open_files`)
	readDuration  = metrics.GetOrCreateHistogram(`kvfs_vfs_op_duration_seconds{op="read"}`)
	writeDuration = metrics.GetOrCreateHistogram(`kvfs_vfs_op_duration_seconds{op="write"}`)
)

// observe records the outcome of a read or write.
func observe(ops *metrics.Counter, bytes *metrics.Counter, h *metrics.Histogram, start time.Time, n int, err error) {
	if err != nil {
		opErrors.Inc()
		return
	}
	ops.Inc()
	bytes.Add(n)
	h.UpdateDuration(start)
}
