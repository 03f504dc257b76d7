//nolint:mnd
package webserver

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// avgExtractTime returns a string of the average extraction time.
func (d *FSDashboard) avgExtractTime() string {
	return time.Duration(d.src.Metrics.TotalExtractTime.Load() / max(1, d.src.Metrics.TotalExtractCount.Load())).String()
}

// avgExtractSpeed returns a string of the average extraction throughput.
func (d *FSDashboard) avgExtractSpeed() string {
	bytes := d.src.Metrics.TotalExtractBytes.Load()
	ns := d.src.Metrics.TotalExtractTime.Load()

	if ns == 0 {
		return "0 B/s"
	}

	bps := float64(bytes) / (float64(ns) / 1e9)

	return humanize.IBytes(uint64(bps)) + "/s"
}

// totalExtractBytes returns a string of the total extracted bytes.
func (d *FSDashboard) totalExtractBytes() string {
	return humanize.IBytes(clampUint(d.src.Metrics.TotalExtractBytes.Load()))
}

// tarSizeThreshold returns a string of the archive-mode size threshold.
func (d *FSDashboard) tarSizeThreshold() string {
	v := d.src.SizeThreshold()
	if v == 0 {
		return "Disabled"
	}

	return humanize.IBytes(v)
}

// cacheHitRatio returns a string of the content cache hit/miss ratio.
func (d *FSDashboard) cacheHitRatio() string {
	hits := d.fsys.Metrics.TotalCacheHits.Load()
	misses := d.fsys.Metrics.TotalCacheMisses.Load()
	total := hits + misses

	if total == 0 {
		return "0.00%"
	}

	perc := (float64(hits) / float64(total)) * 100

	return fmt.Sprintf("%.2f%%", perc)
}

// clampUint converts a counter to unsigned, flooring negatives at zero.
func clampUint(v int64) uint64 {
	if v < 0 {
		return 0
	}

	return uint64(v)
}

// enabledOrDisabled returns string "Enabled" or "Disabled" based on a boolean.
func enabledOrDisabled(v bool) string {
	if v {
		return "Enabled"
	}

	return "Disabled"
}
