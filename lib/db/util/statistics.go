package util

import "math"

// ----------------------------------------------------------------------------
// Shard distribution statistics
// ----------------------------------------------------------------------------

// ShardStats summarises how evenly entries are spread across shards
type ShardStats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          int     `json:"min"`
	Max          int     `json:"max"`
	Mean         float64 `json:"mean"`
	Quality      float64 `json:"quality"` // 1 = perfectly even, 0 = everything in one shard
}

// NewShardStats computes distribution statistics for the given shard sizes
func NewShardStats(sizes []int) ShardStats {
	if len(sizes) == 0 {
		return ShardStats{}
	}

	stats := ShardStats{Min: sizes[0], Max: sizes[0]}
	var sum float64
	for _, s := range sizes {
		sum += float64(s)
		stats.Min = min(stats.Min, s)
		stats.Max = max(stats.Max, s)
	}
	stats.Mean = sum / float64(len(sizes))

	var sq float64
	for _, s := range sizes {
		d := float64(s) - stats.Mean
		sq += d * d
	}
	stats.StdDeviation = math.Sqrt(sq / float64(len(sizes)))

	// empty databases are evenly distributed
	if stats.Max == 0 {
		stats.Quality = 1
		return stats
	}

	cv := stats.StdDeviation / stats.Mean
	stats.Quality = (1.0-math.Min(1.0, cv))*0.5 + float64(stats.Min)/float64(stats.Max)*0.5
	return stats
}
