package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// Distribution statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes the population standard deviation, minimum, maximum and
// mean of values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDeviation = math.Sqrt(sq / float64(len(values)))

	s.MinMaxRatio = 1
	if s.Max > 0 {
		s.MinMaxRatio = s.Min / s.Max
	}
	return s
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats rates how evenly rows are spread over the shards of an
// engine. A quality of 1 means every shard holds the same number of rows.
func NewDistributionStats(shardSizes []float64) DistributionStats {
	stats := NewStats(shardSizes)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	// lower coefficient of variation and higher min/max ratio are better
	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// ----------------------------------------------------------------------------
// CellSizeHistogram
// ----------------------------------------------------------------------------

// cellSizeBounds are the upper bucket bounds in bytes. Lock claims and counter
// marks are small, so the resolution is highest below 1KB.
var cellSizeBounds = []int{16, 32, 64, 128, 256, 512, 1024, 4096, 16384, 65536, 1 << 20}

// CellSizeHistogram tracks the size distribution of sampled cells (column
// plus value) without keeping the samples.
//
// Thread-safe: All methods are safe for concurrent use
type CellSizeHistogram struct {
	mu      sync.RWMutex
	buckets []int64 // len(cellSizeBounds)+1, the last one is unbounded
	count   int64
	sum     int64
}

// NewCellSizeHistogram creates an empty histogram
func NewCellSizeHistogram() *CellSizeHistogram {
	return &CellSizeHistogram{buckets: make([]int64, len(cellSizeBounds)+1)}
}

// AddSample records a cell of size bytes
func (h *CellSizeHistogram) AddSample(size int) {
	i := len(cellSizeBounds)
	for b, bound := range cellSizeBounds {
		if size <= bound {
			i = b
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets[i]++
	h.count++
	h.sum += int64(size)
}

// Count returns the number of samples
func (h *CellSizeHistogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// AverageSize returns the exact mean of all samples
func (h *CellSizeHistogram) AverageSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median size
func (h *CellSizeHistogram) MedianEstimate() int {
	return h.PercentileEstimate(50)
}

// PercentileEstimate estimates the given percentile (0-100) as the middle of
// the bucket it falls into. Out of range percentiles return 0.
func (h *CellSizeHistogram) PercentileEstimate(percentile int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := max(1, int64(math.Ceil(float64(h.count)*float64(percentile)/100.0)))
	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative < target {
			continue
		}
		switch {
		case i == 0:
			return cellSizeBounds[0] / 2
		case i < len(cellSizeBounds):
			return (cellSizeBounds[i-1] + cellSizeBounds[i]) / 2
		default:
			return cellSizeBounds[len(cellSizeBounds)-1] * 2
		}
	}
	return int(h.sum / h.count)
}
