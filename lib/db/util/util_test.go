package util

import (
	"math"
	"testing"
)

func TestHashString(t *testing.T) {
	if HashString("row", 1) != HashString("row", 1) {
		t.Fatal("hash is not deterministic")
	}
	if HashString("row", 1) == HashString("row", 2) {
		t.Error("seed does not change the hash")
	}
	if HashString("a", 0) == HashString("b", 0) {
		t.Error("different rows share a hash")
	}
	// FNV-1a of the empty string is the offset basis
	if got := HashString("", 0); uint64(got) != fnvOffset64 {
		t.Errorf("HashString(\"\") = %d, want %d", got, uint64(fnvOffset64))
	}
}

func TestNodeID(t *testing.T) {
	for _, name := range []string{"", "node-1", "node-2"} {
		if NodeID(name) == 0 {
			t.Errorf("NodeID(%q) = 0", name)
		}
		if NodeID(name) != NodeID(name) {
			t.Errorf("NodeID(%q) is not stable", name)
		}
	}
	if NodeID("node-1") == NodeID("node-2") {
		t.Error("distinct nodes share an id")
	}
}

func TestNewStats(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Stats
	}{
		{"empty", nil, Stats{}},
		{"single", []float64{4}, Stats{Min: 4, Max: 4, Mean: 4, MinMaxRatio: 1}},
		{"spread", []float64{2, 4, 4, 4, 5, 5, 7, 9}, Stats{StdDeviation: 2, Min: 2, Max: 9, Mean: 5, MinMaxRatio: 2.0 / 9.0}},
		{"zeros", []float64{0, 0}, Stats{MinMaxRatio: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewStats(tt.values)
			if math.Abs(got.StdDeviation-tt.want.StdDeviation) > 1e-9 ||
				got.Min != tt.want.Min || got.Max != tt.want.Max || got.Mean != tt.want.Mean ||
				math.Abs(got.MinMaxRatio-tt.want.MinMaxRatio) > 1e-9 {
				t.Errorf("NewStats(%v) = %+v, want %+v", tt.values, got, tt.want)
			}
		})
	}
}

func TestDistributionQuality(t *testing.T) {
	if q := NewDistributionStats([]float64{10, 10, 10}).DistributionQuality; q != 1 {
		t.Errorf("even distribution quality = %f, want 1", q)
	}
	uneven := NewDistributionStats([]float64{0, 0, 30}).DistributionQuality
	if uneven >= 0.5 {
		t.Errorf("uneven distribution quality = %f, want < 0.5", uneven)
	}
}

func TestCellSizeHistogram(t *testing.T) {
	h := NewCellSizeHistogram()
	if h.AverageSize() != 0 || h.MedianEstimate() != 0 {
		t.Fatal("empty histogram should estimate 0")
	}

	for i := 0; i < 90; i++ {
		h.AddSample(20) // bucket (16, 32]
	}
	for i := 0; i < 10; i++ {
		h.AddSample(2000) // bucket (1024, 4096]
	}

	if h.Count() != 100 {
		t.Errorf("Count() = %d, want 100", h.Count())
	}
	if got := h.AverageSize(); got != (90*20+10*2000)/100 {
		t.Errorf("AverageSize() = %d", got)
	}
	if got := h.MedianEstimate(); got != 24 {
		t.Errorf("MedianEstimate() = %d, want 24", got)
	}
	if got := h.PercentileEstimate(99); got != 2560 {
		t.Errorf("PercentileEstimate(99) = %d, want 2560", got)
	}
	if got := h.PercentileEstimate(101); got != 0 {
		t.Errorf("PercentileEstimate(101) = %d, want 0", got)
	}

	h.AddSample(1 << 30)
	if got := h.PercentileEstimate(100); got != 2<<20 {
		t.Errorf("PercentileEstimate(100) = %d, want %d", got, 2<<20)
	}
	h.AddSample(1)
	if got := h.PercentileEstimate(0); got != 8 {
		t.Errorf("PercentileEstimate(0) = %d, want 8", got)
	}
}
