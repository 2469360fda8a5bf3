package util

import "testing"

func TestNewShardStats(t *testing.T) {
	tests := []struct {
		name    string
		sizes   []int
		quality float64
		min     int
		max     int
	}{
		{"empty", nil, 0, 0, 0},
		{"all zero", []int{0, 0, 0}, 1, 0, 0},
		{"even", []int{10, 10, 10, 10}, 1, 10, 10},
		{"skewed", []int{0, 0, 0, 40}, 0, 0, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewShardStats(tt.sizes)
			if s.Quality != tt.quality {
				t.Errorf("quality: expected %v, got %v", tt.quality, s.Quality)
			}
			if s.Min != tt.min || s.Max != tt.max {
				t.Errorf("min/max: expected %d/%d, got %d/%d", tt.min, tt.max, s.Min, s.Max)
			}
		})
	}
}
