package vectorenc

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		vector []float64
	}{
		{
			name:   "simple vector",
			vector: []float64{1.0, 2.0, 3.0},
		},
		{
			name:   "single element",
			vector: []float64{42.0},
		},
		{
			name:   "negative and fractional",
			vector: []float64{-0.25, 12.5, -1e-9},
		},
		{
			name:   "precision stress",
			vector: []float64{0.1, 0.2, 0.30000000000000004, math.Pi, 1.0 / 3.0},
		},
		{
			name:   "extreme magnitudes",
			vector: []float64{math.MaxFloat64, math.SmallestNonzeroFloat64, -math.MaxFloat64},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(Encode(tt.vector))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(decoded) != len(tt.vector) {
				t.Fatalf("Decode() length = %d, want %d", len(decoded), len(tt.vector))
			}
			for i := range tt.vector {
				if decoded[i] != tt.vector[i] {
					t.Errorf("Decode()[%d] = %v, want %v", i, decoded[i], tt.vector[i])
				}
			}
		})
	}
}

func TestRoundTripLargeVector(t *testing.T) {
	vector := make([]float64, 1536)
	for i := range vector {
		vector[i] = math.Sin(float64(i)) * 0.1
	}

	decoded, err := Decode(Encode(vector))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	for i := range vector {
		if decoded[i] != vector[i] {
			t.Fatalf("Decode()[%d] = %v, want %v", i, decoded[i], vector[i])
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	if got := Encode(nil); got != "" {
		t.Errorf("Encode(nil) = %q, want empty", got)
	}
	if got := Encode([]float64{}); got != "" {
		t.Errorf("Encode(empty) = %q, want empty", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "garbage", text: "not a vector"},
		{name: "trailing separator", text: "1.0,2.0,"},
		{name: "bad token", text: "1.0,x,3.0"},
		{name: "only separator", text: ","},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.text); !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode(%q) error = %v, want ErrMalformed", tt.text, err)
			}
		})
	}
}
