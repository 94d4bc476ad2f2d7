package utils

import (
	"math"
	"testing"
	"time"
)

func TestRoundTo(t *testing.T) {
	cases := []struct {
		in       float64
		decimals int
		want     float64
	}{
		{1000.00004, 4, 1000.0},
		{1000.00006, 4, 1000.0001},
		{72.349, 1, 72.3},
		{120, 1, 120},
	}
	for _, c := range cases {
		if got := RoundTo(c.in, c.decimals); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("RoundTo(%v, %d) = %v, want %v", c.in, c.decimals, got, c.want)
		}
	}

	if got := RoundTo(math.Inf(1), 1); !math.IsInf(got, 1) {
		t.Errorf("RoundTo(+Inf) = %v", got)
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	if got := BytesToFloat32(Float32ToBytes(72.5)); got != 72.5 {
		t.Errorf("got %v", got)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(90 * time.Second); got != "1m 30s" {
		t.Errorf("got %q", got)
	}
	if got := FormatDuration(3*time.Hour + 2*time.Second); got != "3h 0m 2s" {
		t.Errorf("got %q", got)
	}
}

func TestHexDump(t *testing.T) {
	if got := HexDump([]byte{0xAA, 0x55, 0x01}, 2); got != "AA 55" {
		t.Errorf("got %q", got)
	}
}
