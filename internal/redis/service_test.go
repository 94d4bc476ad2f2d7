package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecg_go/internal/config"
	"ecg_go/internal/models"
)

func disabledService() *Service {
	return NewService(config.RedisConfig{Prefix: "ecg", Enabled: false})
}

func TestKeyFormatting(t *testing.T) {
	c := NewClient(config.RedisConfig{Prefix: "ecg"})
	if got := c.Key("runs", "abc", "peaks"); got != "ecg:runs:abc:peaks" {
		t.Errorf("Key = %q", got)
	}

	bare := NewClient(config.RedisConfig{})
	if got := bare.Key("status"); got != "status" {
		t.Errorf("Key sem prefixo = %q", got)
	}
}

func TestDisabledServiceIsOffline(t *testing.T) {
	s := disabledService()
	defer s.Shutdown()

	if s.IsConnected() {
		t.Fatal("serviço desabilitado não deveria estar conectado")
	}

	// Observadores não bloqueiam nem falham
	s.OnPeak(models.PeakEvent{RunID: "r1", Index: 10})
	s.OnRate(models.RateUpdate{RunID: "r1"})
	s.OnStatus(models.MonitorStatus{Status: models.StatusRunning})

	ctx := context.Background()
	if _, err := s.GetStatus(ctx); !errors.Is(err, ErrDisabled) {
		t.Errorf("GetStatus err = %v, want ErrDisabled", err)
	}
	if _, err := s.GetRate(ctx); !errors.Is(err, ErrDisabled) {
		t.Errorf("GetRate err = %v, want ErrDisabled", err)
	}
	if _, err := s.GetPeaks(ctx, "r1", 10); !errors.Is(err, ErrDisabled) {
		t.Errorf("GetPeaks err = %v, want ErrDisabled", err)
	}
	if err := s.client.Connect(ctx); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect err = %v, want ErrDisabled", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	s := disabledService()
	s.Shutdown()
	s.Shutdown()
}

func TestParseRate(t *testing.T) {
	out := parseRate(map[string]string{
		"run_id":            "r1",
		"windowed_bpm":      "72.5",
		"instantaneous_bpm": "71.4",
		"peak_count":        "12",
		"sample_time":       "8004",
		"timestamp":         "1700000000500",
	})

	if out.RunID != "r1" || out.WindowedBPM != 72.5 || out.InstantaneousBPM != 71.4 {
		t.Errorf("parseRate = %+v", out)
	}
	if out.PeakCount != 12 || out.SampleTime != 8004 {
		t.Errorf("parseRate = %+v", out)
	}
	if !out.Timestamp.Equal(time.UnixMilli(1700000000500)) {
		t.Errorf("Timestamp = %v", out.Timestamp)
	}
}

func TestParseRateIgnoresGarbage(t *testing.T) {
	out := parseRate(map[string]string{"windowed_bpm": "x", "timestamp": ""})
	if out.WindowedBPM != 0 || !out.Timestamp.IsZero() {
		t.Errorf("parseRate = %+v", out)
	}
}
