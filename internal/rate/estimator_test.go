package rate

import (
	"math"
	"testing"
	"time"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFirstPeakHasNoRate(t *testing.T) {
	e := NewEstimator(250, 5*time.Second)
	if _, ok := e.AddPeak(100, 0.4); ok {
		t.Fatal("primeiro pico não deveria produzir BPM")
	}
	if len(e.History()) != 0 || e.Instantaneous() != 0 {
		t.Errorf("histórico=%v instantâneo=%v", e.History(), e.Instantaneous())
	}
}

func TestInstantaneousBPM(t *testing.T) {
	e := NewEstimator(250, 5*time.Second)
	e.AddPeak(0, 0)
	bpm, ok := e.AddPeak(125, 0.5)
	if !ok || !approx(bpm, 120) {
		t.Fatalf("bpm = %v ok=%v, want 120", bpm, ok)
	}

	// O primeiro item do histórico corresponde ao segundo pico
	e.AddPeak(325, 1.3)
	history := e.History()
	if len(history) != 2 || history[0] != 120 || history[1] != 75 {
		t.Errorf("histórico = %v, want [120 75]", history)
	}
}

func TestHistoryRoundedToOneDecimal(t *testing.T) {
	e := NewEstimator(250, 5*time.Second)
	e.AddPeak(0, 0)
	bpm, _ := e.AddPeak(210, 0.84) // 71.428...
	if approx(bpm, 71.4) {
		t.Fatalf("valor instantâneo não deveria ser arredondado: %v", bpm)
	}
	if h := e.History(); h[0] != 71.4 {
		t.Errorf("histórico = %v, want [71.4]", h)
	}
}

func TestZeroIntervalIsInfinite(t *testing.T) {
	e := NewEstimator(250, 5*time.Second)
	e.AddPeak(500, 2)
	bpm, ok := e.AddPeak(500, 2)
	if !ok || !math.IsInf(bpm, 1) {
		t.Fatalf("bpm = %v, want +Inf", bpm)
	}
	if h := e.History(); !math.IsInf(h[0], 1) {
		t.Errorf("histórico = %v", h)
	}
}

func TestWindowedBPM(t *testing.T) {
	e := NewEstimator(250, 5*time.Second)
	// RR de 200, 250 e 300 amostras: média 250 → 60 BPM
	e.AddPeak(0, 0)
	e.AddPeak(200, 0.8)
	e.AddPeak(450, 1.8)
	e.AddPeak(750, 3.0)

	if got := e.WindowedBPM(3.0); !approx(got, 60) {
		t.Errorf("WindowedBPM = %v, want 60", got)
	}
	if !approx(e.Current(), 60) {
		t.Errorf("Current = %v", e.Current())
	}
}

func TestWindowedBPMExcludesOldPeaks(t *testing.T) {
	e := NewEstimator(250, 5*time.Second)
	e.AddPeak(0, 0)    // fora da janela em now=6
	e.AddPeak(500, 2)  // RR 500 nunca entra na média
	e.AddPeak(750, 3)  // RR 250
	e.AddPeak(1000, 4) // RR 250
	if got := e.WindowedBPM(6); !approx(got, 60) {
		t.Errorf("WindowedBPM = %v, want 60", got)
	}
}

func TestWindowedBPMRetainsPreviousValue(t *testing.T) {
	e := NewEstimator(250, 5*time.Second)
	if got := e.WindowedBPM(0); got != 0 {
		t.Fatalf("valor inicial = %v, want 0", got)
	}

	e.AddPeak(0, 0)
	e.AddPeak(250, 1)
	prev := e.WindowedBPM(1)
	if !approx(prev, 60) {
		t.Fatalf("WindowedBPM = %v, want 60", prev)
	}

	// Picos em t=1 e t=6.5: o intervalo atravessa a borda da janela e só
	// um pico fica dentro dela
	e.AddPeak(1625, 6.5)
	if got := e.WindowedBPM(6.5); got != prev {
		t.Errorf("WindowedBPM = %v, want valor anterior %v", got, prev)
	}
}

func TestWindowedBPMSinglePeakInWindow(t *testing.T) {
	e := NewEstimator(250, 5*time.Second)
	e.AddPeak(0, 0)
	e.AddPeak(1500, 6)
	if got := e.WindowedBPM(6); got != 0 {
		t.Errorf("WindowedBPM = %v, want 0 (sem valor anterior)", got)
	}
}

func TestDefaultWindow(t *testing.T) {
	e := NewEstimator(250, 0)
	if e.Window() != DefaultWindow {
		t.Errorf("Window = %v, want %v", e.Window(), DefaultWindow)
	}
}
