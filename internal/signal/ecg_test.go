package signal

import (
	"testing"

	"ecg_go/internal/detector"
	"ecg_go/internal/rate"
)

func TestADCSaturates(t *testing.T) {
	adc := NewADC(12)
	if adc.Max() != 4095 {
		t.Fatalf("Max = %d", adc.Max())
	}
	if got := adc.Convert(0); got != 2048 {
		t.Errorf("Convert(0) = %d, want 2048", got)
	}
	if got := adc.Convert(100); got != 4095 {
		t.Errorf("Convert(100) = %d, want 4095", got)
	}
	if got := adc.Convert(-100); got != 0 {
		t.Errorf("Convert(-100) = %d, want 0", got)
	}
	if NewADC(8).Max() != 255 {
		t.Errorf("Max de 8 bits = %d", NewADC(8).Max())
	}
}

func TestSimulatedBeatsAreDetected(t *testing.T) {
	const fs = 250
	sim := NewECGSim(fs, 100, 0.01)
	samples := NewADC(12).Generate(sim, 20*fs)

	det, err := detector.New(detector.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	est := rate.NewEstimator(fs, rate.DefaultWindow)

	for i, v := range samples {
		if p, ok := det.Process(float64(v)); ok {
			est.AddPeak(p.Index, float64(i)/fs)
		}
	}

	// 20 s a 100 BPM: 33 batimentos, menos os perdidos na calibração
	if n := det.PeakCount(); n < 26 || n > 33 {
		t.Fatalf("%d picos detectados", n)
	}
	bpm := est.WindowedBPM(float64(len(samples)) / fs)
	if bpm < 97 || bpm > 103 {
		t.Errorf("BPM em janela = %.1f, want ~100", bpm)
	}
}
