package recorder

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ecg_go/internal/config"
)

func testRecorderConfig() config.RecorderConfig {
	return config.RecorderConfig{
		SamplesFile:  "samples.csv",
		PeaksFile:    "peaks.csv",
		MetadataFile: "meta.txt",
		QueueSize:    4,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestRecorderWritesBothFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	r, err := Open(dir, testRecorderConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Mais linhas que a fila comporta
	for i := 0; i < 20; i++ {
		r.LogSample(SampleRow{Time: 1000 + float64(i)*4, Sample: uint16(2000 + i), PacketID: uint8(i/10 + 1), PacketCount: int64(i/10 + 1)})
	}
	r.LogPeak(PeakRow{Index: 812, Value: 3100, BPM: 0})
	r.LogPeak(PeakRow{Index: 1015, Value: 3050, BPM: 73.9})
	r.LogPeak(PeakRow{Index: 1015, Value: 3050, BPM: math.Inf(1)})

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	samples := readCSV(t, filepath.Join(dir, "samples.csv"))
	if len(samples) != 21 {
		t.Fatalf("%d linhas de amostra, want 21", len(samples))
	}
	if strings.Join(samples[0], ",") != "Time,Sample,Packet ID,Packet Count" {
		t.Errorf("cabeçalho = %v", samples[0])
	}
	if strings.Join(samples[1], ",") != "1000,2000,1,1" || strings.Join(samples[20], ",") != "1076,2019,2,2" {
		t.Errorf("linhas = %v ... %v", samples[1], samples[20])
	}

	peaks := readCSV(t, filepath.Join(dir, "peaks.csv"))
	if len(peaks) != 4 {
		t.Fatalf("%d linhas de pico, want 4", len(peaks))
	}
	if strings.Join(peaks[2], ",") != "1015,3050,73.9" || peaks[3][2] != "inf" {
		t.Errorf("picos = %v", peaks)
	}
}

func TestCSVLoggerCloseIsIdempotent(t *testing.T) {
	l, err := NewCSVLogger(filepath.Join(t.TempDir(), "x.csv"), []string{"a"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	l.Log([]string{"1"})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if l.Written() != 1 {
		t.Errorf("Written = %d, want 1", l.Written())
	}
}

func TestOpenFailsOnInvalidDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "arquivo")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(filepath.Join(file, "sub"), testRecorderConfig()); err == nil {
		t.Fatal("esperado erro ao criar diretório dentro de um arquivo")
	}
}

func TestMemorySink(t *testing.T) {
	var sink Sink = NewMemorySink()
	sink.LogSample(SampleRow{Time: 4, Sample: 1})
	sink.LogPeak(PeakRow{Index: 3})
	sink.Close()

	m := sink.(*MemorySink)
	if len(m.Samples()) != 1 || len(m.Peaks()) != 1 || !m.Closed() {
		t.Errorf("samples=%v peaks=%v closed=%v", m.Samples(), m.Peaks(), m.Closed())
	}
}

func TestMetadata(t *testing.T) {
	m := Metadata{
		FileName:    "paciente_01",
		StartedAt:   time.Date(2026, 3, 2, 14, 5, 0, 0, time.UTC),
		Duration:    90 * time.Second,
		SampleRate:  250,
		SampleWidth: 2,
		Samples:     22490,
		Peaks:       110,
		Sensor:      "AD8232 via ESP32",
		Transport:   "serial:///dev/ttyUSB0",
	}
	if m.ExpectedSamples() != 22500 {
		t.Errorf("ExpectedSamples = %d", m.ExpectedSamples())
	}

	path, err := WriteMetadata(t.TempDir(), "meta.txt", m)
	if err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"- File Name: paciente_01",
		"- Date/Time: 2026-03-02 14:05:00",
		"- Duration: 1m 30s",
		"- Total Expected Samples: 22500",
		"- ADC Resolution: 12-bit (0-4095)",
		"(No additional user notes provided)",
		"End of metadata file",
	} {
		if !strings.Contains(string(content), want) {
			t.Errorf("metadados sem %q", want)
		}
	}
}
