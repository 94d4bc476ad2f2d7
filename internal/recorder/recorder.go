package recorder

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"ecg_go/internal/config"
)

// Cabeçalhos dos arquivos de saída
var (
	SampleHeader = []string{"Time", "Sample", "Packet ID", "Packet Count"}
	PeakHeader   = []string{"Detected R_peak_index", "Digital Value", "Instantaneous_BPM"}
)

// SampleRow é uma amostra recebida
type SampleRow struct {
	Time        float64 // ms no relógio do dispositivo
	Sample      uint16
	PacketID    uint8
	PacketCount int64
}

// PeakRow é um pico confirmado
type PeakRow struct {
	Index int
	Value float64
	BPM   float64 // instantâneo, arredondado a 0,1; zero no primeiro pico
}

// SampleSink recebe linhas de amostra em ordem
type SampleSink interface {
	LogSample(row SampleRow)
}

// PeakSink recebe linhas de pico em ordem
type PeakSink interface {
	LogPeak(row PeakRow)
}

// Sink agrupa os dois registros de uma execução
type Sink interface {
	SampleSink
	PeakSink
	Close() error
}

// Recorder grava amostras e picos em dois CSVs assíncronos
type Recorder struct {
	dir     string
	samples *CSVLogger
	peaks   *CSVLogger
}

// Open cria o diretório da execução e os arquivos CSV
func Open(dir string, cfg config.RecorderConfig) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("erro ao criar diretório de gravação: %w", err)
	}

	samples, err := NewCSVLogger(filepath.Join(dir, cfg.SamplesFile), SampleHeader, cfg.QueueSize)
	if err != nil {
		return nil, err
	}
	peaks, err := NewCSVLogger(filepath.Join(dir, cfg.PeaksFile), PeakHeader, cfg.QueueSize)
	if err != nil {
		samples.Close()
		return nil, err
	}

	return &Recorder{dir: dir, samples: samples, peaks: peaks}, nil
}

// Dir retorna o diretório da execução
func (r *Recorder) Dir() string {
	return r.dir
}

// LogSample implementa SampleSink
func (r *Recorder) LogSample(row SampleRow) {
	r.samples.Log([]string{
		formatFloat(row.Time),
		strconv.Itoa(int(row.Sample)),
		strconv.Itoa(int(row.PacketID)),
		strconv.FormatInt(row.PacketCount, 10),
	})
}

// LogPeak implementa PeakSink
func (r *Recorder) LogPeak(row PeakRow) {
	r.peaks.Log(FormatPeak(row))
}

// FormatPeak converte um pico nas colunas de PeakHeader
func FormatPeak(row PeakRow) []string {
	return []string{
		strconv.Itoa(row.Index),
		formatFloat(row.Value),
		formatFloat(row.BPM),
	}
}

// Close esvazia as filas e fecha os arquivos
func (r *Recorder) Close() error {
	err1 := r.samples.Close()
	err2 := r.peaks.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func formatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MemorySink guarda as linhas em memória (testes e modo batch)
type MemorySink struct {
	mu      sync.Mutex
	samples []SampleRow
	peaks   []PeakRow
	closed  bool
}

// NewMemorySink cria um sink em memória
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// LogSample implementa SampleSink
func (m *MemorySink) LogSample(row SampleRow) {
	m.mu.Lock()
	m.samples = append(m.samples, row)
	m.mu.Unlock()
}

// LogPeak implementa PeakSink
func (m *MemorySink) LogPeak(row PeakRow) {
	m.mu.Lock()
	m.peaks = append(m.peaks, row)
	m.mu.Unlock()
}

// Close implementa Sink
func (m *MemorySink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Samples retorna uma cópia das amostras registradas
func (m *MemorySink) Samples() []SampleRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SampleRow(nil), m.samples...)
}

// Peaks retorna uma cópia dos picos registrados
func (m *MemorySink) Peaks() []PeakRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PeakRow(nil), m.peaks...)
}

// Closed indica se Close foi chamado
func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
