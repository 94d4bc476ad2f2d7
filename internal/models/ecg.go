package models

import "time"

// Status possíveis do monitor
const (
	StatusIdle     = "idle"     // nenhuma execução em andamento
	StatusStarting = "starting" // abrindo a fonte
	StatusRunning  = "running"  // recebendo dados
	StatusStarved  = "starved"  // sem bytes além do tempo limite
	StatusStopped  = "stopped"  // execução encerrada
	StatusError    = "error"    // falha na fonte
)

// PeakEvent representa um pico R confirmado
type PeakEvent struct {
	RunID            string    `json:"runId"`
	Number           int       `json:"number"`                     // ordem do pico na execução, a partir de 1
	Index            int       `json:"index"`                      // índice da amostra bruta
	Value            float64   `json:"value"`                      // amplitude bruta
	SampleTime       float64   `json:"sampleTime"`                 // ms, relógio do dispositivo
	InstantaneousBPM float64   `json:"instantaneousBpm,omitempty"` // ausente no primeiro pico
	HasBPM           bool      `json:"hasBpm"`
	Timestamp        time.Time `json:"timestamp"`
}

// RateUpdate representa um novo cálculo de BPM em janela
type RateUpdate struct {
	RunID            string    `json:"runId"`
	WindowedBPM      float64   `json:"windowedBpm"`
	InstantaneousBPM float64   `json:"instantaneousBpm"`
	PeakCount        int       `json:"peakCount"`
	SampleTime       float64   `json:"sampleTime"`
	Timestamp        time.Time `json:"timestamp"`
}

// MonitorStatus representa o status atual do monitor
type MonitorStatus struct {
	Status    string    `json:"status"`
	RunID     string    `json:"runId,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	LastError string    `json:"lastError,omitempty"`
}

// RunInfo descreve uma execução (do START ao fim do fluxo)
type RunInfo struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
	OutputDir string    `json:"outputDir,omitempty"`
	Reason    string    `json:"reason,omitempty"` // motivo do encerramento
}

// Snapshot é uma cópia do estado publicado pela goroutine de ingestão
type Snapshot struct {
	Run    RunInfo `json:"run"`
	Status string  `json:"status"`

	Packets      int64 `json:"packets"`
	Samples      int64 `json:"samples"`
	Resyncs      int64 `json:"resyncs"`
	DroppedBytes int64 `json:"droppedBytes"`
	SequenceGaps int64 `json:"sequenceGaps"`
	LastSeq      uint8 `json:"lastSeq"`

	DetectorState string  `json:"detectorState"`
	Calibrated    bool    `json:"calibrated"`
	Threshold     float64 `json:"threshold"`

	PeakCount        int     `json:"peakCount"`
	InstantaneousBPM float64 `json:"instantaneousBpm"`
	WindowedBPM      float64 `json:"windowedBpm"`

	LastSampleTime float64   `json:"lastSampleTime"`
	LastDataAt     time.Time `json:"lastDataAt"`
	Idle           bool      `json:"idle"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SamplePoint é uma amostra com seu tempo sintetizado
type SamplePoint struct {
	Time  float64 `json:"t"` // ms
	Value uint16  `json:"v"`
}
