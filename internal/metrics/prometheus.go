package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal pacotes decodificados
	PacketsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecg_packets_total",
			Help: "Total number of decoded ECG packets",
		},
	)

	// SamplesTotal amostras processadas pelo detector
	SamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecg_samples_total",
			Help: "Total number of samples fed to the peak detector",
		},
	)

	// BytesReceived bytes lidos da fonte
	BytesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecg_source_bytes_total",
			Help: "Total number of bytes read from the byte source",
		},
		[]string{"source"},
	)

	// ResyncsTotal ressincronizações do reassembler
	ResyncsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecg_resyncs_total",
			Help: "Total number of framing resynchronizations",
		},
	)

	// DroppedBytes bytes descartados ao ressincronizar
	DroppedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecg_dropped_bytes_total",
			Help: "Total number of bytes discarded while resynchronizing",
		},
	)

	// SequenceGaps saltos no número de sequência
	SequenceGaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecg_sequence_gaps_total",
			Help: "Total number of packet sequence discontinuities",
		},
	)

	// PeaksTotal picos R confirmados
	PeaksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecg_peaks_total",
			Help: "Total number of committed R-peaks",
		},
	)

	// BPM frequência atual por tipo (instantaneous, windowed)
	BPM = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ecg_bpm",
			Help: "Current heart rate in beats per minute",
		},
		[]string{"kind"},
	)

	// DetectorThreshold limiar calibrado
	DetectorThreshold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecg_detector_threshold",
			Help: "Calibrated integrated-signal threshold",
		},
	)

	// SourceIdle 1 quando a fonte está sem dados além do limite
	SourceIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecg_source_idle",
			Help: "Whether the byte source is starved (1) or streaming (0)",
		},
	)

	// RunsTotal execuções encerradas por motivo
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecg_runs_total",
			Help: "Total number of finished runs by stop reason",
		},
		[]string{"reason"},
	)

	// PacketProcessing latência do processamento de um pacote
	PacketProcessing = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecg_packet_processing_seconds",
			Help:    "Time spent running a packet through detector and sinks",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	// PublishErrors falhas ao publicar eventos em serviços externos
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecg_publish_errors_total",
			Help: "Total number of failed event publications",
		},
		[]string{"target"},
	)

	// RequestsTotal requisições HTTP da API
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration duração das requisições HTTP
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// WebSocketClients clientes conectados
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecg_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)
)

// SetBPM atualiza os dois gauges de frequência. Valores infinitos são ignorados.
func SetBPM(instantaneous, windowed float64) {
	if !math.IsInf(instantaneous, 0) {
		BPM.WithLabelValues("instantaneous").Set(instantaneous)
	}
	if !math.IsInf(windowed, 0) {
		BPM.WithLabelValues("windowed").Set(windowed)
	}
}
