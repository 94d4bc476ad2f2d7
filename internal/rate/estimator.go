package rate

import (
	"math"
	"time"

	"ecg_go/pkg/utils"
)

// DefaultWindow é a janela da média de frequência
const DefaultWindow = 5 * time.Second

// PeakEvent associa o índice de um pico ao instante (em segundos) em que foi registrado
type PeakEvent struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
}

// Estimator converte picos em frequência instantânea e média em janela.
// Uma instância por execução; o chamador sincroniza o acesso.
type Estimator struct {
	sampleRate float64
	window     float64 // segundos

	peaks         []PeakEvent
	instantaneous float64
	current       float64
	history       []float64
}

// NewEstimator cria um estimador; window <= 0 usa DefaultWindow
func NewEstimator(sampleRate int, window time.Duration) *Estimator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Estimator{
		sampleRate: float64(sampleRate),
		window:     window.Seconds(),
	}
}

// AddPeak registra um pico. A partir do segundo pico retorna o BPM instantâneo
// do intervalo RR até o pico anterior. Dois picos no mesmo índice produzem +Inf.
func (e *Estimator) AddPeak(index int, timestamp float64) (float64, bool) {
	e.peaks = append(e.peaks, PeakEvent{Index: index, Timestamp: timestamp})
	if len(e.peaks) < 2 {
		return 0, false
	}

	prev := e.peaks[len(e.peaks)-2]
	e.instantaneous = e.bpm(float64(index - prev.Index))
	e.history = append(e.history, utils.RoundTo(e.instantaneous, 1))
	return e.instantaneous, true
}

// WindowedBPM calcula a média dos intervalos RR dos picos com timestamp em
// [now-window, now]. Com menos de dois picos na janela mantém o valor anterior.
func (e *Estimator) WindowedBPM(now float64) float64 {
	cutoff := now - e.window

	var (
		prev  = -1
		sum   float64
		count int
	)
	for _, p := range e.peaks {
		if p.Timestamp < cutoff {
			continue
		}
		if prev >= 0 {
			sum += float64(p.Index - prev)
			count++
		}
		prev = p.Index
	}

	if count > 0 {
		e.current = e.bpm(sum / float64(count))
	}
	return e.current
}

// bpm converte um intervalo RR em amostras para batimentos por minuto
func (e *Estimator) bpm(rrSamples float64) float64 {
	rrSeconds := rrSamples / e.sampleRate
	if rrSeconds == 0 {
		return math.Inf(1)
	}
	return 60 / rrSeconds
}

// Instantaneous retorna o último BPM instantâneo
func (e *Estimator) Instantaneous() float64 {
	return e.instantaneous
}

// Current retorna o último BPM em janela calculado
func (e *Estimator) Current() float64 {
	return e.current
}

// History retorna uma cópia dos BPMs instantâneos arredondados a 0,1
func (e *Estimator) History() []float64 {
	out := make([]float64, len(e.history))
	copy(out, e.history)
	return out
}

// Peaks retorna uma cópia dos picos registrados
func (e *Estimator) Peaks() []PeakEvent {
	out := make([]PeakEvent, len(e.peaks))
	copy(out, e.peaks)
	return out
}

// PeakCount retorna o total de picos registrados
func (e *Estimator) PeakCount() int {
	return len(e.peaks)
}

// Window retorna a janela configurada
func (e *Estimator) Window() time.Duration {
	return time.Duration(e.window * float64(time.Second))
}
