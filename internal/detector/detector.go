package detector

import "fmt"

// State é o estado da máquina de detecção
type State int

const (
	// StateCalibrating acumula valores integrados para definir o limiar
	StateCalibrating State = iota
	// StateArmed procura o início de um novo pico
	StateArmed
	// StateInPeak acompanha um candidato acima do limiar
	StateInPeak
)

// String retorna o nome do estado
func (s State) String() string {
	switch s {
	case StateCalibrating:
		return "calibrating"
	case StateArmed:
		return "armed"
	case StateInPeak:
		return "in_peak"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Peak é um pico R confirmado
type Peak struct {
	Index int     `json:"index"` // índice da amostra bruta no fluxo
	Value float64 `json:"value"` // amplitude bruta nesse índice
}

// Detector encontra picos R por derivada, quadrado, média móvel e limiar
// calibrado. Uma instância por execução; não é seguro para uso concorrente.
type Detector struct {
	cfg Config

	calibrationLen int
	refractory     int
	warmup         int

	count int // índice da amostra atual

	raw      []float64
	squared  []float64
	integral float64

	state       State
	calibration []float64
	threshold   float64

	sinceLastPeak int
	peakStart     int
	peakMaxValue  float64
	peakMaxIndex  int

	peaks []int
}

// New cria um detector em calibração
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		cfg:            cfg,
		calibrationLen: cfg.CalibrationSamples(),
		refractory:     cfg.RefractorySamples(),
		warmup:         cfg.WarmupSamples(),
		raw:            make([]float64, cfg.rawHistory()),
		squared:        make([]float64, cfg.MovingAverageWindow),
		state:          StateCalibrating,
	}
	d.calibration = make([]float64, 0, d.calibrationLen)
	d.sinceLastPeak = d.refractory + 1
	return d, nil
}

// Process consome uma amostra e retorna o pico confirmado nela, se houver.
// O índice do pico aponta para a amostra bruta máxima do candidato, que
// normalmente é anterior à amostra atual.
func (d *Detector) Process(sample float64) (Peak, bool) {
	p, ok := d.step(sample)
	d.count++
	return p, ok
}

func (d *Detector) step(sample float64) (Peak, bool) {
	n := d.count
	d.raw[n%len(d.raw)] = sample

	if n < d.cfg.SlopeSpacing {
		return Peak{}, false
	}

	diff := sample - d.raw[(n-d.cfg.SlopeSpacing)%len(d.raw)]
	sq := diff * diff

	d.squared[n%len(d.squared)] = sq

	if n < d.warmup {
		return Peak{}, false
	}

	d.integral = d.windowMean()

	if d.state == StateCalibrating {
		d.calibrate(d.integral)
		return Peak{}, false
	}

	return d.checkForPeak(d.integral)
}

func (d *Detector) windowMean() float64 {
	var sum float64
	for _, v := range d.squared {
		sum += v
	}
	return sum / float64(len(d.squared))
}

func (d *Detector) calibrate(integrated float64) {
	if len(d.calibration) < d.calibrationLen {
		d.calibration = append(d.calibration, integrated)
	}
	if len(d.calibration) == d.calibrationLen {
		d.threshold = percentile(d.calibration, d.cfg.Percentile)
		d.calibration = nil
		d.state = StateArmed
	}
}

func (d *Detector) checkForPeak(integrated float64) (Peak, bool) {
	d.sinceLastPeak++

	if d.state == StateArmed {
		if integrated > d.threshold && d.sinceLastPeak > d.refractory {
			d.state = StateInPeak
			d.peakStart = d.count
			d.peakMaxIndex = d.count
			d.peakMaxValue = integrated
		}
		return Peak{}, false
	}

	if integrated > d.peakMaxValue {
		d.peakMaxValue = integrated
		d.peakMaxIndex = d.count
	}
	if integrated < d.threshold {
		return d.commit(d.count), true
	}
	return Peak{}, false
}

// commit varre o buffer bruto em [peakStart, end) e registra o máximo.
// Índices que já saíram do buffer circular não são considerados.
func (d *Detector) commit(end int) Peak {
	start := d.peakStart
	if oldest := end - len(d.raw); start < oldest {
		start = oldest
	}

	p := Peak{Index: d.peakMaxIndex}
	found := false
	for i := start; i < end; i++ {
		v := d.raw[i%len(d.raw)]
		if !found || v > p.Value {
			p = Peak{Index: i, Value: v}
			found = true
		}
	}

	d.peaks = append(d.peaks, p.Index)
	d.sinceLastPeak = 0
	d.state = StateArmed
	return p
}

// Flush encerra a execução. Com FlushPendingOnStop, um candidato pendente é
// confirmado como se o sinal tivesse caído abaixo do limiar agora.
func (d *Detector) Flush() (Peak, bool) {
	if d.state != StateInPeak {
		return Peak{}, false
	}
	if !d.cfg.FlushPendingOnStop {
		d.state = StateArmed
		return Peak{}, false
	}
	return d.commit(d.count), true
}

// Config retorna os parâmetros do detector
func (d *Detector) Config() Config {
	return d.cfg
}

// State retorna o estado atual
func (d *Detector) State() State {
	return d.state
}

// Calibrated indica se o limiar já foi definido
func (d *Detector) Calibrated() bool {
	return d.state != StateCalibrating
}

// Threshold retorna o limiar calibrado (zero durante a calibração)
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// SampleCount retorna quantas amostras foram processadas
func (d *Detector) SampleCount() int {
	return d.count
}

// LastIntegrated retorna o último valor integrado calculado
func (d *Detector) LastIntegrated() float64 {
	return d.integral
}

// Peaks retorna uma cópia dos índices de picos confirmados
func (d *Detector) Peaks() []int {
	out := make([]int, len(d.peaks))
	copy(out, d.peaks)
	return out
}

// PeakCount retorna o total de picos confirmados
func (d *Detector) PeakCount() int {
	return len(d.peaks)
}
