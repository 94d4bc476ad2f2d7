package signal

import "math"

// ECGSim gera uma forma de onda tipo ECG (não clínica) a fs Hz:
// linha de base lenta, ondas P/QRS/T gaussianas e ruído determinístico.
type ECGSim struct {
	fs    float64
	phase float64
	hrBPM float64
	noise float64
}

// NewECGSim fs=250, hrBPM típico 60-120, noise ~0.0-0.05
func NewECGSim(fs, hrBPM, noise float64) *ECGSim {
	return &ECGSim{fs: fs, hrBPM: hrBPM, noise: noise}
}

// SetHeartRate altera a frequência sem reiniciar a fase
func (s *ECGSim) SetHeartRate(hrBPM float64) {
	s.hrBPM = hrBPM
}

// HeartRate retorna a frequência configurada
func (s *ECGSim) HeartRate() float64 {
	return s.hrBPM
}

// Next devolve a próxima amostra (em "mV" aproximados) e avança o tempo
func (s *ECGSim) Next() float64 {
	// tempo normalizado dentro do ciclo [0..1)
	cycleHz := s.hrBPM / 60.0
	s.phase += cycleHz / s.fs
	if s.phase >= 1.0 {
		s.phase -= 1.0
	}

	t := s.phase

	baseline := 0.05 * math.Sin(2*math.Pi*0.33*t)

	p := 0.08 * gauss(t, 0.18, 0.03)
	q := -0.12 * gauss(t, 0.30, 0.01)
	r := 1.00 * gauss(t, 0.32, 0.008)
	sv := -0.25 * gauss(t, 0.35, 0.012)
	tt := 0.25 * gauss(t, 0.60, 0.06)

	n := s.noise * (2*fract(math.Sin(12345.678*t)*9876.543) - 1)

	return baseline + p + q + r + sv + tt + n
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }

// ADC converte o sinal em contagens como o ESP32 lê a saída do AD8232:
// polarização no meio da escala e ganho fixo em contagens por mV.
type ADC struct {
	Bits int     // resolução (8 ou 12)
	Gain float64 // contagens por unidade do sinal
}

// NewADC cria um conversor cujo pico R ocupa cerca de um quarto da escala
func NewADC(bits int) ADC {
	full := float64(uint32(1)<<uint(bits)) - 1
	return ADC{Bits: bits, Gain: full / 4}
}

// Max retorna o maior código do conversor
func (a ADC) Max() uint16 {
	return uint16(uint32(1)<<uint(a.Bits) - 1)
}

// Convert quantiza uma amostra, saturando nos limites da escala
func (a ADC) Convert(v float64) uint16 {
	max := float64(a.Max())
	code := math.Round(max/2 + v*a.Gain)
	if code < 0 {
		return 0
	}
	if code > max {
		return a.Max()
	}
	return uint16(code)
}

// Generate produz n amostras já quantizadas
func (a ADC) Generate(sim *ECGSim, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = a.Convert(sim.Next())
	}
	return out
}
