package detector

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indica parâmetros de detector inconsistentes
var ErrInvalidConfig = errors.New("configuração de detector inválida")

// Config contém os parâmetros fixados na construção do detector
type Config struct {
	SampleRate          int     `json:"sampleRate"`          // fs em Hz
	CalibrationSeconds  float64 `json:"calibrationSeconds"`  // duração da calibração
	SlopeSpacing        int     `json:"slopeSpacing"`        // d: distância da derivada discreta
	MovingAverageWindow int     `json:"movingAverageWindow"` // w: janela da integração
	RefractorySeconds   float64 `json:"refractorySeconds"`   // período refratário após um pico
	Percentile          float64 `json:"percentile"`          // percentil do limiar (90)

	// RawHistory é o tamanho do buffer circular de amostras brutas usado na
	// varredura de correção. Nunca fica abaixo de SlopeSpacing+5.
	RawHistory int `json:"rawHistory"`

	// FlushPendingOnStop confirma um candidato ainda acima do limiar quando o
	// fluxo termina. Desligado, o candidato é descartado.
	FlushPendingOnStop bool `json:"flushPendingOnStop"`
}

// DefaultConfig retorna os parâmetros usados com o AD8232 a 250 Hz
func DefaultConfig() Config {
	return Config{
		SampleRate:          250,
		CalibrationSeconds:  2,
		SlopeSpacing:        4,
		MovingAverageWindow: 15,
		RefractorySeconds:   0.2,
		Percentile:          90,
		RawHistory:          125,
	}
}

// Validate verifica os parâmetros
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: taxa de amostragem %d", ErrInvalidConfig, c.SampleRate)
	case c.CalibrationSeconds <= 0:
		return fmt.Errorf("%w: calibração de %.2fs", ErrInvalidConfig, c.CalibrationSeconds)
	case c.SlopeSpacing <= 0:
		return fmt.Errorf("%w: espaçamento da derivada %d", ErrInvalidConfig, c.SlopeSpacing)
	case c.MovingAverageWindow <= 0:
		return fmt.Errorf("%w: janela da média móvel %d", ErrInvalidConfig, c.MovingAverageWindow)
	case c.RefractorySeconds < 0:
		return fmt.Errorf("%w: período refratário %.3fs", ErrInvalidConfig, c.RefractorySeconds)
	case c.Percentile < 0 || c.Percentile > 100:
		return fmt.Errorf("%w: percentil %.1f", ErrInvalidConfig, c.Percentile)
	}
	if c.CalibrationSamples() == 0 {
		return fmt.Errorf("%w: calibração sem amostras", ErrInvalidConfig)
	}
	return nil
}

// CalibrationSamples retorna quantos valores integrados formam a calibração
func (c Config) CalibrationSamples() int {
	return int(float64(c.SampleRate) * c.CalibrationSeconds)
}

// RefractorySamples retorna o período refratário em amostras
func (c Config) RefractorySamples() int {
	return int(c.RefractorySeconds * float64(c.SampleRate))
}

// WarmupSamples retorna o índice da primeira amostra com valor integrado
func (c Config) WarmupSamples() int {
	return c.SlopeSpacing + c.MovingAverageWindow - 1
}

func (c Config) rawHistory() int {
	min := c.SlopeSpacing + 5
	if c.RawHistory < min {
		return min
	}
	return c.RawHistory
}
