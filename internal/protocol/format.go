package protocol

import (
	"errors"
	"fmt"
)

// Bytes fixos do quadro enviado pelo firmware do ESP32
const (
	HeaderByte0 byte = 0xAA
	HeaderByte1 byte = 0x55
	TrailerByte byte = 0xFF

	// Cabeçalho (2) + sequência (1) + timestamp (4)
	headerLen  = 7
	trailerLen = 1

	DefaultSamplesPerPacket = 10
	DefaultSampleIntervalMs = 4.0 // 250 Hz

	// Casas decimais usadas nos timestamps sintetizados por amostra
	SampleTimeDecimals = 4
)

// ErrInvalidFormat indica uma configuração de protocolo inconsistente
var ErrInvalidFormat = errors.New("formato de pacote inválido")

// Format descreve o layout de um pacote para uma resolução de ADC
type Format struct {
	SampleWidth      int     `json:"sampleWidth"`      // bytes por amostra (1 ou 2)
	SamplesPerPacket int     `json:"samplesPerPacket"` // N
	SampleIntervalMs float64 `json:"sampleIntervalMs"` // intervalo entre amostras do mesmo pacote
}

// Format8Bit retorna o formato de 18 bytes (amostras de 1 byte)
func Format8Bit() Format {
	return Format{SampleWidth: 1, SamplesPerPacket: DefaultSamplesPerPacket, SampleIntervalMs: DefaultSampleIntervalMs}
}

// Format12Bit retorna o formato de 28 bytes (amostras de 2 bytes)
func Format12Bit() Format {
	return Format{SampleWidth: 2, SamplesPerPacket: DefaultSamplesPerPacket, SampleIntervalMs: DefaultSampleIntervalMs}
}

// PacketLen retorna o tamanho total L do pacote
func (f Format) PacketLen() int {
	return headerLen + f.SamplesPerPacket*f.SampleWidth + trailerLen
}

// Validate verifica os parâmetros do formato
func (f Format) Validate() error {
	if f.SampleWidth != 1 && f.SampleWidth != 2 {
		return fmt.Errorf("%w: largura de amostra %d (esperado 1 ou 2)", ErrInvalidFormat, f.SampleWidth)
	}
	if f.SamplesPerPacket <= 0 {
		return fmt.Errorf("%w: %d amostras por pacote", ErrInvalidFormat, f.SamplesPerPacket)
	}
	if f.SampleIntervalMs <= 0 {
		return fmt.Errorf("%w: intervalo de amostragem %.3fms", ErrInvalidFormat, f.SampleIntervalMs)
	}
	return nil
}

// SampleRate retorna a taxa de amostragem implícita em Hz
func (f Format) SampleRate() float64 {
	return 1000.0 / f.SampleIntervalMs
}
