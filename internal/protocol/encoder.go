package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoder monta pacotes no formato do firmware (simulador e testes).
// A sequência percorre 1..255 e recomeça em 1.
type Encoder struct {
	format Format
	seq    uint8
}

// NewEncoder cria um encoder para o formato informado
func NewEncoder(f Format) (*Encoder, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{format: f}, nil
}

// Encode monta um único pacote
func (e *Encoder) Encode(seq uint8, timestampMs uint32, samples []uint16) ([]byte, error) {
	f := e.format
	if len(samples) != f.SamplesPerPacket {
		return nil, fmt.Errorf("esperado %d amostras, recebido %d", f.SamplesPerPacket, len(samples))
	}

	out := make([]byte, f.PacketLen())
	out[0] = HeaderByte0
	out[1] = HeaderByte1
	out[2] = seq
	binary.LittleEndian.PutUint32(out[3:7], timestampMs)

	for i, s := range samples {
		if f.SampleWidth == 1 {
			if s > math.MaxUint8 {
				return nil, fmt.Errorf("amostra %d fora da faixa de 8 bits: %d", i, s)
			}
			out[headerLen+i] = byte(s)
		} else {
			binary.LittleEndian.PutUint16(out[headerLen+i*2:], s)
		}
	}

	out[len(out)-1] = TrailerByte
	return out, nil
}

// NextSeq avança e retorna o próximo número de sequência
func (e *Encoder) NextSeq() uint8 {
	if e.seq == math.MaxUint8 {
		e.seq = 0
	}
	e.seq++
	return e.seq
}

// EncodeStream divide as amostras em pacotes consecutivos a partir de startMs.
// Amostras que não completam um pacote ao final são ignoradas.
func (e *Encoder) EncodeStream(samples []uint16, startMs uint32) ([]byte, error) {
	n := e.format.SamplesPerPacket
	packetSpanMs := float64(n) * e.format.SampleIntervalMs

	out := make([]byte, 0, (len(samples)/n)*e.format.PacketLen())
	for k := 0; (k+1)*n <= len(samples); k++ {
		ts := startMs + uint32(math.Round(float64(k)*packetSpanMs))
		pkt, err := e.Encode(e.NextSeq(), ts, samples[k*n:(k+1)*n])
		if err != nil {
			return nil, err
		}
		out = append(out, pkt...)
	}
	return out, nil
}
