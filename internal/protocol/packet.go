package protocol

import (
	"encoding/binary"

	"ecg_go/pkg/utils"
)

// Packet é um quadro decodificado
type Packet struct {
	Seq         uint8     `json:"seq"`
	TimestampMs uint32    `json:"timestampMs"` // relógio do dispositivo, não é hora de parede
	Samples     []uint16  `json:"samples"`
	SampleTimes []float64 `json:"sampleTimes"` // ms, interpolados a partir do timestamp do pacote
}

// decodePacket decodifica exatamente f.PacketLen() bytes já validados
func decodePacket(f Format, raw []byte) *Packet {
	p := &Packet{
		Seq:         raw[2],
		TimestampMs: binary.LittleEndian.Uint32(raw[3:7]),
		Samples:     make([]uint16, f.SamplesPerPacket),
		SampleTimes: make([]float64, f.SamplesPerPacket),
	}

	body := raw[headerLen : headerLen+f.SamplesPerPacket*f.SampleWidth]
	for i := 0; i < f.SamplesPerPacket; i++ {
		if f.SampleWidth == 1 {
			p.Samples[i] = uint16(body[i])
		} else {
			p.Samples[i] = binary.LittleEndian.Uint16(body[i*2:])
		}
		p.SampleTimes[i] = SampleTime(p.TimestampMs, i, f.SampleIntervalMs)
	}

	return p
}

// SampleTime sintetiza o timestamp da i-ésima amostra do pacote.
// O dispositivo só carimba o pacote; a hora de recepção no host sofre jitter do transporte.
func SampleTime(packetMs uint32, i int, intervalMs float64) float64 {
	return utils.RoundTo(float64(packetMs)+float64(i)*intervalMs, SampleTimeDecimals)
}
