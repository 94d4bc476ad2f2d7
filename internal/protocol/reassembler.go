package protocol

import (
	"bytes"
	"fmt"
)

var (
	headerPair = []byte{HeaderByte0, HeaderByte1}

	// Linhas de texto que o firmware imprime ao reiniciar
	deviceMarkers = [][]byte{[]byte("RESET_REASON"), []byte("BOOT_TIME")}
)

// ReassemblerStats contém contadores de diagnóstico
type ReassemblerStats struct {
	Packets       int64 `json:"packets"`
	Resyncs       int64 `json:"resyncs"`
	DroppedBytes  int64 `json:"droppedBytes"`
	BytesFed      int64 `json:"bytesFed"`
	DeviceMarkers int64 `json:"deviceMarkers"`
}

// Reassembler recupera pacotes de tamanho fixo de um fluxo de bytes sem alinhamento.
// Não é seguro para uso concorrente: pertence à goroutine de ingestão.
type Reassembler struct {
	format    Format
	packetLen int
	buf       []byte
	stats     ReassemblerStats
}

// NewReassembler cria um reassembler para o formato informado
func NewReassembler(f Format) (*Reassembler, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Reassembler{
		format:    f,
		packetLen: f.PacketLen(),
		buf:       make([]byte, 0, f.PacketLen()*16),
	}, nil
}

// Format retorna o formato configurado
func (r *Reassembler) Format() Format {
	return r.format
}

// Feed anexa um pedaço de bytes ao buffer interno
func (r *Reassembler) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.stats.BytesFed += int64(len(chunk))
	if ContainsDeviceMarker(chunk) {
		r.stats.DeviceMarkers++
	}
	r.buf = append(r.buf, chunk...)
}

// NextPacket tenta extrair um pacote do início do buffer.
// Retorna false quando não há pacote completo ou quando bytes foram descartados
// para ressincronizar; nesse caso basta chamar de novo.
func (r *Reassembler) NextPacket() (*Packet, bool) {
	L := r.packetLen
	if len(r.buf) < L {
		return nil, false
	}

	if !r.headerAtFront() {
		// Ressincronização: anda um byte por chamada
		r.drop(1)
		r.stats.Resyncs++
		return nil, false
	}

	if r.buf[L-1] != TrailerByte {
		// Cabeçalho válido mas sem terminador: o cabeçalho era falso (bytes de amostra)
		// ou o pacote foi truncado. Descarta até o próximo par de cabeçalho ou até
		// sobrarem menos de L bytes.
		r.drop(r.corruptSkip())
		r.stats.Resyncs++
		return nil, false
	}

	p := decodePacket(r.format, r.buf[:L])
	r.consume(L)
	r.stats.Packets++
	return p, true
}

// Drain extrai todos os pacotes disponíveis, em ordem
func (r *Reassembler) Drain() []*Packet {
	var packets []*Packet
	for len(r.buf) >= r.packetLen {
		if p, ok := r.NextPacket(); ok {
			packets = append(packets, p)
		}
	}
	return packets
}

// Buffered retorna quantos bytes aguardam no buffer
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Stats retorna uma cópia dos contadores
func (r *Reassembler) Stats() ReassemblerStats {
	return r.stats
}

// String implementa fmt.Stringer para logs de depuração
func (r *Reassembler) String() string {
	return fmt.Sprintf("reassembler{L=%d buffered=%d packets=%d resyncs=%d}",
		r.packetLen, len(r.buf), r.stats.Packets, r.stats.Resyncs)
}

func (r *Reassembler) headerAtFront() bool {
	return len(r.buf) >= 2 && r.buf[0] == HeaderByte0 && r.buf[1] == HeaderByte1
}

// corruptSkip calcula quantos bytes a varredura byte a byte descartaria:
// até o próximo par de cabeçalho, limitado ao ponto em que sobram L-1 bytes.
func (r *Reassembler) corruptSkip() int {
	maxDrop := len(r.buf) - r.packetLen + 1
	idx := bytes.Index(r.buf[1:], headerPair)
	if idx >= 0 && idx+1 < maxDrop {
		return idx + 1
	}
	return maxDrop
}

func (r *Reassembler) drop(n int) {
	r.stats.DroppedBytes += int64(n)
	r.consume(n)
}

func (r *Reassembler) consume(n int) {
	// O append seguinte realoca quando a capacidade restante acabar,
	// então o prefixo descartado não é retido indefinidamente.
	r.buf = r.buf[n:]
}

// ContainsDeviceMarker indica se o pedaço contém texto de reinício do firmware
func ContainsDeviceMarker(chunk []byte) bool {
	for _, m := range deviceMarkers {
		if bytes.Contains(chunk, m) {
			return true
		}
	}
	return false
}
