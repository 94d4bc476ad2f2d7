package protocol

import (
	"bytes"
	"math"
	"testing"
)

func mustEncoder(t *testing.T, f Format) *Encoder {
	t.Helper()
	e, err := NewEncoder(f)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	return e
}

func mustReassembler(t *testing.T, f Format) *Reassembler {
	t.Helper()
	r, err := NewReassembler(f)
	if err != nil {
		t.Fatalf("NewReassembler: %v", err)
	}
	return r
}

func rampSamples(n int, base uint16) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = base + uint16(i)
	}
	return out
}

func TestPacketLen(t *testing.T) {
	if got := Format8Bit().PacketLen(); got != 18 {
		t.Errorf("8 bits: %d, want 18", got)
	}
	if got := Format12Bit().PacketLen(); got != 28 {
		t.Errorf("12 bits: %d, want 28", got)
	}
}

func TestFormatValidate(t *testing.T) {
	bad := []Format{
		{SampleWidth: 3, SamplesPerPacket: 10, SampleIntervalMs: 4},
		{SampleWidth: 2, SamplesPerPacket: 0, SampleIntervalMs: 4},
		{SampleWidth: 2, SamplesPerPacket: 10, SampleIntervalMs: 0},
	}
	for _, f := range bad {
		if _, err := NewReassembler(f); err == nil {
			t.Errorf("formato %+v deveria ser rejeitado", f)
		}
	}
}

func TestDecodeKnownPacket(t *testing.T) {
	raw := []byte{
		0xAA, 0x55, 0x07,
		0xE8, 0x03, 0x00, 0x00, // 1000 ms
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A,
		0xFF,
	}
	r := mustReassembler(t, Format8Bit())
	r.Feed(raw)

	p, ok := r.NextPacket()
	if !ok {
		t.Fatal("pacote não decodificado")
	}
	if p.Seq != 7 || p.TimestampMs != 1000 {
		t.Errorf("seq=%d ts=%d", p.Seq, p.TimestampMs)
	}
	for i, s := range p.Samples {
		if s != uint16(i+1) {
			t.Errorf("amostra %d = %d", i, s)
		}
		want := 1000 + float64(i)*4
		if p.SampleTimes[i] != want {
			t.Errorf("tempo %d = %v, want %v", i, p.SampleTimes[i], want)
		}
	}
	if r.Buffered() != 0 {
		t.Errorf("buffer deveria estar vazio: %d", r.Buffered())
	}
}

func TestTwelveBitLittleEndian(t *testing.T) {
	e := mustEncoder(t, Format12Bit())
	samples := []uint16{4095, 2048, 1, 0, 300, 1500, 2500, 3000, 3500, 4000}
	pkt, err := e.Encode(1, 123456, samples)
	if err != nil {
		t.Fatal(err)
	}
	if pkt[7] != 0xFF || pkt[8] != 0x0F {
		t.Errorf("4095 codificado como %02X %02X", pkt[7], pkt[8])
	}

	r := mustReassembler(t, Format12Bit())
	r.Feed(pkt)
	p, ok := r.NextPacket()
	if !ok {
		t.Fatal("pacote não decodificado")
	}
	for i := range samples {
		if p.Samples[i] != samples[i] {
			t.Errorf("amostra %d = %d, want %d", i, p.Samples[i], samples[i])
		}
	}
}

func TestShortBufferReturnsNothing(t *testing.T) {
	e := mustEncoder(t, Format8Bit())
	pkt, _ := e.Encode(1, 0, rampSamples(10, 0))

	r := mustReassembler(t, Format8Bit())
	r.Feed(pkt[:17])
	if _, ok := r.NextPacket(); ok {
		t.Fatal("não deveria decodificar pacote incompleto")
	}
	if r.Buffered() != 17 || r.Stats().Resyncs != 0 {
		t.Errorf("buffer alterado: %d bytes, %d resyncs", r.Buffered(), r.Stats().Resyncs)
	}
}

func TestAllPacketsInOrderExactlyOnce(t *testing.T) {
	e := mustEncoder(t, Format8Bit())
	stream, err := e.EncodeStream(rampSamples(100, 10), 0)
	if err != nil {
		t.Fatal(err)
	}

	r := mustReassembler(t, Format8Bit())
	r.Feed(stream)

	var got []*Packet
	for {
		p, ok := r.NextPacket()
		if !ok {
			if r.Buffered() < Format8Bit().PacketLen() {
				break
			}
			continue
		}
		got = append(got, p)
	}

	if len(got) != 10 {
		t.Fatalf("%d pacotes, want 10", len(got))
	}
	for i, p := range got {
		if p.Seq != uint8(i+1) {
			t.Errorf("pacote %d com seq %d", i, p.Seq)
		}
	}
	if _, ok := r.NextPacket(); ok {
		t.Error("pacote retornado duas vezes")
	}
}

func TestBadHeaderDropsOneByte(t *testing.T) {
	e := mustEncoder(t, Format8Bit())
	pkt, _ := e.Encode(1, 0, rampSamples(10, 0))

	r := mustReassembler(t, Format8Bit())
	r.Feed(append([]byte{0x00, 0x13, 0x37}, pkt...))

	for i := 0; i < 3; i++ {
		before := r.Buffered()
		if _, ok := r.NextPacket(); ok {
			t.Fatalf("chamada %d não deveria retornar pacote", i)
		}
		if r.Buffered() != before-1 {
			t.Fatalf("chamada %d descartou %d bytes", i, before-r.Buffered())
		}
	}

	if _, ok := r.NextPacket(); !ok {
		t.Fatal("pacote válido não encontrado após ressincronizar")
	}
	if got := r.Stats().Resyncs; got != 3 {
		t.Errorf("resyncs = %d, want 3", got)
	}
}

func TestFalseHeaderInsideSamples(t *testing.T) {
	e := mustEncoder(t, Format8Bit())
	// Amostras contendo o par 0xAA 0x55
	tricky := []uint16{1, 2, 0xAA, 0x55, 5, 6, 7, 8, 9, 10}
	good, _ := e.Encode(2, 40, rampSamples(10, 20))
	corrupt, _ := e.Encode(1, 0, tricky)
	corrupt[len(corrupt)-1] = 0x00 // terminador corrompido

	r := mustReassembler(t, Format8Bit())
	r.Feed(corrupt)
	r.Feed(good)

	packets := r.Drain()
	if len(packets) != 1 {
		t.Fatalf("%d pacotes, want 1", len(packets))
	}
	if packets[0].Seq != 2 || packets[0].Samples[0] != 20 {
		t.Errorf("pacote errado: %+v", packets[0])
	}
	if r.Stats().Resyncs == 0 {
		t.Error("ressincronização não contabilizada")
	}
}

func TestTrailerMismatchStopsAtNextHeader(t *testing.T) {
	e := mustEncoder(t, Format8Bit())
	corrupt, _ := e.Encode(1, 0, rampSamples(10, 0))
	corrupt[len(corrupt)-1] = 0x00
	good, _ := e.Encode(2, 40, rampSamples(10, 0))

	r := mustReassembler(t, Format8Bit())
	r.Feed(corrupt)
	r.Feed(good)

	if _, ok := r.NextPacket(); ok {
		t.Fatal("pacote corrompido aceito")
	}
	// A varredura para exatamente no cabeçalho do próximo pacote
	if r.Buffered() != len(good) {
		t.Fatalf("buffer com %d bytes, want %d", r.Buffered(), len(good))
	}
	if p, ok := r.NextPacket(); !ok || p.Seq != 2 {
		t.Fatal("pacote seguinte não decodificado")
	}
}

func TestTrailerMismatchUnderflow(t *testing.T) {
	// Sem outro cabeçalho: descarta até sobrarem L-1 bytes
	raw := make([]byte, 18+5)
	raw[0], raw[1] = HeaderByte0, HeaderByte1
	r := mustReassembler(t, Format8Bit())
	r.Feed(raw)

	if _, ok := r.NextPacket(); ok {
		t.Fatal("pacote inválido aceito")
	}
	if r.Buffered() != 17 {
		t.Errorf("buffer com %d bytes, want 17", r.Buffered())
	}
}

func TestByteAtATimeMatchesBulk(t *testing.T) {
	e := mustEncoder(t, Format12Bit())
	stream, _ := e.EncodeStream(rampSamples(200, 1000), 5000)
	// Lixo no meio do fluxo
	noisy := append(append(append([]byte{}, stream[:50]...), 0x01, 0xAA, 0x02), stream[50:]...)

	bulk := mustReassembler(t, Format12Bit())
	bulk.Feed(noisy)
	want := bulk.Drain()

	single := mustReassembler(t, Format12Bit())
	var got []*Packet
	for _, b := range noisy {
		single.Feed([]byte{b})
		got = append(got, single.Drain()...)
	}

	if len(got) != len(want) {
		t.Fatalf("byte a byte: %d pacotes, em bloco: %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Seq != want[i].Seq || got[i].TimestampMs != want[i].TimestampMs {
			t.Errorf("pacote %d difere: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, f := range []Format{Format8Bit(), Format12Bit()} {
		max := 255
		if f.SampleWidth == 2 {
			max = 4095
		}
		samples := make([]uint16, 250)
		for i := range samples {
			samples[i] = uint16((i * 37) % (max + 1))
		}

		e := mustEncoder(t, f)
		stream, err := e.EncodeStream(samples, 1_000_000)
		if err != nil {
			t.Fatal(err)
		}

		r := mustReassembler(t, f)
		// Entrega em pedaços irregulares
		for off, step := 0, 1; off < len(stream); step = step%13 + 1 {
			end := off + step
			if end > len(stream) {
				end = len(stream)
			}
			r.Feed(stream[off:end])
			off = end
		}

		var gotSamples []uint16
		var gotTimes []float64
		for _, p := range r.Drain() {
			gotSamples = append(gotSamples, p.Samples...)
			gotTimes = append(gotTimes, p.SampleTimes...)
		}

		if len(gotSamples) != len(samples) {
			t.Fatalf("largura %d: %d amostras, want %d", f.SampleWidth, len(gotSamples), len(samples))
		}
		for i := range samples {
			if gotSamples[i] != samples[i] {
				t.Fatalf("largura %d: amostra %d = %d, want %d", f.SampleWidth, i, gotSamples[i], samples[i])
			}
			wantTime := 1_000_000 + float64(i)*f.SampleIntervalMs
			if math.Abs(gotTimes[i]-wantTime) > 1e-9 {
				t.Fatalf("largura %d: tempo %d = %v, want %v", f.SampleWidth, i, gotTimes[i], wantTime)
			}
		}
	}
}

func TestSequenceWraps(t *testing.T) {
	e := mustEncoder(t, Format8Bit())
	var last uint8
	for i := 0; i < 256; i++ {
		last = e.NextSeq()
	}
	// 255 valores (1..255) e então recomeça em 1
	if last != 1 {
		t.Errorf("seq após 256 chamadas = %d, want 1", last)
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	e := mustEncoder(t, Format8Bit())
	samples := rampSamples(10, 0)
	samples[3] = 300
	if _, err := e.Encode(1, 0, samples); err == nil {
		t.Error("amostra acima de 255 deveria falhar no formato de 8 bits")
	}
	if _, err := e.Encode(1, 0, samples[:5]); err == nil {
		t.Error("quantidade errada de amostras deveria falhar")
	}
}

func TestDeviceMarkers(t *testing.T) {
	r := mustReassembler(t, Format8Bit())
	r.Feed([]byte("rst:0x1 RESET_REASON: POWERON\n"))
	if r.Stats().DeviceMarkers != 1 {
		t.Errorf("marcador não contabilizado")
	}
	if ContainsDeviceMarker(bytes.Repeat([]byte{0xAA}, 20)) {
		t.Error("falso positivo de marcador")
	}
}
