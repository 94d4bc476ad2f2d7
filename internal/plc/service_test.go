package plc

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"ecg_go/internal/config"
	"ecg_go/internal/models"
	"ecg_go/pkg/utils"
)

// fakeDB simula um DB do PLC em memória
type fakeDB struct {
	mu       sync.Mutex
	mem      []byte
	writeErr error
	closed   bool
}

func newFakeDB() *fakeDB { return &fakeDB{mem: make([]byte, 64)} }

func (f *fakeDB) ReadDataBlock(_ int, off int, size int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, size)
	copy(out, f.mem[off:off+size])
	return out, nil
}

func (f *fakeDB) WriteDataBlock(_ int, off int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	copy(f.mem[off:], data)
	return nil
}

func (f *fakeDB) IsConnected() bool { return f.writeErr == nil }

func (f *fakeDB) Disconnect() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeDB) bytes(off, n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, n)
	copy(out, f.mem[off:off+n])
	return out
}

type fakeMonitor struct {
	snap   models.Snapshot
	starts int
	stops  int
}

func (m *fakeMonitor) Snapshot() models.Snapshot { return m.snap }

func (m *fakeMonitor) Start() (models.RunInfo, error) {
	m.starts++
	return models.RunInfo{}, nil
}

func (m *fakeMonitor) Stop() error {
	m.stops++
	return nil
}

func testSnapshot() models.Snapshot {
	return models.Snapshot{
		Status:           models.StatusRunning,
		DetectorState:    "armed",
		Calibrated:       true,
		PeakCount:        17,
		Packets:          1500,
		WindowedBPM:      72,
		InstantaneousBPM: 71.5,
		Threshold:        18,
	}
}

func TestEncodeSnapshot(t *testing.T) {
	buf := EncodeSnapshot(testSnapshot())

	if len(buf) != exportSize {
		t.Fatalf("len = %d", len(buf))
	}
	if got := utils.BytesToFloat32(buf[OffsetWindowedBPM:]); got != 72 {
		t.Errorf("windowed = %v", got)
	}
	if got := utils.BytesToFloat32(buf[OffsetInstantaneousBPM:]); got != 71.5 {
		t.Errorf("instantaneous = %v", got)
	}
	if buf[OffsetPeakCount+3] != 17 || buf[OffsetStatus+1] != 2 || buf[OffsetDetectorState+1] != 1 {
		t.Errorf("inteiros = % x", buf)
	}
	if buf[OffsetFlags] != 0x01 {
		t.Errorf("flags = %#x", buf[OffsetFlags])
	}
}

func TestEncodeSnapshotInfinity(t *testing.T) {
	snap := testSnapshot()
	snap.InstantaneousBPM = math.Inf(1)
	snap.Idle = true
	buf := EncodeSnapshot(snap)

	if got := utils.BytesToFloat32(buf[OffsetInstantaneousBPM:]); got != 0 {
		t.Errorf("instantaneous = %v, want 0", got)
	}
	if buf[OffsetFlags] != 0x03 {
		t.Errorf("flags = %#x", buf[OffsetFlags])
	}
}

func TestStatusCodes(t *testing.T) {
	if StatusCode(models.StatusStarved) != 3 || StatusCode("x") != -1 {
		t.Error("StatusCode")
	}
	if DetectorStateCode("in_peak") != 2 || DetectorStateCode("") != -1 {
		t.Error("DetectorStateCode")
	}
}

func TestCycleExportsAndHandlesCommand(t *testing.T) {
	db := newFakeDB()
	mon := &fakeMonitor{snap: testSnapshot()}
	s := newPLCService(db, config.PLCConfig{Enabled: true, DBNumber: 100}, mon, mon)

	copy(db.mem[OffsetCommand:], utils.Int16ToBytes(CommandStart))
	s.cycle()

	if got := utils.BytesToFloat32(db.bytes(OffsetWindowedBPM, 4)); got != 72 {
		t.Errorf("windowed exportado = %v", got)
	}
	if mon.starts != 1 {
		t.Errorf("starts = %d, want 1", mon.starts)
	}
	if cmd := db.bytes(OffsetCommand, 2); cmd[0] != 0 || cmd[1] != 0 {
		t.Errorf("comando não confirmado: % x", cmd)
	}
	if s.LastWrite().IsZero() {
		t.Error("LastWrite não atualizado")
	}

	// Sem comando pendente nada é chamado
	s.cycle()
	if mon.starts != 1 || mon.stops != 0 {
		t.Errorf("starts = %d stops = %d", mon.starts, mon.stops)
	}

	copy(db.mem[OffsetCommand:], utils.Int16ToBytes(CommandStop))
	s.cycle()
	if mon.stops != 1 {
		t.Errorf("stops = %d, want 1", mon.stops)
	}
}

func TestWriteFailureSkipsCommand(t *testing.T) {
	db := newFakeDB()
	db.writeErr = errors.New("conexão perdida")
	mon := &fakeMonitor{snap: testSnapshot()}
	s := newPLCService(db, config.PLCConfig{Enabled: true}, mon, mon)

	copy(db.mem[OffsetCommand:], utils.Int16ToBytes(CommandStart))
	s.cycle()

	if mon.starts != 0 {
		t.Error("comando atendido sem exportação")
	}
	if !s.LastWrite().IsZero() {
		t.Error("LastWrite atualizado após falha")
	}
}

func TestStartStopLoop(t *testing.T) {
	db := newFakeDB()
	mon := &fakeMonitor{snap: testSnapshot()}
	cfg := config.PLCConfig{Enabled: true, UpdateRate: config.Duration{Duration: 5 * time.Millisecond}}
	s := newPLCService(db, cfg, mon, nil)

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if !s.IsRunning() {
		t.Fatal("serviço deveria estar rodando")
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.LastWrite().IsZero() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if s.LastWrite().IsZero() {
		t.Error("nenhuma exportação em 2s")
	}
	if s.IsRunning() || !db.closed {
		t.Errorf("running = %v closed = %v", s.IsRunning(), db.closed)
	}

	// Stop repetido não bloqueia
	s.Stop()
}

func TestDisabledStartIsNoop(t *testing.T) {
	s := newPLCService(newFakeDB(), config.PLCConfig{}, &fakeMonitor{}, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if s.IsRunning() {
		t.Error("serviço desabilitado não deveria rodar")
	}
}
