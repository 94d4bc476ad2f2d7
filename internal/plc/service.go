package plc

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"ecg_go/internal/config"
	"ecg_go/internal/models"
	"ecg_go/internal/monitor"
	"ecg_go/pkg/logger"
	"ecg_go/pkg/utils"
)

// Layout do DB de exportação (offsets em bytes)
const (
	OffsetWindowedBPM      = 0  // REAL
	OffsetInstantaneousBPM = 4  // REAL
	OffsetPeakCount        = 8  // DINT
	OffsetStatus           = 12 // INT, ver StatusCode
	OffsetDetectorState    = 14 // INT, ver DetectorStateCode
	OffsetPackets          = 16 // DINT
	OffsetThreshold        = 20 // REAL
	OffsetFlags            = 24 // BYTE: bit0 calibrado, bit1 fonte ociosa
	OffsetCommand          = 26 // INT escrito pelo painel: 1 START, 2 STOP

	exportSize = 26
)

// Comandos do painel do operador
const (
	CommandNone  int16 = 0
	CommandStart int16 = 1
	CommandStop  int16 = 2
)

// SnapshotSource fornece o estado publicado do monitor
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// RunController inicia e para execuções a pedido do painel
type RunController interface {
	Start() (models.RunInfo, error)
	Stop() error
}

// dataBlock é o subconjunto do S7Client usado pelo serviço
type dataBlock interface {
	ReadDataBlock(dbNumber int, startOffset int, size int) ([]byte, error)
	WriteDataBlock(dbNumber int, startOffset int, data []byte) error
	IsConnected() bool
	Disconnect()
}

// PLCService exporta o estado do monitor para um DB do PLC
type PLCService struct {
	client   dataBlock
	config   config.PLCConfig
	source   SnapshotSource
	control  RunController
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	mutex  sync.RWMutex

	running   bool
	lastWrite time.Time
}

// NewPLCService cria um novo serviço de PLC. control pode ser nil.
func NewPLCService(cfg config.PLCConfig, source SnapshotSource, control RunController) *PLCService {
	return newPLCService(NewS7Client(cfg), cfg, source, control)
}

func newPLCService(client dataBlock, cfg config.PLCConfig, source SnapshotSource, control RunController) *PLCService {
	interval := cfg.UpdateRate.Duration
	if interval <= 0 {
		interval = time.Second
	}
	return &PLCService{
		client:   client,
		config:   cfg,
		source:   source,
		control:  control,
		interval: interval,
	}
}

// Start inicia o loop de exportação. Falha de conexão não impede o
// início: o loop tenta reconectar a cada ciclo.
func (s *PLCService) Start() error {
	if !s.config.Enabled {
		logger.Info("Serviço PLC desabilitado por configuração")
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	go s.runUpdateLoop(s.ctx, s.done)

	s.running = true
	logger.Infof("Serviço PLC iniciado (DB%d a cada %v)", s.config.DBNumber, s.interval)
	return nil
}

// Stop para o loop e fecha a conexão
func (s *PLCService) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mutex.Unlock()

	<-done
	s.client.Disconnect()
	logger.Info("Serviço PLC parado")
}

// IsRunning verifica se o serviço está em execução
func (s *PLCService) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// IsConnected verifica se há conexão com o PLC
func (s *PLCService) IsConnected() bool {
	return s.client.IsConnected()
}

// LastWrite retorna o horário da última exportação bem-sucedida
func (s *PLCService) LastWrite() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastWrite
}

func (s *PLCService) runUpdateLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle()
		}
	}
}

// cycle exporta o snapshot e atende um comando pendente do painel
func (s *PLCService) cycle() {
	if err := s.export(); err != nil {
		logger.Debugf("Falha ao exportar para o PLC: %v", err)
		return
	}
	if s.control != nil {
		if err := s.pollCommand(); err != nil {
			logger.Debugf("Falha ao ler comando do PLC: %v", err)
		}
	}
}

func (s *PLCService) export() error {
	data := EncodeSnapshot(s.source.Snapshot())
	if err := s.client.WriteDataBlock(s.config.DBNumber, 0, data); err != nil {
		return err
	}

	s.mutex.Lock()
	s.lastWrite = time.Now()
	s.mutex.Unlock()
	return nil
}

func (s *PLCService) pollCommand() error {
	data, err := s.client.ReadDataBlock(s.config.DBNumber, OffsetCommand, 2)
	if err != nil {
		return err
	}

	cmd := int16(uint16(data[0])<<8 | uint16(data[1]))
	if cmd == CommandNone {
		return nil
	}

	switch cmd {
	case CommandStart:
		logger.Info("Comando START recebido do painel PLC")
		if _, err := s.control.Start(); err != nil && !errors.Is(err, monitor.ErrAlreadyRunning) {
			logger.Error("Erro ao iniciar execução pelo painel", err)
		}
	case CommandStop:
		logger.Info("Comando STOP recebido do painel PLC")
		if err := s.control.Stop(); err != nil && !errors.Is(err, monitor.ErrNotRunning) {
			logger.Error("Erro ao parar execução pelo painel", err)
		}
	default:
		logger.Warnf("Comando desconhecido do painel PLC: %d", cmd)
	}

	// Confirma zerando a palavra de comando
	return s.client.WriteDataBlock(s.config.DBNumber, OffsetCommand, utils.Int16ToBytes(CommandNone))
}

// StatusCode converte o status do monitor para o INT exportado
func StatusCode(status string) int16 {
	switch status {
	case models.StatusIdle:
		return 0
	case models.StatusStarting:
		return 1
	case models.StatusRunning:
		return 2
	case models.StatusStarved:
		return 3
	case models.StatusStopped:
		return 4
	case models.StatusError:
		return 5
	}
	return -1
}

// DetectorStateCode converte o estado do detector para o INT exportado
func DetectorStateCode(state string) int16 {
	switch state {
	case "calibrating":
		return 0
	case "armed":
		return 1
	case "in_peak":
		return 2
	}
	return -1
}

// EncodeSnapshot monta a área de exportação do DB (big endian, como no S7)
func EncodeSnapshot(snap models.Snapshot) []byte {
	buf := make([]byte, exportSize)
	copy(buf[OffsetWindowedBPM:], utils.Float32ToBytes(plcReal(snap.WindowedBPM)))
	copy(buf[OffsetInstantaneousBPM:], utils.Float32ToBytes(plcReal(snap.InstantaneousBPM)))
	copy(buf[OffsetPeakCount:], utils.Int32ToBytes(int32(snap.PeakCount)))
	copy(buf[OffsetStatus:], utils.Int16ToBytes(StatusCode(snap.Status)))
	copy(buf[OffsetDetectorState:], utils.Int16ToBytes(DetectorStateCode(snap.DetectorState)))
	copy(buf[OffsetPackets:], utils.Int32ToBytes(int32(snap.Packets)))
	copy(buf[OffsetThreshold:], utils.Float32ToBytes(plcReal(snap.Threshold)))

	var flags byte
	if snap.Calibrated {
		flags |= 1 << 0
	}
	if snap.Idle {
		flags |= 1 << 1
	}
	buf[OffsetFlags] = flags
	return buf
}

// plcReal limita o valor ao intervalo de um REAL; não finito vira 0
func plcReal(v float64) float32 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	if v > math.MaxFloat32 {
		return math.MaxFloat32
	}
	if v < -math.MaxFloat32 {
		return -math.MaxFloat32
	}
	return float32(v)
}
