package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ecg_go/internal/config"
	"ecg_go/pkg/logger"

	"go.bug.st/serial"
)

// SerialSource lê o fluxo da porta serial USB do ESP32
type SerialSource struct {
	cfg   config.SerialConfig
	queue chunkQueue

	mutex sync.Mutex
	port  serial.Port
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewSerialSource cria uma fonte serial
func NewSerialSource(cfg config.SerialConfig) *SerialSource {
	return &SerialSource{cfg: cfg}
}

// Name implementa Source
func (s *SerialSource) Name() string {
	return "serial://" + s.cfg.Port
}

// Open abre a porta e inicia a leitura
func (s *SerialSource) Open(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	baud := s.cfg.BaudRate
	if baud <= 0 {
		baud = 115200
	}

	port, err := serial.Open(s.cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return fmt.Errorf("erro ao abrir porta serial %s: %w", s.cfg.Port, err)
	}

	// Timeout curto para a goroutine de leitura notar o Close
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return fmt.Errorf("erro ao configurar timeout da porta serial: %w", err)
	}
	// Descarta o lixo acumulado antes do START
	if err := port.ResetInputBuffer(); err != nil {
		logger.Warnf("Não foi possível limpar o buffer da porta serial: %v", err)
	}

	s.port = port
	s.stop = make(chan struct{})
	s.queue.reset()

	s.wg.Add(1)
	go s.readLoop(port, s.stop)

	logger.Infof("Porta serial %s aberta (%d baud)", s.cfg.Port, baud)
	return nil
}

func (s *SerialSource) readLoop(port serial.Port, stop <-chan struct{}) {
	defer s.wg.Done()

	buffer := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buffer)
		if err != nil {
			select {
			case <-stop:
			default:
				logger.Warnf("Erro de leitura na porta serial: %v", err)
				s.queue.fail(err)
			}
			return
		}
		// n == 0 é timeout de leitura
		if n > 0 {
			s.queue.push(buffer[:n])
		}
	}
}

// Available implementa Source
func (s *SerialSource) Available() int {
	return s.queue.available()
}

// ReadAvailable implementa Source
func (s *SerialSource) ReadAvailable() ([]byte, error) {
	return s.queue.drain()
}

// LastDataAt implementa Source
func (s *SerialSource) LastDataAt() time.Time {
	return s.queue.lastDataAt()
}

// SendCommand envia um comando ao dispositivo
func (s *SerialSource) SendCommand(cmd string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.port == nil {
		return ErrNotOpen
	}
	if _, err := s.port.Write(formatCommand(cmd)); err != nil {
		return fmt.Errorf("erro ao enviar comando %s: %w", cmd, err)
	}
	return nil
}

// Close fecha a porta e aguarda a goroutine de leitura
func (s *SerialSource) Close() error {
	s.mutex.Lock()
	port := s.port
	s.port = nil
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mutex.Unlock()

	if port == nil {
		return nil
	}
	err := port.Close()
	s.wg.Wait()
	logger.Infof("Porta serial %s fechada", s.cfg.Port)
	return err
}
