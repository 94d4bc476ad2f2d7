package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"ecg_go/internal/config"
	"ecg_go/pkg/logger"
)

// TCPSource lê o fluxo de uma ponte serial-TCP (ESP32 em modo Wi-Fi ou simulador)
type TCPSource struct {
	cfg   config.TCPConfig
	queue chunkQueue

	mutex     sync.Mutex
	conn      net.Conn
	connected bool
	wg        sync.WaitGroup
}

// NewTCPSource cria uma fonte TCP
func NewTCPSource(cfg config.TCPConfig) *TCPSource {
	return &TCPSource{cfg: cfg}
}

// Name implementa Source
func (s *TCPSource) Name() string {
	return "tcp://" + s.cfg.Address
}

// Open estabelece a conexão e inicia a leitura
func (s *TCPSource) Open(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.connected {
		return nil
	}

	timeout := s.cfg.DialTimeout.Duration
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	logger.Infof("Conectando à fonte TCP em %s...", s.cfg.Address)
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("erro ao conectar em %s: %w", s.cfg.Address, err)
	}

	s.conn = conn
	s.connected = true
	s.queue.reset()

	s.wg.Add(1)
	go s.readLoop(conn)

	logger.Infof("Conectado à fonte TCP em %s", s.cfg.Address)
	return nil
}

func (s *TCPSource) readLoop(conn net.Conn) {
	defer s.wg.Done()

	buffer := make([]byte, 4096)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			s.queue.push(buffer[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.queue.fail(io.EOF)
			} else {
				logger.Warnf("Erro de leitura na fonte TCP: %v", err)
				s.queue.fail(err)
			}
			conn.Close()
			s.mutex.Lock()
			s.connected = false
			s.mutex.Unlock()
			return
		}
	}
}

// Available implementa Source
func (s *TCPSource) Available() int {
	return s.queue.available()
}

// ReadAvailable implementa Source
func (s *TCPSource) ReadAvailable() ([]byte, error) {
	return s.queue.drain()
}

// LastDataAt implementa Source
func (s *TCPSource) LastDataAt() time.Time {
	return s.queue.lastDataAt()
}

// SendCommand envia um comando ao dispositivo
func (s *TCPSource) SendCommand(cmd string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.conn == nil || !s.connected {
		return ErrNotOpen
	}
	if _, err := s.conn.Write(formatCommand(cmd)); err != nil {
		return fmt.Errorf("erro ao enviar comando %s: %w", cmd, err)
	}
	return nil
}

// Close fecha a conexão e aguarda a goroutine de leitura
func (s *TCPSource) Close() error {
	s.mutex.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mutex.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	s.wg.Wait()
	logger.Info("Conexão com a fonte TCP fechada")
	return err
}
