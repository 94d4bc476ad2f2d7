package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ecg_go/internal/config"
)

// Comandos ASCII entendidos pelo firmware
const (
	CommandStart = "START"
	CommandStop  = "STOP"
)

var (
	// ErrNotOpen indica uso de uma fonte antes de Open
	ErrNotOpen = errors.New("fonte não está aberta")
	// ErrUnknownType indica um tipo de fonte não suportado
	ErrUnknownType = errors.New("tipo de fonte desconhecido")
)

// Source entrega os bytes recebidos do dispositivo sem bloquear o chamador.
// A leitura bloqueante acontece em uma goroutine interna de cada implementação.
type Source interface {
	// Open conecta ao dispositivo e inicia a leitura em segundo plano
	Open(ctx context.Context) error
	// Available retorna quantos bytes aguardam leitura
	Available() int
	// ReadAvailable retorna todos os bytes pendentes; nil quando não há dados.
	// Um erro indica que a leitura em segundo plano terminou.
	ReadAvailable() ([]byte, error)
	// LastDataAt retorna o instante em que chegaram os últimos bytes
	LastDataAt() time.Time
	// SendCommand envia um comando ASCII terminado em '\n'
	SendCommand(cmd string) error
	// Close encerra a conexão
	Close() error
	// Name identifica a fonte nos logs
	Name() string
}

// New cria a fonte configurada em cfg.Type
func New(cfg config.SourceConfig) (Source, error) {
	switch cfg.Type {
	case config.SourceSerial:
		return NewSerialSource(cfg.Serial), nil
	case config.SourceTCP:
		return NewTCPSource(cfg.TCP), nil
	case config.SourceMQTT:
		return NewMQTTSource(cfg.MQTT), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
}

// chunkQueue acumula os pedaços recebidos pela goroutine de leitura
type chunkQueue struct {
	mu       sync.Mutex
	chunks   [][]byte
	size     int
	lastData time.Time
	err      error
}

// push copia e enfileira um pedaço
func (q *chunkQueue) push(b []byte) {
	if len(b) == 0 {
		return
	}
	chunk := make([]byte, len(b))
	copy(chunk, b)

	q.mu.Lock()
	q.chunks = append(q.chunks, chunk)
	q.size += len(chunk)
	q.lastData = time.Now()
	q.mu.Unlock()
}

// fail registra o erro terminal da leitura; os dados pendentes ainda são entregues
func (q *chunkQueue) fail(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
}

func (q *chunkQueue) available() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// drain retorna todos os bytes pendentes em um único slice
func (q *chunkQueue) drain() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil, q.err
	}

	out := make([]byte, 0, q.size)
	for _, c := range q.chunks {
		out = append(out, c...)
	}
	q.chunks = q.chunks[:0]
	q.size = 0
	return out, nil
}

func (q *chunkQueue) lastDataAt() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastData
}

// reset limpa dados e erro ao reabrir a fonte
func (q *chunkQueue) reset() {
	q.mu.Lock()
	q.chunks = nil
	q.size = 0
	q.err = nil
	q.lastData = time.Now()
	q.mu.Unlock()
}

func formatCommand(cmd string) []byte {
	return []byte(cmd + "\n")
}
