package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"ecg_go/pkg/logger"
)

const flushInterval = time.Second

// CSVLogger grava linhas em um arquivo CSV a partir de uma goroutine própria,
// para que a ingestão nunca espere pelo disco enquanto houver espaço na fila.
type CSVLogger struct {
	path   string
	file   *os.File
	writer *csv.Writer
	rows   chan []string
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	written   int64
}

// NewCSVLogger cria (ou trunca) o arquivo e grava o cabeçalho
func NewCSVLogger(path string, header []string, queueSize int) (*CSVLogger, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar %s: %w", path, err)
	}

	if queueSize <= 0 {
		queueSize = 1024
	}

	l := &CSVLogger{
		path:   path,
		file:   file,
		writer: csv.NewWriter(file),
		rows:   make(chan []string, queueSize),
		done:   make(chan struct{}),
	}

	if err := l.writer.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("erro ao gravar cabeçalho em %s: %w", path, err)
	}
	l.writer.Flush()

	go l.run()
	return l, nil
}

// Log enfileira uma linha. Bloqueia quando a fila está cheia.
func (l *CSVLogger) Log(row []string) {
	l.rows <- row
}

func (l *CSVLogger) run() {
	defer close(l.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case row, ok := <-l.rows:
			if !ok {
				l.flush()
				return
			}
			if err := l.writer.Write(row); err != nil {
				l.setErr(err)
				continue
			}
			l.mu.Lock()
			l.written++
			l.mu.Unlock()
		case <-ticker.C:
			l.flush()
		}
	}
}

func (l *CSVLogger) flush() {
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.setErr(err)
	}
}

func (l *CSVLogger) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
		logger.Errorf("Erro ao gravar %s: %v", l.path, err)
	}
}

// Written retorna quantas linhas já foram gravadas (sem o cabeçalho)
func (l *CSVLogger) Written() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Close grava as linhas pendentes e fecha o arquivo.
// Não deve ser chamado concorrentemente com Log.
func (l *CSVLogger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.rows)
		<-l.done

		if cerr := l.file.Close(); cerr != nil {
			l.setErr(cerr)
		}
		l.mu.Lock()
		err = l.err
		l.mu.Unlock()
	})
	return err
}
