package source

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"ecg_go/internal/config"
)

func TestChunkQueueDrain(t *testing.T) {
	var q chunkQueue
	if b, err := q.drain(); b != nil || err != nil {
		t.Fatalf("fila vazia retornou %v, %v", b, err)
	}

	chunk := []byte{1, 2, 3}
	q.push(chunk)
	chunk[0] = 99 // a fila guarda uma cópia
	q.push([]byte{4})
	q.push(nil)

	if q.available() != 4 {
		t.Fatalf("available = %d, want 4", q.available())
	}
	b, err := q.drain()
	if err != nil || string(b) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("drain = %v, %v", b, err)
	}
	if q.available() != 0 {
		t.Errorf("fila não esvaziou")
	}
	if q.lastDataAt().IsZero() {
		t.Error("lastDataAt não atualizado")
	}
}

func TestChunkQueueDeliversDataBeforeError(t *testing.T) {
	var q chunkQueue
	q.push([]byte{0xAA})
	q.fail(io.EOF)

	b, err := q.drain()
	if err != nil || len(b) != 1 {
		t.Fatalf("primeiro drain = %v, %v", b, err)
	}
	if _, err := q.drain(); !errors.Is(err, io.EOF) {
		t.Fatalf("segundo drain err = %v, want EOF", err)
	}
}

func TestNewUnknownType(t *testing.T) {
	if _, err := New(config.SourceConfig{Type: "ble"}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
	for _, typ := range []string{config.SourceSerial, config.SourceTCP, config.SourceMQTT} {
		s, err := New(config.SourceConfig{Type: typ})
		if err != nil || s == nil {
			t.Errorf("New(%s) = %v, %v", typ, s, err)
		}
	}
}

func TestSendCommandBeforeOpen(t *testing.T) {
	s := NewTCPSource(config.TCPConfig{Address: "127.0.0.1:1"})
	if err := s.SendCommand(CommandStart); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("err = %v, want ErrNotOpen", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condição não satisfeita a tempo")
}

func TestTCPSourceRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	commands := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		commands <- line
		conn.Write([]byte{0xAA, 0x55, 0x01})
		conn.Write([]byte{0x02, 0x03})
	}()

	s := NewTCPSource(config.TCPConfig{Address: ln.Addr().String()})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.SendCommand(CommandStart); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	select {
	case line := <-commands:
		if line != "START\n" {
			t.Errorf("comando recebido = %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("comando não chegou")
	}

	var got []byte
	waitFor(t, func() bool {
		b, _ := s.ReadAvailable()
		got = append(got, b...)
		return len(got) >= 5
	})
	if string(got) != string([]byte{0xAA, 0x55, 0x01, 0x02, 0x03}) {
		t.Errorf("bytes = % X", got)
	}

	// O servidor fecha a conexão: a fonte reporta fim de fluxo
	waitFor(t, func() bool {
		_, err := s.ReadAvailable()
		return errors.Is(err, io.EOF)
	})
}
