package stream

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ecg_go/internal/config"
	"ecg_go/internal/models"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func testConfig() config.NATSConfig {
	return config.NATSConfig{PeakSubject: "ecg.peaks", ParamsSubject: "ecg.params"}
}

func TestPublishPeak(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, testConfig())

	p.OnPeak(models.PeakEvent{RunID: "r1", Number: 2, Index: 1050, Value: 3000, InstantaneousBPM: 60, HasBPM: true})

	if len(conn.subjects) != 1 || conn.subjects[0] != "ecg.peaks" {
		t.Fatalf("subjects = %v", conn.subjects)
	}
	var got models.PeakEvent
	if err := json.Unmarshal(conn.payloads[0], &got); err != nil {
		t.Fatalf("payload inválido: %v", err)
	}
	if got.Index != 1050 || got.Number != 2 || got.InstantaneousBPM != 60 {
		t.Errorf("payload = %+v", got)
	}
}

func TestPublishParams(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, testConfig())
	ts := time.UnixMilli(1700000000123)

	p.OnRate(models.RateUpdate{RunID: "r1", WindowedBPM: 75.2, InstantaneousBPM: 71.6, PeakCount: 9, Timestamp: ts})
	p.OnStatus(models.MonitorStatus{Status: models.StatusRunning})

	if len(conn.subjects) != 1 || conn.subjects[0] != "ecg.params" {
		t.Fatalf("subjects = %v", conn.subjects)
	}
	var got ParamMsg
	if err := json.Unmarshal(conn.payloads[0], &got); err != nil {
		t.Fatalf("payload inválido: %v", err)
	}
	if got.HR != 72 || got.WindowedBPM != 75.2 || got.Ts != 1700000000123 || got.PeakCount != 9 {
		t.Errorf("payload = %+v", got)
	}
}

func TestEmptySubjectSkipsPublish(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, config.NATSConfig{})

	p.OnPeak(models.PeakEvent{})
	p.OnRate(models.RateUpdate{})

	if len(conn.subjects) != 0 {
		t.Errorf("publicou %v com assuntos vazios", conn.subjects)
	}
}

func TestPublishErrorIsNotFatal(t *testing.T) {
	conn := &fakeConn{err: errors.New("desconectado")}
	p := newPublisher(conn, testConfig())

	if err := p.send("ecg.peaks", models.PeakEvent{}); err == nil {
		t.Fatal("esperava erro")
	}
	p.OnPeak(models.PeakEvent{})
}
