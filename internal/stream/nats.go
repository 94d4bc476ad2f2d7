package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"ecg_go/internal/config"
	"ecg_go/internal/metrics"
	"ecg_go/internal/models"
	"ecg_go/pkg/logger"
)

// Connect abre uma conexão NATS com reconexão infinita
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS desconectado: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconectado em %s", nc.ConnectedUrl())
		}),
	)
}

// publisher é o subconjunto de *nats.Conn usado aqui
type publisher interface {
	Publish(subject string, data []byte) error
}

// ParamMsg é a mensagem publicada no assunto de parâmetros
type ParamMsg struct {
	RunID       string  `json:"runId"`
	Ts          int64   `json:"ts"`
	HR          int     `json:"hr"` // BPM instantâneo arredondado
	WindowedBPM float64 `json:"windowedBpm"`
	PeakCount   int     `json:"peakCount"`
}

// Publisher publica picos e frequência no NATS
type Publisher struct {
	conn          publisher
	peakSubject   string
	paramsSubject string
}

// NewPublisher cria um publicador sobre uma conexão já aberta
func NewPublisher(conn *nats.Conn, cfg config.NATSConfig) *Publisher {
	return newPublisher(conn, cfg)
}

func newPublisher(conn publisher, cfg config.NATSConfig) *Publisher {
	return &Publisher{
		conn:          conn,
		peakSubject:   cfg.PeakSubject,
		paramsSubject: cfg.ParamsSubject,
	}
}

// OnPeak publica o pico confirmado
func (p *Publisher) OnPeak(ev models.PeakEvent) {
	if p.peakSubject == "" {
		return
	}
	p.publish(p.peakSubject, ev)
}

// OnRate publica a frequência no formato de parâmetros
func (p *Publisher) OnRate(ev models.RateUpdate) {
	if p.paramsSubject == "" {
		return
	}
	p.publish(p.paramsSubject, newParamMsg(ev))
}

// OnStatus não é publicado
func (p *Publisher) OnStatus(models.MonitorStatus) {}

func newParamMsg(ev models.RateUpdate) ParamMsg {
	return ParamMsg{
		RunID:       ev.RunID,
		Ts:          ev.Timestamp.UnixMilli(),
		HR:          int(ev.InstantaneousBPM + 0.5),
		WindowedBPM: ev.WindowedBPM,
		PeakCount:   ev.PeakCount,
	}
}

func (p *Publisher) publish(subject string, v interface{}) {
	if err := p.send(subject, v); err != nil {
		metrics.PublishErrors.WithLabelValues("nats").Inc()
		logger.Warnf("Erro ao publicar em %s: %v", subject, err)
	}
}

func (p *Publisher) send(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("erro ao serializar mensagem: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("erro ao publicar: %w", err)
	}
	return nil
}
