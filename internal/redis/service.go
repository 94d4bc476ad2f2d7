package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"ecg_go/internal/config"
	"ecg_go/internal/metrics"
	"ecg_go/internal/models"
	"ecg_go/pkg/logger"
)

const (
	defaultQueueSize = 256
	reconnectEvery   = 5 * time.Second
	writeTimeout     = 2 * time.Second
)

type eventKind int

const (
	peakEvent eventKind = iota
	rateEvent
	statusEvent
)

type event struct {
	kind   eventKind
	peak   models.PeakEvent
	rate   models.RateUpdate
	status models.MonitorStatus
}

// Service grava os eventos do monitor no Redis.
// Os observadores só enfileiram; uma goroutine faz as escritas.
type Service struct {
	client *Client
	ttl    time.Duration

	queue     chan event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	lastAttempt time.Time
}

// NewService cria o serviço e inicia a goroutine de escrita.
// Sem conexão, o serviço segue em modo offline e tenta reconectar.
func NewService(cfg config.RedisConfig) *Service {
	s := &Service{
		client:  NewClient(cfg),
		ttl:     cfg.HistoryTTL.Duration,
		queue:   make(chan event, defaultQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if !cfg.Enabled {
		close(s.done)
		return s
	}

	s.lastAttempt = time.Now()
	if err := s.client.Connect(context.Background()); err != nil {
		logger.Warnf("Aviso: %v. O Redis será utilizado em modo offline.", err)
	}

	go s.run()
	return s
}

// IsConnected verifica se o serviço está conectado
func (s *Service) IsConnected() bool {
	return s.client.IsConnected()
}

// OnPeak implementa monitor.Observer
func (s *Service) OnPeak(ev models.PeakEvent) {
	s.enqueue(event{kind: peakEvent, peak: ev})
}

// OnRate implementa monitor.Observer
func (s *Service) OnRate(ev models.RateUpdate) {
	s.enqueue(event{kind: rateEvent, rate: ev})
}

// OnStatus implementa monitor.Observer
func (s *Service) OnStatus(st models.MonitorStatus) {
	s.enqueue(event{kind: statusEvent, status: st})
}

func (s *Service) enqueue(ev event) {
	if s.client.rdb == nil {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.queue <- ev:
	default:
		metrics.PublishErrors.WithLabelValues("redis").Inc()
		logger.Warn("Fila do Redis cheia, evento descartado")
	}
}

func (s *Service) run() {
	defer close(s.stopped)
	for {
		select {
		case ev := <-s.queue:
			s.write(ev)
		case <-s.done:
			// Esvazia o que já foi enfileirado
			for {
				select {
				case ev := <-s.queue:
					s.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) write(ev event) {
	if !s.client.IsConnected() {
		if time.Since(s.lastAttempt) < reconnectEvery {
			return
		}
		s.lastAttempt = time.Now()
		if err := s.client.Connect(context.Background()); err != nil {
			logger.Debugf("Redis ainda indisponível: %v", err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch ev.kind {
	case peakEvent:
		err = s.writePeak(ctx, ev.peak)
	case rateEvent:
		err = s.writeRate(ctx, ev.rate)
	case statusEvent:
		err = s.writeStatus(ctx, ev.status)
	}

	if err != nil {
		s.client.setConnected(false)
		metrics.PublishErrors.WithLabelValues("redis").Inc()
		logger.Errorf("Erro ao escrever no Redis: %v", err)
	}
}

func (s *Service) peaksKey(runID string) string {
	return s.client.Key("runs", runID, "peaks")
}

func (s *Service) writePeak(ctx context.Context, ev models.PeakEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("erro ao serializar pico: %w", err)
	}

	histKey := s.peaksKey(ev.RunID)
	pipe := s.client.rdb.Pipeline()
	pipe.ZAdd(ctx, histKey, &redis.Z{
		Score:  float64(ev.Index),
		Member: string(data),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, histKey, s.ttl)
	}
	pipe.Set(ctx, s.client.Key("peaks", "latest"), string(data), 0)
	pipe.Incr(ctx, s.client.Key("peaks", "count"))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("erro ao gravar pico: %w", err)
	}
	return nil
}

func (s *Service) writeRate(ctx context.Context, ev models.RateUpdate) error {
	pipe := s.client.rdb.Pipeline()
	pipe.HSet(ctx, s.client.Key("rate"), rateFields(ev))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("erro ao gravar frequência: %w", err)
	}
	return nil
}

func (s *Service) writeStatus(ctx context.Context, st models.MonitorStatus) error {
	pipe := s.client.rdb.Pipeline()
	pipe.Set(ctx, s.client.Key("status"), st.Status, 0)
	pipe.Set(ctx, s.client.Key("timestamp"), st.Timestamp.UnixMilli(), 0)
	pipe.Set(ctx, s.client.Key("run_id"), st.RunID, 0)
	if st.LastError != "" {
		pipe.Set(ctx, s.client.Key("ultimo_erro"), st.LastError, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("erro ao gravar status: %w", err)
	}
	return nil
}

func rateFields(ev models.RateUpdate) map[string]interface{} {
	return map[string]interface{}{
		"run_id":            ev.RunID,
		"windowed_bpm":      ev.WindowedBPM,
		"instantaneous_bpm": ev.InstantaneousBPM,
		"peak_count":        ev.PeakCount,
		"sample_time":       ev.SampleTime,
		"timestamp":         ev.Timestamp.UnixMilli(),
	}
}

func parseRate(fields map[string]string) models.RateUpdate {
	var ev models.RateUpdate
	ev.RunID = fields["run_id"]
	ev.WindowedBPM, _ = strconv.ParseFloat(fields["windowed_bpm"], 64)
	ev.InstantaneousBPM, _ = strconv.ParseFloat(fields["instantaneous_bpm"], 64)
	ev.PeakCount, _ = strconv.Atoi(fields["peak_count"])
	ev.SampleTime, _ = strconv.ParseFloat(fields["sample_time"], 64)
	if ms, err := strconv.ParseInt(fields["timestamp"], 10, 64); err == nil {
		ev.Timestamp = time.UnixMilli(ms)
	}
	return ev
}

// GetStatus obtém o último status gravado
func (s *Service) GetStatus(ctx context.Context) (*models.MonitorStatus, error) {
	if !s.IsConnected() {
		return nil, ErrDisabled
	}

	status, err := s.client.rdb.Get(ctx, s.client.Key("status")).Result()
	if err != nil {
		return nil, fmt.Errorf("erro ao obter status: %w", err)
	}

	st := &models.MonitorStatus{Status: status, Timestamp: time.Now()}
	if ms, err := s.client.rdb.Get(ctx, s.client.Key("timestamp")).Int64(); err == nil {
		st.Timestamp = time.UnixMilli(ms)
	}
	if id, err := s.client.rdb.Get(ctx, s.client.Key("run_id")).Result(); err == nil {
		st.RunID = id
	}
	if msg, err := s.client.rdb.Get(ctx, s.client.Key("ultimo_erro")).Result(); err == nil {
		st.LastError = msg
	}
	return st, nil
}

// GetRate obtém a última frequência em janela gravada
func (s *Service) GetRate(ctx context.Context) (*models.RateUpdate, error) {
	if !s.IsConnected() {
		return nil, ErrDisabled
	}

	fields, err := s.client.rdb.HGetAll(ctx, s.client.Key("rate")).Result()
	if err != nil {
		return nil, fmt.Errorf("erro ao obter frequência: %w", err)
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}
	ev := parseRate(fields)
	return &ev, nil
}

// GetPeaks obtém o histórico de picos de uma execução, em ordem de índice.
// limit <= 0 retorna tudo; caso contrário, os últimos limit picos.
func (s *Service) GetPeaks(ctx context.Context, runID string, limit int) ([]models.PeakEvent, error) {
	if !s.IsConnected() {
		return nil, ErrDisabled
	}

	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	members, err := s.client.rdb.ZRange(ctx, s.peaksKey(runID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("erro ao obter histórico de picos: %w", err)
	}

	peaks := make([]models.PeakEvent, 0, len(members))
	for _, m := range members {
		var ev models.PeakEvent
		if err := json.Unmarshal([]byte(m), &ev); err != nil {
			continue
		}
		peaks = append(peaks, ev)
	}
	return peaks, nil
}

// Shutdown grava o que restou na fila e fecha a conexão
func (s *Service) Shutdown() {
	s.closeOnce.Do(func() {
		if s.client.rdb == nil {
			return
		}
		close(s.done)
		select {
		case <-s.stopped:
		case <-time.After(2 * writeTimeout):
			logger.Warn("Timeout ao esvaziar a fila do Redis")
		}
		if err := s.client.Close(); err != nil {
			logger.Error("Erro ao fechar conexão com Redis", err)
		}
	})
}
