package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"ecg_go/internal/config"
	"ecg_go/internal/detector"
	"ecg_go/internal/metrics"
	"ecg_go/internal/models"
	"ecg_go/internal/protocol"
	"ecg_go/internal/rate"
	"ecg_go/internal/recorder"
	"ecg_go/internal/source"
	"ecg_go/pkg/logger"
	"ecg_go/pkg/utils"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyRunning indica que já existe uma execução ativa
	ErrAlreadyRunning = errors.New("execução já em andamento")
	// ErrNotRunning indica que não há execução ativa
	ErrNotRunning = errors.New("nenhuma execução em andamento")
)

// Motivos de encerramento de uma execução
const (
	ReasonStopped      = "stopped"
	ReasonIdle         = "idle"
	ReasonSourceClosed = "source_closed"
	ReasonSourceError  = "source_error"
)

// SourceFactory cria a fonte de bytes de uma nova execução
type SourceFactory func() (source.Source, error)

// SinkFactory cria os registros de uma execução e retorna o diretório de
// gravação (vazio quando não há arquivos)
type SinkFactory func(run models.RunInfo) (recorder.Sink, string, error)

// Options reúne os parâmetros de uma execução
type Options struct {
	Monitor      config.MonitorConfig
	Protocol     protocol.Format
	Detector     detector.Config
	Recorder     config.RecorderConfig
	SendCommands bool
	Sinks        SinkFactory
}

// Service é dono da goroutine de ingestão. Cada execução usa instâncias novas
// de reassembler, detector e estimador; a observação só vê cópias.
type Service struct {
	opts      Options
	newSource SourceFactory

	// Estado publicado para a camada de observação
	mutex      sync.RWMutex
	status     models.MonitorStatus
	snapshot   models.Snapshot
	peaks      []models.PeakEvent
	bpmHistory []float64
	recent     *sampleRing

	// Controle da execução
	runMutex sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}

	observers     []Observer
	observersLock sync.RWMutex
}

// run contém o estado pertencente exclusivamente à goroutine de ingestão
type run struct {
	info  models.RunInfo
	src   source.Source
	reasm *protocol.Reassembler
	det   *detector.Detector
	est   *rate.Estimator
	sink  recorder.Sink

	packets      int64
	samples      int64
	gaps         int64
	lastSeq      uint8
	haveSeq      bool
	sampleTime   float64
	lastWindowed time.Time
	lastStats    protocol.ReassemblerStats
	idle         bool
}

// NewService cria o serviço de monitoramento
func NewService(opts Options, newSource SourceFactory) *Service {
	s := &Service{
		opts:      opts,
		newSource: newSource,
		recent:    newSampleRing(opts.Monitor.RecentSamples),
		status: models.MonitorStatus{
			Status:    models.StatusIdle,
			Timestamp: time.Now(),
		},
	}
	s.snapshot.Status = models.StatusIdle
	return s
}

// RegisterObserver registra um observador de eventos
func (s *Service) RegisterObserver(o Observer) {
	s.observersLock.Lock()
	defer s.observersLock.Unlock()
	s.observers = append(s.observers, o)
}

// Start abre a fonte e inicia uma nova execução
func (s *Service) Start() (models.RunInfo, error) {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()

	if s.activeLocked() {
		return models.RunInfo{}, ErrAlreadyRunning
	}

	r, err := s.newRun()
	if err != nil {
		return models.RunInfo{}, err
	}

	s.setStatus(models.StatusStarting, r.info, "")
	logger.Infof("Iniciando execução %s (fonte: %s)", r.info.ID, r.info.Source)

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.src.Open(ctx); err != nil {
		cancel()
		s.setStatus(models.StatusError, r.info, err.Error())
		return models.RunInfo{}, fmt.Errorf("erro ao abrir fonte: %w", err)
	}

	if s.opts.Sinks != nil {
		sink, dir, err := s.opts.Sinks(r.info)
		if err != nil {
			cancel()
			r.src.Close()
			s.setStatus(models.StatusError, r.info, err.Error())
			return models.RunInfo{}, fmt.Errorf("erro ao criar registros: %w", err)
		}
		r.sink = sink
		r.info.OutputDir = dir
	}

	if s.opts.SendCommands {
		if err := r.src.SendCommand(source.CommandStart); err != nil {
			logger.Warnf("Erro ao enviar START ao dispositivo: %v", err)
		}
	}

	s.resetPublished(r)
	s.setStatus(models.StatusRunning, r.info, "")

	// finish escreve em r.info a partir da goroutine de ingestão
	info := r.info
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.ingest(ctx, r, s.done)

	return info, nil
}

func (s *Service) newRun() (*run, error) {
	src, err := s.newSource()
	if err != nil {
		return nil, err
	}
	reasm, err := protocol.NewReassembler(s.opts.Protocol)
	if err != nil {
		return nil, err
	}
	det, err := detector.New(s.opts.Detector)
	if err != nil {
		return nil, err
	}

	return &run{
		info: models.RunInfo{
			ID:        uuid.New().String(),
			Source:    src.Name(),
			StartedAt: time.Now(),
		},
		src:          src,
		reasm:        reasm,
		det:          det,
		est:          rate.NewEstimator(s.opts.Detector.SampleRate, s.opts.Monitor.RateWindow.Duration),
		lastWindowed: time.Now(),
	}, nil
}

// Stop interrompe a execução atual e aguarda o encerramento
func (s *Service) Stop() error {
	s.runMutex.Lock()
	if !s.activeLocked() {
		s.runMutex.Unlock()
		return ErrNotRunning
	}
	cancel, done := s.cancel, s.done
	s.runMutex.Unlock()

	cancel()
	<-done
	return nil
}

// Wait bloqueia até a execução atual terminar
func (s *Service) Wait() {
	s.runMutex.Lock()
	done := s.done
	s.runMutex.Unlock()

	if done != nil {
		<-done
	}
}

// IsRunning indica se há uma execução ativa
func (s *Service) IsRunning() bool {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	return s.activeLocked()
}

func (s *Service) activeLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// ingest executa o laço de leitura até cancelamento, silêncio ou fim da fonte
func (s *Service) ingest(ctx context.Context, r *run, done chan struct{}) {
	defer close(done)

	reason, err := s.loop(ctx, r)
	s.finish(r, reason, err)
}

func (s *Service) loop(ctx context.Context, r *run) (string, error) {
	poll := s.opts.Monitor.PollInterval.Duration
	if poll <= 0 {
		poll = time.Millisecond
	}
	timer := time.NewTimer(poll)
	defer timer.Stop()

	packetLen := s.opts.Protocol.PacketLen()

	for {
		if ctx.Err() != nil {
			return ReasonStopped, nil
		}

		chunk, err := r.src.ReadAvailable()
		if len(chunk) == 0 {
			if err != nil {
				if errors.Is(err, io.EOF) {
					return ReasonSourceClosed, nil
				}
				return ReasonSourceError, err
			}
			if s.checkIdle(r) && s.opts.Monitor.StopOnIdle {
				return ReasonIdle, nil
			}

			timer.Reset(poll)
			select {
			case <-ctx.Done():
				return ReasonStopped, nil
			case <-timer.C:
			}
			continue
		}

		s.markActive(r)
		metrics.BytesReceived.WithLabelValues(r.info.Source).Add(float64(len(chunk)))

		r.reasm.Feed(chunk)
		for {
			// Cancelamento só entre pacotes
			if ctx.Err() != nil {
				return ReasonStopped, nil
			}
			p, ok := r.reasm.NextPacket()
			if !ok {
				if r.reasm.Buffered() < packetLen {
					break
				}
				continue
			}
			s.processPacket(r, p)
		}

		s.publish(r)
	}
}

// checkIdle verifica o tempo sem dados e sinaliza a primeira vez que ele excede o limite
func (s *Service) checkIdle(r *run) bool {
	silence := time.Since(r.src.LastDataAt())
	if silence <= s.opts.Monitor.IdleTimeout.Duration {
		return false
	}
	if !r.idle {
		r.idle = true
		metrics.SourceIdle.Set(1)
		logger.Warnf("Nenhum dado recebido há %v (execução %s)", silence.Round(time.Millisecond), r.info.ID)
		s.setStatus(models.StatusStarved, r.info, "")
		s.publish(r)
	}
	return true
}

func (s *Service) markActive(r *run) {
	if !r.idle {
		return
	}
	r.idle = false
	metrics.SourceIdle.Set(0)
	logger.Info("Fluxo de dados retomado")
	s.setStatus(models.StatusRunning, r.info, "")
}

// processPacket alimenta o detector com cada amostra do pacote, em ordem
func (s *Service) processPacket(r *run, p *protocol.Packet) {
	start := time.Now()

	r.packets++
	metrics.PacketsTotal.Inc()

	if r.haveSeq && !sequenceFollows(r.lastSeq, p.Seq) {
		r.gaps++
		metrics.SequenceGaps.Inc()
		if logger.IsDebugEnabled() {
			logger.Debugf("Salto de sequência: %d -> %d", r.lastSeq, p.Seq)
		}
	}
	r.lastSeq, r.haveSeq = p.Seq, true

	points := make([]models.SamplePoint, len(p.Samples))
	for i, v := range p.Samples {
		t := p.SampleTimes[i]

		if peak, ok := r.det.Process(float64(v)); ok {
			s.handlePeak(r, peak, t)
		}
		if r.sink != nil {
			r.sink.LogSample(recorder.SampleRow{
				Time:        t,
				Sample:      v,
				PacketID:    p.Seq,
				PacketCount: r.packets,
			})
		}
		points[i] = models.SamplePoint{Time: t, Value: v}
	}

	r.samples += int64(len(p.Samples))
	r.sampleTime = p.SampleTimes[len(p.SampleTimes)-1]
	metrics.SamplesTotal.Add(float64(len(p.Samples)))

	s.mutex.Lock()
	for _, pt := range points {
		s.recent.push(pt)
	}
	s.mutex.Unlock()

	if time.Since(r.lastWindowed) >= s.opts.Monitor.WindowedInterval.Duration {
		r.lastWindowed = time.Now()
		s.handleRate(r)
	}

	metrics.PacketProcessing.Observe(time.Since(start).Seconds())
}

// sequenceFollows aceita o incremento simples e a volta 255 -> 0 ou 1
func sequenceFollows(prev, next uint8) bool {
	if prev == math.MaxUint8 {
		return next == 0 || next == 1
	}
	return next == prev+1
}

// handlePeak registra o pico no estimador, nos registros e nos observadores.
// sampleTime é o tempo da amostra em que o pico foi confirmado.
func (s *Service) handlePeak(r *run, peak detector.Peak, sampleTime float64) {
	bpm, hasBPM := r.est.AddPeak(peak.Index, sampleTime/1000)
	instantaneous := utils.RoundTo(r.est.Instantaneous(), 1)

	if r.sink != nil {
		r.sink.LogPeak(recorder.PeakRow{Index: peak.Index, Value: peak.Value, BPM: instantaneous})
	}

	ev := models.PeakEvent{
		RunID:      r.info.ID,
		Number:     r.est.PeakCount(),
		Index:      peak.Index,
		Value:      peak.Value,
		SampleTime: sampleTime,
		HasBPM:     hasBPM && finite(bpm),
		Timestamp:  time.Now(),
	}
	if ev.HasBPM {
		ev.InstantaneousBPM = utils.RoundTo(bpm, 1)
	}

	s.mutex.Lock()
	s.peaks = append(s.peaks, ev)
	if hasBPM {
		s.bpmHistory = append(s.bpmHistory, finiteOrZero(utils.RoundTo(bpm, 1)))
	}
	s.snapshot.PeakCount = len(s.peaks)
	s.snapshot.InstantaneousBPM = finiteOrZero(instantaneous)
	s.mutex.Unlock()

	metrics.PeaksTotal.Inc()
	metrics.SetBPM(instantaneous, r.est.Current())

	if hasBPM {
		logger.Infof("Pico R na amostra %d | BPM instantâneo: %.1f", peak.Index, instantaneous)
	} else {
		logger.Infof("Pico R na amostra %d", peak.Index)
	}

	s.forEachObserver(func(o Observer) { o.OnPeak(ev) })
}

func (s *Service) handleRate(r *run) {
	windowed := r.est.WindowedBPM(r.sampleTime / 1000)

	ev := models.RateUpdate{
		RunID:            r.info.ID,
		WindowedBPM:      finiteOrZero(windowed),
		InstantaneousBPM: finiteOrZero(r.est.Instantaneous()),
		PeakCount:        r.est.PeakCount(),
		SampleTime:       r.sampleTime,
		Timestamp:        time.Now(),
	}

	s.mutex.Lock()
	s.snapshot.WindowedBPM = ev.WindowedBPM
	s.mutex.Unlock()

	metrics.SetBPM(r.est.Instantaneous(), windowed)
	logger.Debugf("BPM em janela (%v): %.1f", r.est.Window(), windowed)

	s.forEachObserver(func(o Observer) { o.OnRate(ev) })
}

// publish copia os contadores da execução para o snapshot
func (s *Service) publish(r *run) {
	stats := r.reasm.Stats()
	if d := stats.Resyncs - r.lastStats.Resyncs; d > 0 {
		metrics.ResyncsTotal.Add(float64(d))
	}
	if d := stats.DroppedBytes - r.lastStats.DroppedBytes; d > 0 {
		metrics.DroppedBytes.Add(float64(d))
	}
	r.lastStats = stats
	metrics.DetectorThreshold.Set(r.det.Threshold())

	s.mutex.Lock()
	defer s.mutex.Unlock()

	snap := &s.snapshot
	snap.Run = r.info
	snap.Status = s.status.Status
	snap.Packets = r.packets
	snap.Samples = r.samples
	snap.Resyncs = stats.Resyncs
	snap.DroppedBytes = stats.DroppedBytes
	snap.SequenceGaps = r.gaps
	snap.LastSeq = r.lastSeq
	snap.DetectorState = r.det.State().String()
	snap.Calibrated = r.det.Calibrated()
	snap.Threshold = r.det.Threshold()
	snap.PeakCount = len(s.peaks)
	snap.LastSampleTime = r.sampleTime
	snap.LastDataAt = r.src.LastDataAt()
	snap.Idle = r.idle
	snap.UpdatedAt = time.Now()
}

// finish encerra a execução: candidato pendente, STOP, fonte, registros e resumo
func (s *Service) finish(r *run, reason string, runErr error) {
	if peak, ok := r.det.Flush(); ok {
		s.handlePeak(r, peak, r.sampleTime)
	}

	if s.opts.SendCommands {
		if err := r.src.SendCommand(source.CommandStop); err != nil && !errors.Is(err, source.ErrNotOpen) {
			logger.Warnf("Erro ao enviar STOP ao dispositivo: %v", err)
		}
	}
	if err := r.src.Close(); err != nil {
		logger.Warnf("Erro ao fechar fonte: %v", err)
	}
	if r.sink != nil {
		if err := r.sink.Close(); err != nil {
			logger.Error("Erro ao fechar registros da execução", err)
		}
	}

	r.info.EndedAt = time.Now()
	r.info.Reason = reason

	if r.info.OutputDir != "" && s.opts.Recorder.MetadataFile != "" {
		s.writeMetadata(r)
	}

	metrics.RunsTotal.WithLabelValues(reason).Inc()
	metrics.SourceIdle.Set(0)

	if runErr != nil {
		logger.Error("Execução encerrada por falha na fonte", runErr)
		s.setStatus(models.StatusError, r.info, runErr.Error())
	} else {
		s.setStatus(models.StatusStopped, r.info, "")
	}
	s.publish(r)

	stats := r.reasm.Stats()
	logger.Infof("Execução %s encerrada (%s) após %s: %d pacotes, %d amostras, %d picos, %d ressincronizações, %d saltos de sequência",
		r.info.ID, reason, utils.FormatDuration(r.info.EndedAt.Sub(r.info.StartedAt)),
		r.packets, r.samples, r.det.PeakCount(), stats.Resyncs, r.gaps)
	logger.Infof("Histórico de BPM: %v", r.est.History())
}

func (s *Service) writeMetadata(r *run) {
	path, err := recorder.WriteMetadata(r.info.OutputDir, s.opts.Recorder.MetadataFile, recorder.Metadata{
		FileName:    r.info.ID,
		StartedAt:   r.info.StartedAt,
		Duration:    r.info.EndedAt.Sub(r.info.StartedAt),
		SampleRate:  s.opts.Detector.SampleRate,
		SampleWidth: s.opts.Protocol.SampleWidth,
		Samples:     r.samples,
		Peaks:       r.det.PeakCount(),
		Sensor:      s.opts.Recorder.SensorInfo,
		Transport:   r.info.Source,
	})
	if err != nil {
		logger.Error("Erro ao gravar metadados", err)
		return
	}
	logger.Infof("Metadados gravados em %s", path)
}

// resetPublished limpa o estado observável para a nova execução
func (s *Service) resetPublished(r *run) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.peaks = nil
	s.bpmHistory = nil
	s.recent = newSampleRing(s.opts.Monitor.RecentSamples)
	s.snapshot = models.Snapshot{
		Run:           r.info,
		Status:        models.StatusStarting,
		DetectorState: r.det.State().String(),
		UpdatedAt:     time.Now(),
	}
}

// setStatus atualiza o status e notifica os observadores
func (s *Service) setStatus(status string, info models.RunInfo, errMsg string) {
	st := models.MonitorStatus{
		Status:    status,
		RunID:     info.ID,
		Source:    info.Source,
		Timestamp: time.Now(),
		LastError: errMsg,
	}

	s.mutex.Lock()
	s.status = st
	s.snapshot.Status = status
	s.mutex.Unlock()

	if status == models.StatusError {
		logger.Warnf("Status do monitor alterado para %s: %s", status, errMsg)
	}

	s.forEachObserver(func(o Observer) { o.OnStatus(st) })
}

func (s *Service) forEachObserver(fn func(Observer)) {
	s.observersLock.RLock()
	observers := s.observers
	s.observersLock.RUnlock()

	for _, o := range observers {
		fn(o)
	}
}

// Status retorna o status atual
func (s *Service) Status() models.MonitorStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.status
}

// Snapshot retorna uma cópia do estado publicado
func (s *Service) Snapshot() models.Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.snapshot
}

// PeakHistory retorna uma cópia dos picos da execução atual
func (s *Service) PeakHistory() []models.PeakEvent {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]models.PeakEvent(nil), s.peaks...)
}

// BPMHistory retorna uma cópia dos BPMs instantâneos (0,1 de precisão), um
// por pico a partir do segundo. RR nulo aparece como 0.
func (s *Service) BPMHistory() []float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]float64(nil), s.bpmHistory...)
}

// RecentSamples retorna até n amostras mais recentes (n <= 0: todas as guardadas)
func (s *Service) RecentSamples(n int) []models.SamplePoint {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.recent.recent(n)
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// finiteOrZero evita valores que o encoding/json não aceita
func finiteOrZero(v float64) float64 {
	if finite(v) {
		return v
	}
	return 0
}
