package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"

	"ecg_go/internal/config"
	"ecg_go/internal/discovery"
	"ecg_go/internal/models"
	"ecg_go/internal/monitor"
	"ecg_go/internal/plc"
	"ecg_go/internal/recorder"
	"ecg_go/internal/redis"
	"ecg_go/internal/source"
	"ecg_go/internal/stream"
	"ecg_go/internal/websocket"
	"ecg_go/pkg/logger"
)

// Version versão do servidor
const Version = "1.0.0"

// Server encapsula o servidor HTTP com todos os componentes
type Server struct {
	config           *config.Config
	httpServer       *http.Server
	router           *http.ServeMux
	monitor          *monitor.Service
	redisService     *redis.Service
	natsConn         *nats.Conn
	plcService       *plc.PLCService
	wsHub            *websocket.Hub
	discoveryService *discovery.DiscoveryService
	serverInfo       ServerInfo
}

// ServerInfo contém informações sobre o servidor
type ServerInfo struct {
	IP           string
	Port         int
	StartTime    time.Time
	Connections  int
	Version      string
	WebSocketURL string
	APIURL       string
}

// NewServer cria uma nova instância do servidor
func NewServer(cfg *config.Config) (*Server, error) {
	server := &Server{
		config: cfg,
		router: http.NewServeMux(),
		serverInfo: ServerInfo{
			StartTime: time.Now(),
			Version:   Version,
			Port:      cfg.Server.Port,
		},
	}

	ip, err := discovery.LocalIP()
	if err != nil {
		ip = "localhost"
	}
	server.serverInfo.IP = ip
	server.serverInfo.WebSocketURL = fmt.Sprintf("ws://%s:%d/ws", ip, cfg.Server.Port)
	server.serverInfo.APIURL = fmt.Sprintf("http://%s:%d/api", ip, cfg.Server.Port)

	if err := server.initComponents(); err != nil {
		return nil, err
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

// initComponents inicializa todos os componentes do servidor
func (s *Server) initComponents() error {
	cfg := s.config

	if _, err := source.New(cfg.Source); err != nil {
		return fmt.Errorf("erro ao configurar fonte: %w", err)
	}

	opts := monitor.Options{
		Monitor:      cfg.Monitor,
		Protocol:     cfg.Protocol,
		Detector:     cfg.Detector,
		Recorder:     cfg.Recorder,
		SendCommands: cfg.Source.SendCommands,
	}
	if cfg.Recorder.Enabled {
		opts.Sinks = RecorderSinks(cfg.Recorder)
	}
	s.monitor = monitor.NewService(opts, func() (source.Source, error) {
		return source.New(cfg.Source)
	})

	// Hub WebSocket
	s.wsHub = websocket.NewHub(s.monitor)
	go s.wsHub.Run()
	s.monitor.RegisterObserver(s.wsHub)

	// Redis
	if cfg.Redis.Enabled {
		s.redisService = redis.NewService(cfg.Redis)
		s.monitor.RegisterObserver(s.redisService)
	}

	// NATS
	if cfg.NATS.Enabled {
		nc, err := stream.Connect(cfg.NATS.URL, "ecg-monitor")
		if err != nil {
			logger.Warnf("Aviso: erro ao conectar ao NATS em %s: %v. Publicação desabilitada.", cfg.NATS.URL, err)
		} else {
			s.natsConn = nc
			s.monitor.RegisterObserver(stream.NewPublisher(nc, cfg.NATS))
			logger.Infof("Publicando eventos no NATS (%s, %s)", cfg.NATS.PeakSubject, cfg.NATS.ParamsSubject)
		}
	}

	// PLC
	if cfg.PLC.Enabled {
		s.plcService = plc.NewPLCService(cfg.PLC, s.monitor, s.monitor)
	}

	// Descoberta
	if cfg.Discovery.Enabled {
		s.discoveryService = discovery.NewDiscoveryService(cfg.Server.Port, cfg.Discovery.InstanceName,
			"source="+cfg.Source.Type)
	}

	return nil
}

// RecorderSinks cria os arquivos de cada execução em
// <OutputDir>/<início>_<id curto>
func RecorderSinks(cfg config.RecorderConfig) monitor.SinkFactory {
	return func(run models.RunInfo) (recorder.Sink, string, error) {
		id := run.ID
		if len(id) > 8 {
			id = id[:8]
		}
		dir := filepath.Join(cfg.OutputDir, run.StartedAt.Format("20060102_150405")+"_"+id)

		rec, err := recorder.Open(dir, cfg)
		if err != nil {
			return nil, "", err
		}
		logger.Infof("Gravando execução em %s", rec.Dir())
		return rec, rec.Dir(), nil
	}
}

// Monitor retorna o serviço de monitoramento
func (s *Server) Monitor() *monitor.Service {
	return s.monitor
}

// Start inicia os serviços auxiliares e o servidor HTTP (bloqueante)
func (s *Server) Start() error {
	if s.discoveryService != nil {
		if err := s.discoveryService.Start(); err != nil {
			logger.Warnf("Erro ao iniciar serviço de descoberta: %v", err)
		}
	}

	if s.plcService != nil {
		if err := s.plcService.Start(); err != nil {
			logger.Errorf("Erro ao iniciar serviço PLC: %v", err)
		}
	}

	if s.config.Monitor.AutoStart {
		if _, err := s.monitor.Start(); err != nil {
			logger.Warnf("Não foi possível iniciar a execução automaticamente: %v", err)
		}
	}

	s.logServerInfo()

	logger.Infof("Iniciando servidor HTTP na porta %d", s.config.Server.Port)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("erro ao iniciar servidor HTTP: %w", err)
	}
	return nil
}

// Shutdown encerra graciosamente o servidor e todos os serviços
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Iniciando shutdown do servidor")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Erro ao encerrar servidor HTTP: %v", err)
	}

	if s.discoveryService != nil {
		s.discoveryService.Stop()
	}

	// Encerrar a execução antes dos observadores
	if err := s.monitor.Stop(); err != nil && !errors.Is(err, monitor.ErrNotRunning) {
		logger.Errorf("Erro ao encerrar execução: %v", err)
	}

	if s.plcService != nil {
		s.plcService.Stop()
	}

	if s.natsConn != nil {
		if err := s.natsConn.Drain(); err != nil {
			logger.Warnf("Erro ao drenar conexão NATS: %v", err)
		}
	}

	s.wsHub.Shutdown()

	if s.redisService != nil {
		s.redisService.Shutdown()
	}

	logger.Info("Shutdown completo")
	return nil
}

// GetServerInfo retorna informações sobre o servidor
func (s *Server) GetServerInfo() ServerInfo {
	info := s.serverInfo
	info.Connections = s.wsHub.ClientCount()
	return info
}

// logServerInfo exibe informações do servidor no log
func (s *Server) logServerInfo() {
	logger.Info("===============================================")
	logger.Info("               ECG Monitor Server              ")
	logger.Info("===============================================")
	logger.Infof("Versão: %s", s.serverInfo.Version)
	logger.Infof("Endereço IP: %s", s.serverInfo.IP)
	logger.Infof("Porta HTTP: %d", s.serverInfo.Port)
	logger.Infof("WebSocket URL: %s", s.serverInfo.WebSocketURL)
	logger.Infof("API URL: %s", s.serverInfo.APIURL)
	logger.Infof("Fonte: %s | pacote: %d amostras de %d byte(s) | %d Hz",
		s.config.Source.Type, s.config.Protocol.SamplesPerPacket,
		s.config.Protocol.SampleWidth, s.config.Detector.SampleRate)
	if s.discoveryService != nil {
		logger.Infof("mDNS: %s.%s.%s",
			s.discoveryService.GetInstanceName(),
			discovery.ServiceType,
			discovery.ServiceDomain)
	}
	logger.Info("===============================================")
	logger.Info("Servidor pronto para conexões!")
}
