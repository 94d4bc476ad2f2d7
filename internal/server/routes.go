package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ecg_go/internal/api"
	"ecg_go/internal/discovery"
	"ecg_go/internal/models"
	"ecg_go/internal/websocket"
)

// setupRoutes configura todas as rotas do servidor
func (s *Server) setupRoutes() {
	wsHandler := websocket.NewHandler(s.wsHub, s.config.Server.AllowedOrigins)

	// Sem Redis a API usa só o estado em memória
	var store api.EventStore
	if s.redisService != nil {
		store = s.redisService
	}
	apiRouter := api.NewRouter(s.monitor, store, "/api")
	apiRouter.Setup()

	s.router.HandleFunc("/health", s.healthHandler)
	s.router.HandleFunc("/info", s.infoHandler)

	s.router.Handle("/ws", wsHandler)
	s.router.HandleFunc("/ws/health", wsHandler.HealthHandler())

	s.router.Handle("/api/", apiRouter.Handler())

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// healthHandler responde com o status de saúde do servidor
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := s.monitor.Status()

	redisStatus := "disabled"
	if s.redisService != nil {
		redisStatus = "ok"
		if !s.redisService.IsConnected() {
			redisStatus = "offline"
		}
	}

	natsStatus := "disabled"
	if s.config.NATS.Enabled {
		natsStatus = "offline"
		if s.natsConn != nil && s.natsConn.IsConnected() {
			natsStatus = "ok"
		}
	}

	plcStatus := "disabled"
	if s.plcService != nil {
		plcStatus = "offline"
		if s.plcService.IsRunning() && s.plcService.IsConnected() {
			plcStatus = "ok"
		}
	}

	discoveryStatus := "disabled"
	if s.discoveryService != nil {
		discoveryStatus = "offline"
		if s.discoveryService.IsRunning() {
			discoveryStatus = "ok"
		}
	}

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"monitor":   status.Status,
		"services": map[string]string{
			"redis":     redisStatus,
			"nats":      natsStatus,
			"plc":       plcStatus,
			"websocket": "ok",
			"discovery": discoveryStatus,
		},
	}

	// Fonte com erro ou ociosa degrada o serviço
	if status.Status == models.StatusError || status.Status == models.StatusStarved || redisStatus == "offline" {
		response["status"] = "degraded"
	}

	writeJSON(w, response)
}

// infoHandler retorna informações básicas sobre o servidor
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	info := s.GetServerInfo()
	uptime := time.Since(info.StartTime).Round(time.Second)

	response := map[string]interface{}{
		"name":        discovery.ServiceName,
		"version":     info.Version,
		"ip":          info.IP,
		"port":        info.Port,
		"websocket":   info.WebSocketURL,
		"api":         info.APIURL,
		"startTime":   info.StartTime,
		"uptime":      uptime.String(),
		"connections": info.Connections,
		"source":      s.config.Source.Type,
		"protocol":    s.config.Protocol,
		"sampleRate":  s.config.Detector.SampleRate,
	}
	if s.discoveryService != nil {
		response["mdns"] = s.discoveryService.GetInstanceName() + "." + discovery.ServiceType + "." + discovery.ServiceDomain
	}

	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
