package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ecg_go/internal/models"
	"ecg_go/internal/monitor"
	"ecg_go/pkg/logger"
)

// Monitor é o subconjunto do serviço de monitoramento usado pela API
type Monitor interface {
	Start() (models.RunInfo, error)
	Stop() error
	IsRunning() bool
	Status() models.MonitorStatus
	Snapshot() models.Snapshot
	PeakHistory() []models.PeakEvent
	BPMHistory() []float64
	RecentSamples(n int) []models.SamplePoint
}

// EventStore guarda o histórico de picos de execuções anteriores
type EventStore interface {
	IsConnected() bool
	GetPeaks(ctx context.Context, runID string, limit int) ([]models.PeakEvent, error)
}

// defaultSampleCount amostras devolvidas por /samples sem "n"
const defaultSampleCount = 500

// Handler contém os handlers HTTP para a API
type Handler struct {
	monitor Monitor
	store   EventStore
}

// NewHandler cria um novo handler de API. store pode ser nil.
func NewHandler(mon Monitor, store EventStore) *Handler {
	return &Handler{
		monitor: mon,
		store:   store,
	}
}

// GetStatus retorna o status atual do monitor
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	status := h.monitor.Status()
	response := map[string]interface{}{
		"status":    status.Status,
		"running":   h.monitor.IsRunning(),
		"timestamp": status.Timestamp.UnixMilli(),
	}
	if status.RunID != "" {
		response["runId"] = status.RunID
	}
	if status.Source != "" {
		response["source"] = status.Source
	}
	if status.LastError != "" {
		response["lastError"] = status.LastError
	}
	if h.store != nil {
		response["redis"] = h.store.IsConnected()
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

// GetCurrentData retorna o snapshot publicado pelo monitor
func (h *Handler) GetCurrentData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	h.respondWithJSON(w, http.StatusOK, h.monitor.Snapshot())
}

// GetPeaks retorna o histórico de picos.
// ?run= busca uma execução anterior no Redis; ?limit= mantém só os últimos.
func (h *Handler) GetPeaks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		h.respondWithError(w, http.StatusBadRequest, "Parâmetro limit inválido")
		return
	}

	runID := r.URL.Query().Get("run")
	if runID != "" && runID != h.monitor.Status().RunID {
		if h.store == nil || !h.store.IsConnected() {
			h.respondWithError(w, http.StatusServiceUnavailable, "Histórico de execuções indisponível")
			return
		}
		peaks, err := h.store.GetPeaks(r.Context(), runID, limit)
		if err != nil {
			logger.Warnf("Erro ao obter picos da execução %s: %v", runID, err)
			h.respondWithError(w, http.StatusBadGateway, "Erro ao consultar histórico")
			return
		}
		if peaks == nil {
			peaks = []models.PeakEvent{}
		}
		h.respondWithJSON(w, http.StatusOK, peaks)
		return
	}

	peaks := h.monitor.PeakHistory()
	if limit > 0 && len(peaks) > limit {
		peaks = peaks[len(peaks)-limit:]
	}
	if peaks == nil {
		peaks = []models.PeakEvent{}
	}
	h.respondWithJSON(w, http.StatusOK, peaks)
}

// GetBPMHistory retorna o histórico de BPM instantâneo da execução atual
func (h *Handler) GetBPMHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	history := h.monitor.BPMHistory()
	if history == nil {
		history = []float64{}
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"runId":   h.monitor.Status().RunID,
		"history": history,
	})
}

// GetSamples retorna as amostras brutas mais recentes
func (h *Handler) GetSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	n, err := queryInt(r, "n", defaultSampleCount)
	if err != nil || n <= 0 {
		h.respondWithError(w, http.StatusBadRequest, "Parâmetro n inválido")
		return
	}

	samples := h.monitor.RecentSamples(n)
	if samples == nil {
		samples = []models.SamplePoint{}
	}
	h.respondWithJSON(w, http.StatusOK, samples)
}

// StartRun abre a fonte e envia START ao dispositivo
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	info, err := h.monitor.Start()
	if err != nil {
		if errors.Is(err, monitor.ErrAlreadyRunning) {
			h.respondWithError(w, http.StatusConflict, "Execução já em andamento")
			return
		}
		logger.Errorf("Erro ao iniciar execução: %v", err)
		h.respondWithError(w, http.StatusBadGateway, fmt.Sprintf("Erro ao iniciar execução: %v", err))
		return
	}

	h.respondWithJSON(w, http.StatusOK, info)
}

// StopRun envia STOP e encerra a execução atual
func (h *Handler) StopRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	if err := h.monitor.Stop(); err != nil {
		if errors.Is(err, monitor.ErrNotRunning) {
			h.respondWithError(w, http.StatusConflict, "Nenhuma execução em andamento")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    models.StatusStopped,
		"timestamp": time.Now().UnixMilli(),
	})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// respondWithError responde com erro em formato JSON
func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON responde com JSON
func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorf("Erro ao codificar resposta JSON: %v", err)
		fmt.Fprintf(w, `{"error":"Erro interno ao processar resposta"}`)
	}
}
