package websocket

import (
	"context"
	"sync"
	"time"

	"ecg_go/internal/metrics"
	"ecg_go/internal/models"
	"ecg_go/pkg/logger"
)

// Provider fornece o estado do monitor para os comandos dos clientes
type Provider interface {
	Status() models.MonitorStatus
	Snapshot() models.Snapshot
	RecentSamples(n int) []models.SamplePoint
}

type clientCommand struct {
	client *Client
	cmd    models.CommandMessage
}

// Hub gerencia todas as conexões WebSocket e distribuição de mensagens
type Hub struct {
	provider Provider

	// Clientes registrados
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	commands   chan clientCommand

	// Protege clients e os canais send dos clientes
	mu sync.RWMutex

	stats struct {
		totalMessages      int64
		totalClients       int64
		droppedMessages    int64
		messagesPerSecond  float64
		lastStatsReset     time.Time
		messagesSinceReset int64
	}
	statsLock sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub cria uma nova instância do Hub. provider pode ser nil.
func NewHub(provider Provider) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		provider:   provider,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
		commands:   make(chan clientCommand, 100),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.stats.lastStatsReset = time.Now()
	return h
}

// Run inicia o loop principal do hub para gerenciar clientes e mensagens
func (h *Hub) Run() {
	logger.Info("Iniciando WebSocket Hub")
	defer close(h.done)

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			logger.Info("Encerrando WebSocket Hub")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()

			metrics.WebSocketClients.Set(float64(clientCount))
			logger.Infof("Novo cliente WebSocket conectado. ID: %s. Total: %d", client.id, clientCount)

			h.statsLock.Lock()
			h.stats.totalClients++
			h.statsLock.Unlock()

			h.sendInitialData(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.fanOut(message)

		case cc := <-h.commands:
			h.handleClientCommand(cc)

		case <-statsTicker.C:
			h.logStats()
		}
	}
}

// fanOut envia a mensagem a todos os clientes; clientes lentos são desconectados
func (h *Hub) fanOut(message []byte) {
	h.statsLock.Lock()
	h.stats.totalMessages++
	h.stats.messagesSinceReset++
	h.statsLock.Unlock()

	h.mu.RLock()
	deadClients := make([]*Client, 0, 4)
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			deadClients = append(deadClients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range deadClients {
		logger.Warnf("Cliente WebSocket %s lento, desconectando", client.id)
		h.removeClient(client)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	clientCount := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(clientCount))
	logger.Infof("Cliente WebSocket desconectado. ID: %s. Total: %d", client.id, clientCount)
}

func (h *Hub) logStats() {
	h.statsLock.Lock()
	elapsed := time.Since(h.stats.lastStatsReset).Seconds()
	if elapsed > 0 {
		h.stats.messagesPerSecond = float64(h.stats.messagesSinceReset) / elapsed
	}
	h.stats.messagesSinceReset = 0
	h.stats.lastStatsReset = time.Now()
	mps := h.stats.messagesPerSecond
	total := h.stats.totalMessages
	dropped := h.stats.droppedMessages
	h.statsLock.Unlock()

	logger.Debugf("Estatísticas WebSocket: %d clientes, %.2f msgs/seg, total: %d, descartadas: %d",
		h.ClientCount(), mps, total, dropped)
}

// registerClient registra um cliente; falha se o hub já foi encerrado
func (h *Hub) registerClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) submitCommand(cc clientCommand) {
	select {
	case h.commands <- cc:
	default:
		h.sendTo(cc.client, NewErrorMessage("Servidor ocupado", "busy"))
	}
}

// sendTo envia uma mensagem a um único cliente, se ainda registrado
func (h *Hub) sendTo(client *Client, message interface{}) {
	data, err := SerializeMessage(message)
	if err != nil {
		logger.Error("Erro ao serializar mensagem", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
		h.countDropped()
	}
}

// Broadcast envia uma mensagem a todos os clientes sem bloquear
func (h *Hub) Broadcast(message models.WebSocketMessage) {
	data, err := SerializeMessage(message)
	if err != nil {
		logger.Error("Erro ao serializar mensagem", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.countDropped()
	}
}

func (h *Hub) countDropped() {
	h.statsLock.Lock()
	h.stats.droppedMessages++
	h.statsLock.Unlock()
	metrics.PublishErrors.WithLabelValues("websocket").Inc()
}

// OnPeak implementa monitor.Observer
func (h *Hub) OnPeak(ev models.PeakEvent) {
	h.Broadcast(newMessage(models.MessagePeak, ev))
}

// OnRate implementa monitor.Observer
func (h *Hub) OnRate(ev models.RateUpdate) {
	h.Broadcast(newMessage(models.MessageRate, ev))
}

// OnStatus implementa monitor.Observer
func (h *Hub) OnStatus(st models.MonitorStatus) {
	h.Broadcast(newMessage(models.MessageStatus, st))
}

// handleClientCommand processa comandos recebidos dos clientes
func (h *Hub) handleClientCommand(cc clientCommand) {
	logger.Debugf("Comando recebido do cliente %s: %s", cc.client.id, cc.cmd.Type)

	if h.provider == nil {
		h.reply(cc, NewErrorMessage("Monitor indisponível", "unavailable"))
		return
	}

	switch cc.cmd.Type {
	case CommandGetSnapshot:
		h.reply(cc, newMessage(models.MessageSnapshot, h.provider.Snapshot()))
	case CommandGetStatus:
		h.reply(cc, newMessage(models.MessageStatus, h.provider.Status()))
	case CommandGetSamples:
		n := intParam(cc.cmd, "n", defaultSampleCount)
		h.reply(cc, newMessage(models.MessageSamples, h.provider.RecentSamples(n)))
	default:
		logger.Warnf("Comando desconhecido: %s", cc.cmd.Type)
		h.reply(cc, NewErrorMessage("Comando desconhecido: "+cc.cmd.Type, "unknown_command"))
	}
}

func (h *Hub) reply(cc clientCommand, msg models.WebSocketMessage) {
	msg.ID = cc.cmd.ID
	h.sendTo(cc.client, msg)
}

// sendInitialData envia boas-vindas e o status atual a um novo cliente
func (h *Hub) sendInitialData(client *Client) {
	h.sendTo(client, newMessage(models.MessageWelcome, map[string]interface{}{
		"message":  "Conectado ao monitor de ECG",
		"clientId": client.id,
	}))
	if h.provider != nil {
		h.sendTo(client, newMessage(models.MessageStatus, h.provider.Status()))
	}
}

// Shutdown encerra o hub e fecha todos os clientes
func (h *Hub) Shutdown() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(time.Second):
	}
}

// closeAllClients fecha todas as conexões dos clientes
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("Fechando todas as conexões de clientes WebSocket")
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebSocketClients.Set(0)
}

// ClientCount retorna o número atual de clientes conectados
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
