package models

import "time"

// Tipos de mensagem enviados pelo servidor
const (
	MessagePeak     = "peak"
	MessageRate     = "rate"
	MessageStatus   = "status"
	MessageSnapshot = "snapshot"
	MessageSamples  = "samples"
	MessageWelcome  = "welcome"
	MessagePong     = "pong"
	MessageError    = "error"
)

// WebSocketMessage representa a estrutura base de todas as mensagens WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`            // Tipo da mensagem: "peak", "rate", "status", etc.
	Timestamp time.Time   `json:"timestamp"`       // Timestamp da mensagem
	Data      interface{} `json:"data,omitempty"`  // Dados específicos do tipo
	Error     string      `json:"error,omitempty"` // Mensagem de erro, se houver
	ID        string      `json:"id,omitempty"`    // Correlaciona respostas a comandos
}

// CommandMessage é uma mensagem de comando do cliente para o servidor
type CommandMessage struct {
	Type   string                 `json:"type"`             // "get_snapshot", "get_samples", "ping", etc.
	Params map[string]interface{} `json:"params,omitempty"` // Parâmetros adicionais
	ID     string                 `json:"id,omitempty"`     // ID opcional para correlacionar solicitações/respostas
}

// PongMessage representa um pong enviado pelo servidor
type PongMessage struct {
	Time       int64 `json:"time"`       // Timestamp original do ping
	ServerTime int64 `json:"serverTime"` // Timestamp do servidor em milissegundos
}
