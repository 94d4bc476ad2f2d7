package websocket

import (
	"bytes"
	"encoding/json"
	"time"

	"ecg_go/internal/models"
)

// Comandos aceitos dos clientes
const (
	CommandPing        = "ping"
	CommandGetSnapshot = "get_snapshot"
	CommandGetSamples  = "get_samples"
	CommandGetStatus   = "get_status"
)

// defaultSampleCount amostras devolvidas por get_samples sem "n"
const defaultSampleCount = 500

// newMessage cria uma mensagem com tipo e dados
func newMessage(msgType string, data interface{}) models.WebSocketMessage {
	return models.WebSocketMessage{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewErrorMessage cria uma nova mensagem de erro
func NewErrorMessage(message string, errorCode string) models.WebSocketMessage {
	return models.WebSocketMessage{
		Type:      models.MessageError,
		Timestamp: time.Now(),
		Error:     message,
		Data: map[string]string{
			"code": errorCode,
		},
	}
}

// NewPongMessage cria uma resposta para um ping do cliente
func NewPongMessage(pingTime int64) models.WebSocketMessage {
	return newMessage(models.MessagePong, models.PongMessage{
		Time:       pingTime,
		ServerTime: time.Now().UnixMilli(),
	})
}

// SerializeMessage serializa uma mensagem para JSON
func SerializeMessage(message interface{}) ([]byte, error) {
	return json.Marshal(message)
}

// ParseClientCommand analisa um comando recebido do cliente.
// Campos desconhecidos são rejeitados.
func ParseClientCommand(data []byte) (models.CommandMessage, error) {
	var cmd models.CommandMessage
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&cmd)
	return cmd, err
}

// intParam lê um parâmetro numérico do comando
func intParam(cmd models.CommandMessage, name string, def int) int {
	if cmd.Params == nil {
		return def
	}
	if v, ok := cmd.Params[name].(float64); ok {
		return int(v)
	}
	return def
}
