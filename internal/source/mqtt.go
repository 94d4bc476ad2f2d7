package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ecg_go/internal/config"
	"ecg_go/pkg/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSource recebe o fluxo bruto publicado por um gateway de rádio.
// Cada mensagem do tópico de dados carrega um pedaço arbitrário do fluxo.
type MQTTSource struct {
	cfg   config.MQTTConfig
	queue chunkQueue

	mutex  sync.Mutex
	client mqtt.Client
}

// NewMQTTSource cria uma fonte MQTT
func NewMQTTSource(cfg config.MQTTConfig) *MQTTSource {
	return &MQTTSource{cfg: cfg}
}

// Name implementa Source
func (s *MQTTSource) Name() string {
	return fmt.Sprintf("mqtt://%s/%s", s.cfg.Broker, s.cfg.DataTopic)
}

func (s *MQTTSource) timeout() time.Duration {
	if s.cfg.ConnectTimeout.Duration > 0 {
		return s.cfg.ConnectTimeout.Duration
	}
	return 10 * time.Second
}

// Open conecta ao broker e assina o tópico de dados
func (s *MQTTSource) Open(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.client != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)

	clientID := s.cfg.ClientID
	if clientID == "" {
		clientID = "ecg-monitor"
	}
	opts.SetClientID(fmt.Sprintf("%s-%d", clientID, time.Now().Unix()))

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(s.timeout())
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	// Pedaços fora de ordem corrompem o fluxo
	opts.SetOrderMatters(true)

	opts.OnConnect = s.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warnf("Conexão MQTT perdida: %v (reconectando)", err)
	}

	s.queue.reset()
	client := mqtt.NewClient(opts)

	logger.Infof("Conectando ao broker MQTT %s...", s.cfg.Broker)
	token := client.Connect()
	if !token.WaitTimeout(s.timeout()) {
		return fmt.Errorf("timeout ao conectar ao broker MQTT %s", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("erro ao conectar ao broker MQTT: %w", err)
	}

	s.client = client
	return nil
}

// onConnect assina o tópico de dados a cada (re)conexão
func (s *MQTTSource) onConnect(client mqtt.Client) {
	token := client.Subscribe(s.cfg.DataTopic, s.cfg.QoS, s.onMessage)
	if !token.WaitTimeout(5 * time.Second) {
		logger.Warnf("Timeout ao assinar %s", s.cfg.DataTopic)
		return
	}
	if err := token.Error(); err != nil {
		logger.Error("Erro ao assinar tópico MQTT", err)
		return
	}
	logger.Infof("Assinado tópico MQTT %s", s.cfg.DataTopic)
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.queue.push(msg.Payload())
}

// Available implementa Source
func (s *MQTTSource) Available() int {
	return s.queue.available()
}

// ReadAvailable implementa Source
func (s *MQTTSource) ReadAvailable() ([]byte, error) {
	return s.queue.drain()
}

// LastDataAt implementa Source
func (s *MQTTSource) LastDataAt() time.Time {
	return s.queue.lastDataAt()
}

// SendCommand publica o comando no tópico de comandos do gateway
func (s *MQTTSource) SendCommand(cmd string) error {
	s.mutex.Lock()
	client := s.client
	s.mutex.Unlock()

	if client == nil {
		return ErrNotOpen
	}
	if s.cfg.CommandTopic == "" {
		return fmt.Errorf("tópico de comandos MQTT não configurado")
	}

	token := client.Publish(s.cfg.CommandTopic, s.cfg.QoS, false, formatCommand(cmd))
	if !token.WaitTimeout(s.timeout()) {
		return fmt.Errorf("timeout ao publicar comando %s", cmd)
	}
	return token.Error()
}

// Close desconecta do broker
func (s *MQTTSource) Close() error {
	s.mutex.Lock()
	client := s.client
	s.client = nil
	s.mutex.Unlock()

	if client == nil {
		return nil
	}
	if client.IsConnected() {
		client.Unsubscribe(s.cfg.DataTopic).WaitTimeout(time.Second)
		client.Disconnect(250)
	}
	logger.Info("Desconectado do broker MQTT")
	return nil
}
