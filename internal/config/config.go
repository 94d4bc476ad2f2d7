package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ecg_go/internal/detector"
	"ecg_go/internal/protocol"
)

// DefaultPath é o arquivo lido quando ECG_CONFIG não está definido
const DefaultPath = "config.json"

// Tipos de fonte de bytes suportados
const (
	SourceSerial = "serial"
	SourceTCP    = "tcp"
	SourceMQTT   = "mqtt"
)

// Config representa a configuração completa da aplicação
type Config struct {
	Server    ServerConfig    `json:"server"`
	Source    SourceConfig    `json:"source"`
	Protocol  protocol.Format `json:"protocol"`
	Detector  detector.Config `json:"detector"`
	Monitor   MonitorConfig   `json:"monitor"`
	Recorder  RecorderConfig  `json:"recorder"`
	Redis     RedisConfig     `json:"redis"`
	NATS      NATSConfig      `json:"nats"`
	PLC       PLCConfig       `json:"plc"`
	Discovery DiscoveryConfig `json:"discovery"`
	Metrics   MetricsConfig   `json:"metrics"`
	Log       LogConfig       `json:"log"`
}

// ServerConfig contém configurações do servidor HTTP/WebSocket
type ServerConfig struct {
	Port            int      `json:"port"`
	ReadTimeout     Duration `json:"readTimeout"`
	WriteTimeout    Duration `json:"writeTimeout"`
	ShutdownTimeout Duration `json:"shutdownTimeout"`
	AllowedOrigins  []string `json:"allowedOrigins"`
}

// SourceConfig seleciona e configura a fonte de bytes do dispositivo
type SourceConfig struct {
	Type string `json:"type"` // serial, tcp ou mqtt

	// SendCommands envia START/STOP ao dispositivo no início e fim da execução
	SendCommands bool `json:"sendCommands"`

	Serial SerialConfig `json:"serial"`
	TCP    TCPConfig    `json:"tcp"`
	MQTT   MQTTConfig   `json:"mqtt"`
}

// SerialConfig contém configurações da porta serial USB
type SerialConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baudRate"`
}

// TCPConfig contém configurações da ponte serial-TCP
type TCPConfig struct {
	Address     string   `json:"address"`
	DialTimeout Duration `json:"dialTimeout"`
}

// MQTTConfig contém configurações do gateway de rádio via MQTT
type MQTTConfig struct {
	Broker         string   `json:"broker"`
	ClientID       string   `json:"clientId"`
	Username       string   `json:"username"`
	Password       string   `json:"password"`
	DataTopic      string   `json:"dataTopic"`
	CommandTopic   string   `json:"commandTopic"`
	QoS            byte     `json:"qos"`
	ConnectTimeout Duration `json:"connectTimeout"`
}

// MonitorConfig contém os parâmetros do laço de ingestão
type MonitorConfig struct {
	PollInterval     Duration `json:"pollInterval"`
	IdleTimeout      Duration `json:"idleTimeout"`
	StopOnIdle       bool     `json:"stopOnIdle"`
	WindowedInterval Duration `json:"windowedInterval"`
	RateWindow       Duration `json:"rateWindow"`
	RecentSamples    int      `json:"recentSamples"`
	AutoStart        bool     `json:"autoStart"`
}

// RecorderConfig contém configurações dos arquivos CSV de saída
type RecorderConfig struct {
	Enabled      bool   `json:"enabled"`
	OutputDir    string `json:"outputDir"`
	SamplesFile  string `json:"samplesFile"`
	PeaksFile    string `json:"peaksFile"`
	MetadataFile string `json:"metadataFile"`
	QueueSize    int    `json:"queueSize"`
	SensorInfo   string `json:"sensorInfo"`
}

// RedisConfig contém configurações do Redis
type RedisConfig struct {
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Password   string   `json:"password"`
	DB         int      `json:"db"`
	Prefix     string   `json:"prefix"`
	Enabled    bool     `json:"enabled"`
	HistoryTTL Duration `json:"historyTtl"`
}

// NATSConfig contém configurações da publicação de eventos via NATS
type NATSConfig struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url"`
	PeakSubject   string `json:"peakSubject"`
	ParamsSubject string `json:"paramsSubject"`
}

// PLCConfig contém configurações para comunicação com o PLC S7-1500
type PLCConfig struct {
	Enabled      bool     `json:"enabled"`
	Host         string   `json:"host"`
	Rack         int      `json:"rack"`
	Slot         int      `json:"slot"`
	DBNumber     int      `json:"dbNumber"`
	UpdateRate   Duration `json:"updateRate"`
	ReadTimeout  Duration `json:"readTimeout"`
	WriteTimeout Duration `json:"writeTimeout"`
}

// DiscoveryConfig contém configurações do anúncio mDNS
type DiscoveryConfig struct {
	Enabled      bool   `json:"enabled"`
	InstanceName string `json:"instanceName"`
}

// MetricsConfig contém configurações do endpoint Prometheus
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LogConfig contém configurações do logger
type LogConfig struct {
	Level      string `json:"level"`
	Dir        string `json:"dir"`
	FileOutput bool   `json:"fileOutput"`
}

// Load carrega a configuração do arquivo (ECG_CONFIG ou config.json) ou usa valores padrão
func Load() (*Config, error) {
	path := os.Getenv("ECG_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile carrega a configuração de um arquivo específico.
// Arquivo inexistente não é erro: valem os padrões e as variáveis de ambiente.
func LoadFile(path string) (*Config, error) {
	config := getDefaultConfig()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("erro ao decodificar %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("erro ao abrir %s: %w", path, err)
	}

	// Sobrescrever com variáveis de ambiente, se existirem
	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate verifica os parâmetros essenciais
func (c *Config) Validate() error {
	if err := c.Protocol.Validate(); err != nil {
		return err
	}
	if err := c.Detector.Validate(); err != nil {
		return err
	}

	switch c.Source.Type {
	case SourceSerial, SourceTCP, SourceMQTT:
	default:
		return fmt.Errorf("tipo de fonte desconhecido: %q", c.Source.Type)
	}

	if c.Monitor.PollInterval.Duration <= 0 || c.Monitor.IdleTimeout.Duration <= 0 {
		return fmt.Errorf("intervalos do monitor devem ser positivos")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("porta do servidor inválida: %d", c.Server.Port)
	}
	return nil
}

// applyEnvironmentOverrides sobrescreve configurações com variáveis de ambiente
func applyEnvironmentOverrides(config *Config) error {
	overrideString("ECG_SOURCE_TYPE", &config.Source.Type)
	overrideString("ECG_SERIAL_PORT", &config.Source.Serial.Port)
	overrideString("ECG_TCP_ADDR", &config.Source.TCP.Address)
	overrideString("ECG_MQTT_BROKER", &config.Source.MQTT.Broker)
	overrideString("REDIS_HOST", &config.Redis.Host)
	overrideString("NATS_URL", &config.NATS.URL)
	overrideString("ECG_OUTPUT_DIR", &config.Recorder.OutputDir)
	overrideString("LOG_LEVEL", &config.Log.Level)

	config.Source.Type = strings.ToLower(config.Source.Type)

	if err := overrideInt("ECG_SAMPLE_WIDTH", &config.Protocol.SampleWidth); err != nil {
		return err
	}
	if err := overrideInt("REDIS_PORT", &config.Redis.Port); err != nil {
		return err
	}
	if err := overrideInt("SERVER_PORT", &config.Server.Port); err != nil {
		return err
	}

	// Os dois lados da mesma taxa de amostragem precisam concordar
	if os.Getenv("ECG_SAMPLE_RATE") != "" {
		if err := overrideInt("ECG_SAMPLE_RATE", &config.Detector.SampleRate); err != nil {
			return err
		}
		config.Protocol.SampleIntervalMs = 1000.0 / float64(config.Detector.SampleRate)
	}

	return nil
}

func overrideString(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}

func overrideInt(key string, target *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("valor inválido em %s: %w", key, err)
	}
	*target = n
	return nil
}

// Duration aceita tanto "2s" quanto nanossegundos numéricos no JSON
type Duration struct {
	time.Duration
}

// dur encapsula uma time.Duration (atalho para os padrões)
func dur(d time.Duration) Duration {
	return Duration{Duration: d}
}

// MarshalJSON serializa como texto ("1.5s")
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implementa json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("duração inválida %q: %w", value, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("duração inválida: %s", string(b))
	}
	return nil
}
