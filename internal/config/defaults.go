package config

import (
	"time"

	"ecg_go/internal/detector"
	"ecg_go/internal/protocol"
)

// getDefaultConfig retorna uma configuração padrão
func getDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     dur(30 * time.Second),
			WriteTimeout:    dur(30 * time.Second),
			ShutdownTimeout: dur(10 * time.Second),
			AllowedOrigins:  []string{"*"},
		},
		Source: SourceConfig{
			Type:         SourceSerial,
			SendCommands: true,
			Serial: SerialConfig{
				Port:     "/dev/ttyUSB0",
				BaudRate: 115200,
			},
			TCP: TCPConfig{
				Address:     "127.0.0.1:9750",
				DialTimeout: dur(5 * time.Second),
			},
			MQTT: MQTTConfig{
				Broker:         "tcp://localhost:1883",
				ClientID:       "ecg-monitor",
				DataTopic:      "ecg/device/raw",
				CommandTopic:   "ecg/device/cmd",
				QoS:            0,
				ConnectTimeout: dur(5 * time.Second),
			},
		},
		Protocol: protocol.Format12Bit(),
		Detector: detector.DefaultConfig(),
		Monitor: MonitorConfig{
			PollInterval:     dur(time.Millisecond),
			IdleTimeout:      dur(2 * time.Second),
			StopOnIdle:       true,
			WindowedInterval: dur(time.Second),
			RateWindow:       dur(5 * time.Second),
			RecentSamples:    2500,
			AutoStart:        false,
		},
		Recorder: RecorderConfig{
			Enabled:      true,
			OutputDir:    "recordings",
			SamplesFile:  "streamed_raw_packets.csv",
			PeaksFile:    "streamed_data_outputs.csv",
			MetadataFile: "recording_metadata.txt",
			QueueSize:    4096,
			SensorInfo:   "AD8232 via ESP32",
		},
		Redis: RedisConfig{
			Host:       "localhost",
			Port:       6379,
			Password:   "",
			DB:         0,
			Prefix:     "ecg",
			Enabled:    true,
			HistoryTTL: dur(24 * time.Hour),
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			PeakSubject:   "ecg.peaks",
			ParamsSubject: "ecg.params",
		},
		PLC: PLCConfig{
			Enabled:      false,
			Host:         "192.168.1.100",
			Rack:         0,
			Slot:         1,
			DBNumber:     100,
			UpdateRate:   dur(500 * time.Millisecond),
			ReadTimeout:  dur(5 * time.Second),
			WriteTimeout: dur(5 * time.Second),
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:      "info",
			Dir:        "logs",
			FileOutput: false,
		},
	}
}

// Default retorna a configuração padrão sem arquivo nem ambiente
func Default() *Config {
	c := getDefaultConfig()
	return &c
}
