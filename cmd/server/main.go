package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecg_go/internal/config"
	"ecg_go/internal/server"
	"ecg_go/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "arquivo de configuração (padrão: $ECG_CONFIG ou config.json)")
	flag.Parse()

	logger.Init()
	defer logger.Sync()

	displayBanner()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("Erro ao carregar configurações", err)
	}

	if err := setupLogging(cfg.Log); err != nil {
		logger.Fatal("Erro ao configurar logs", err)
	}

	logger.Info("Iniciando ECG Monitor")
	logger.Infof("Configuração carregada: fonte %s, Redis %s:%d (habilitado: %v), NATS habilitado: %v",
		cfg.Source.Type, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Enabled, cfg.NATS.Enabled)
	logger.Infof("Detector: %d Hz, calibração de %.1fs, percentil %.0f, refratário %.2fs",
		cfg.Detector.SampleRate, cfg.Detector.CalibrationSeconds,
		cfg.Detector.Percentile, cfg.Detector.RefractorySeconds)

	srv, err := server.NewServer(cfg)
	if err != nil {
		logger.Fatal("Erro ao criar servidor", err)
	}

	go func() {
		logger.Infof("Servidor iniciado na porta %d", cfg.Server.Port)
		if err := srv.Start(); err != nil {
			logger.Fatal("Erro ao iniciar o servidor", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Desligando servidor...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Erro durante o shutdown do servidor", err)
	}

	logger.Info("Servidor encerrado com sucesso")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func setupLogging(cfg config.LogConfig) error {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("%v; usando INFO", err)
	}
	logger.SetLevel(level)

	if cfg.FileOutput {
		if err := logger.EnableFileLogging(cfg.Dir, "ecg"); err != nil {
			return err
		}
	}
	return nil
}

// displayBanner exibe um banner de inicialização
func displayBanner() {
	banner := `
  _____ ____ ____    __  __             _ _
 | ____/ ___/ ___|  |  \/  | ___  _ __ (_) |_ ___  _ __
 |  _|| |  | |  _   | |\/| |/ _ \| '_ \| | __/ _ \| '__|
 | |__| |__| |_| |  | |  | | (_) | | | | | || (_) | |
 |_____\____\____|  |_|  |_|\___/|_| |_|_|\__\___/|_|   v1.0
 `
	fmt.Println(banner)
	fmt.Printf("Iniciando em %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
}
