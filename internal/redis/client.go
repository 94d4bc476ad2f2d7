package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"ecg_go/internal/config"
	"ecg_go/pkg/logger"
)

// ErrDisabled indica Redis desabilitado ou sem conexão
var ErrDisabled = errors.New("Redis não conectado ou desabilitado")

// Client encapsula a conexão com o Redis e a formação de chaves
type Client struct {
	rdb    *redis.Client
	prefix string
	config config.RedisConfig

	mu        sync.RWMutex
	connected bool
}

// NewClient cria um novo cliente Redis sem conectar
func NewClient(cfg config.RedisConfig) *Client {
	c := &Client{
		config: cfg,
		prefix: cfg.Prefix,
	}
	if !cfg.Enabled {
		logger.Info("Cliente Redis desabilitado por configuração")
		return c
	}

	c.rdb = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return c
}

// Connect testa a conexão com ping
func (c *Client) Connect(ctx context.Context) error {
	if c.rdb == nil {
		return ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		c.setConnected(false)
		return fmt.Errorf("erro ao conectar ao Redis: %w", err)
	}

	c.setConnected(true)
	logger.Infof("Conexão com o Redis estabelecida em %s:%d. Resposta: %s",
		c.config.Host, c.config.Port, result)
	return nil
}

// IsConnected verifica se o cliente está conectado
func (c *Client) IsConnected() bool {
	if c.rdb == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Key formata uma chave com o prefixo configurado
func (c *Client) Key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return c.prefix + ":" + strings.Join(parts, ":")
}

// Close fecha a conexão com o Redis
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	c.setConnected(false)
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("erro ao fechar conexão Redis: %w", err)
	}
	logger.Info("Conexão com Redis fechada")
	return nil
}
