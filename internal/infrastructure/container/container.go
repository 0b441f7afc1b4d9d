package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"marksync/internal/application/port"
	"marksync/internal/infrastructure/config"
	"marksync/internal/infrastructure/ratelimit"
	pgrepo "marksync/internal/infrastructure/storage/postgres"
	sqliterepo "marksync/internal/infrastructure/storage/sqlite"
)

// Container 包含所有应用依赖
type Container struct {
	cfg         *config.Config
	redisClient *redis.Client
	positions   port.PositionRepository
	windowStore port.WindowStore
	closeOnce   sync.Once
	closerChain []func() error
}

// New 创建新的容器实例
func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}

	if err := c.initStorage(); err != nil {
		// 清理已初始化的资源
		_ = c.Close()
		return nil, err
	}
	if err := c.initWindowStore(); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// initStorage 初始化持仓存储（SQLite 或 Postgres）
func (c *Container) initStorage() error {
	switch c.cfg.Storage.Backend {
	case "postgres":
		repo, err := pgrepo.New(c.cfg.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		c.positions = repo
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		log.Info().Msg("postgres position store initialized")

	default:
		repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		c.positions = repo
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		log.Info().
			Str("path", c.cfg.Storage.SQLite.Path).
			Msg("sqlite position store initialized")
	}
	return nil
}

// initWindowStore 初始化限流计数存储（内存或 Redis）
func (c *Container) initWindowStore() error {
	if c.cfg.RateLimit.Backend != "redis" {
		c.windowStore = ratelimit.NewMemoryStore()
		log.Info().Msg("in-memory rate window store initialized")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Storage.Redis.Addr,
		Password: c.cfg.Storage.Redis.Password,
		DB:       c.cfg.Storage.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisClient = rdb
	c.windowStore = ratelimit.NewRedisStore(rdb, c.cfg.Storage.Redis.Prefix)

	// 注册关闭回调
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", c.cfg.Storage.Redis.Addr).
		Int("db", c.cfg.Storage.Redis.DB).
		Msg("redis rate window store initialized")

	return nil
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// Positions 获取持仓仓储
func (c *Container) Positions() port.PositionRepository {
	return c.positions
}

// WindowStore 获取限流计数存储
func (c *Container) WindowStore() port.WindowStore {
	return c.windowStore
}

// RedisClient 获取 Redis 客户端（仅 redis 后端时非空）
func (c *Container) RedisClient() *redis.Client {
	return c.redisClient
}

// Close 关闭所有资源（按后进先出顺序）
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
