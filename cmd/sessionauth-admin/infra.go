package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/sessionauth/config"
	"github.com/target/sessionauth/internal/bootstrap"
	"github.com/target/sessionauth/internal/ports"
)

// infra holds the connections a command opened; Close releases them.
type infra struct {
	DB     *sql.DB
	Redis  redis.UniversalClient
	logger *slog.Logger
}

func (i *infra) Close() {
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			i.logger.Warn("redis close failed", "error", err)
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			i.logger.Warn("db close failed", "error", err)
		}
	}
}

// connectInfra opens Postgres, plus Redis when the session store lives there.
func connectInfra(logger *slog.Logger, cfg *config.AppConfig) (*infra, error) {
	dbCfg := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}
	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	in := &infra{DB: db, logger: logger}

	if cfg.Session.Store == config.SessionStoreRedis {
		client, rerr := bootstrap.ConnectRedis(dbCfg)
		if rerr != nil {
			in.Close()
			return nil, fmt.Errorf("connect redis: %w", rerr)
		}
		in.Redis = client
	}
	return in, nil
}

// sessionPurger returns the configured session store as a SessionPurger.
//
//nolint:ireturn // the store is chosen at runtime.
func (i *infra) sessionPurger(kind config.SessionStoreKind) (ports.SessionPurger, error) {
	store, err := bootstrap.BuildSessionStore(kind, i.DB, i.Redis)
	if err != nil {
		return nil, err
	}
	purger, ok := store.(ports.SessionPurger)
	if !ok {
		return nil, fmt.Errorf("session store %q cannot delete sessions in bulk", kind)
	}
	return purger, nil
}
