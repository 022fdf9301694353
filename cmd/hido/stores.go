package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/hido/audit"
	"github.com/BaSui01/hido/config"
	"github.com/BaSui01/hido/internal/database"
	"github.com/BaSui01/hido/internal/migration"
)

// auditStores 审计后端及其底层连接
type auditStores struct {
	store audit.Store
	pool  *database.PoolManager
}

// close 关闭存储，随后关闭数据库连接池
func (s *auditStores) close(ctx context.Context) error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close(ctx))
	}
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	return errors.Join(errs...)
}

// poolConfig 由数据库配置推导连接池配置
func poolConfig(cfg config.DatabaseConfig) database.PoolConfig {
	pc := database.DefaultPoolConfig()
	if cfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	return pc
}

// runAutoMigrate 对审计库执行全部未应用的迁移
func runAutoMigrate(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()
	return m.Up(ctx)
}

// openAuditStores 按配置顺序打开审计后端，第一个为主后端，其余为镜像
func openAuditStores(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...database.PoolOption) (*auditStores, error) {
	out := &auditStores{}
	stores := make([]audit.Store, 0, len(cfg.Audit.Backends))

	fail := func(err error) (*auditStores, error) {
		for _, s := range stores {
			_ = s.Close(ctx)
		}
		if out.pool != nil {
			_ = out.pool.Close()
		}
		return nil, err
	}

	for _, backend := range cfg.Audit.Backends {
		switch backend {
		case "memory":
			stores = append(stores, audit.NewMemoryStore())

		case "database":
			if cfg.Database.AutoMigrate {
				if err := runAutoMigrate(ctx, cfg.Database, logger); err != nil {
					return fail(fmt.Errorf("audit database migration failed: %w", err))
				}
				logger.Info("audit database migrated", zap.String("driver", cfg.Database.Driver))
			}
			opts = append(opts, database.WithName("audit"))
			pool, err := database.Open(cfg.Database.Driver, cfg.Database.DSN(), poolConfig(cfg.Database), logger, opts...)
			if err != nil {
				return fail(err)
			}
			out.pool = pool
			store, err := audit.NewGormStore(pool.DB(), logger)
			if err != nil {
				return fail(err)
			}
			stores = append(stores, store)

		case "mongo":
			store, err := audit.NewMongoStore(ctx, cfg.Audit.Mongo, logger)
			if err != nil {
				return fail(err)
			}
			stores = append(stores, store)

		default:
			return fail(fmt.Errorf("unknown audit backend %q", backend))
		}
	}

	switch len(stores) {
	case 0:
		return fail(errors.New("no audit backend configured"))
	case 1:
		out.store = stores[0]
	default:
		out.store = audit.NewMultiStore(stores[0], stores[1:]...)
	}

	logger.Info("audit stores opened", zap.Strings("backends", cfg.Audit.Backends))
	return out, nil
}
