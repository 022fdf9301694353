// =============================================================================
// HIDO 主入口
// =============================================================================
// 决策服务入口点，包含 HTTP 服务、审计链工具、策略校验与数据库迁移
//
// 使用方法:
//
//	hido serve                        # 启动服务
//	hido serve --config config.yaml   # 指定配置文件
//	hido migrate up                   # 运行审计库迁移
//	hido rules validate policy.yaml   # 校验策略文件
//	hido audit verify                 # 校验审计哈希链
//	hido version                      # 显示版本信息
//	hido health                       # 健康检查
// =============================================================================

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/hido/audit"
	"github.com/BaSui01/hido/config"
	"github.com/BaSui01/hido/internal/migration"
	"github.com/BaSui01/hido/internal/tlsutil"
	"github.com/BaSui01/hido/policy"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "rules":
		err = runRules(os.Args[2:], os.Stdout)
	case "audit":
		err = runAudit(os.Args[2:], os.Stdout)
	case "version":
		printVersion(os.Stdout)
	case "health":
		err = runHealthCheck(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting HIDO",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := NewServer(cfg, logger)
	if err := srv.Start(ctx); err != nil {
		srv.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	err = srv.Wait(ctx)
	logger.Info("HIDO stopped")
	return err
}

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

func runMigrate(args []string) error {
	if len(args) < 1 {
		printMigrateUsage(os.Stdout)
		return errors.New("missing migrate subcommand")
	}
	sub := args[0]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage(os.Stdout)
		return nil
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	var (
		m   *migration.DefaultMigrator
		err error
	)
	if *dbType != "" && *dbURL != "" {
		m, err = migration.NewMigratorFromURL(*dbType, *dbURL, nil)
	} else {
		var cfg *config.Config
		cfg, err = loadConfig(*configPath)
		if err != nil {
			return err
		}
		if *dbType != "" {
			cfg.Database.Driver = *dbType
		}
		m, err = migration.NewMigratorFromDatabaseConfig(cfg.Database, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	return migration.NewCLI(m).Run(context.Background(), sub, fs.Args())
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Audit Database Migration Commands

Usage:
  hido migrate <subcommand> [options] [args]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  steps <n> Apply (n>0) or rollback (n<0) n migrations
  goto <v>  Migrate to a specific version
  force <v> Force set migration version (use with caution)
  reset     Rollback all migrations
  version   Show current migration version
  status    Show migration status
  info      Show migration summary

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)`)
}

// =============================================================================
// 🛡️ rules 命令
// =============================================================================

func runRules(args []string, out io.Writer) error {
	if len(args) < 2 || args[0] != "validate" {
		return errors.New("usage: hido rules validate <file>")
	}
	doc, err := policy.LoadFile(args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "OK: %s (version %q, %d rules, include_defaults=%t)\n",
		args[1], doc.Version, len(doc.ToRules()), doc.IncludeDefaults)
	return nil
}

// =============================================================================
// 🔗 audit 命令
// =============================================================================

func runAudit(args []string, out io.Writer) error {
	if len(args) < 1 || args[0] != "verify" {
		return errors.New("usage: hido audit verify [--config <path>]")
	}
	fs := flag.NewFlagSet("audit verify", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	pageSize := fs.Int("page-size", 500, "Entries read per page")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	stores, err := openAuditStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close(context.WithoutCancel(ctx))

	report, err := audit.VerifyStore(ctx, stores.store, *pageSize)
	printVerifyReport(out, report)
	return err
}

func printVerifyReport(out io.Writer, report audit.VerifyReport) {
	if report.Valid {
		fmt.Fprintf(out, "OK: %d entries, head %s\n", report.Entries, report.LastHash)
		return
	}
	fmt.Fprintf(out, "BROKEN at sequence %d after %d entries: %s\n",
		report.BrokenAt, report.Entries, report.Reason)
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	path := fs.String("path", "/health", "Endpoint to probe (/health or /ready)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := tlsutil.SecureHTTPClient(5 * time.Second)
	resp, err := client.Get(*addr + *path)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Fprintln(out, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "HIDO %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `HIDO - Hybrid intent decision orchestrator

Usage:
  hido <command> [options]

Commands:
  serve            Start the decision service
  migrate          Audit database migration commands
  rules validate   Validate a guardrail policy file
  audit verify     Verify the audit hash chain
  version          Show version information
  health           Check server health
  help             Show this help message

Options for 'serve' and 'audit verify':
  --config <path>   Path to configuration file (YAML)

Examples:
  hido serve --config /etc/hido/config.yaml
  hido migrate up --config /etc/hido/config.yaml
  hido rules validate ./policy.yaml
  hido audit verify --config /etc/hido/config.yaml
  hido health --addr http://localhost:8080 --path /ready`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
