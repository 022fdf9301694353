package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/hido/audit"
	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/internal/cache"
	"github.com/BaSui01/hido/recommender"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 HIDO 决策服务的完整配置
type Config struct {
	Server      ServerConfig      `yaml:"server" env:"SERVER"`
	Engine      EngineConfig      `yaml:"engine" env:"ENGINE"`
	Policy      PolicyConfig      `yaml:"policy" env:"POLICY"`
	Recommender RecommenderConfig `yaml:"recommender" env:"RECOMMENDER"`
	Redis       cache.Config      `yaml:"redis" env:"REDIS"`
	Database    DatabaseConfig    `yaml:"database" env:"DATABASE"`
	Audit       AuditConfig       `yaml:"audit" env:"AUDIT"`
	Log         LogConfig         `yaml:"log" env:"LOG"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 证书与私钥同时配置时 HTTP 端口以 TLS 监听
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`

	// API Key 列表，为空时不启用 Key 认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 ?api_key= 传递
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`

	JWT JWTConfig `yaml:"jwt" env:"JWT"`

	RateLimitRPS       int      `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// JWTConfig JWT 认证配置。Secret 用于 HS256，PublicKey 为 RS256 的 PEM 公钥。
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了任意一种签名密钥
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// EngineConfig 决策引擎配置
type EngineConfig struct {
	GNNWeight         float64      `yaml:"gnn_weight" env:"GNN_WEIGHT"`
	VotingWeight      float64      `yaml:"voting_weight" env:"VOTING_WEIGHT"`
	MinConfidence     float64      `yaml:"min_confidence" env:"MIN_CONFIDENCE"`
	StrictRecommender bool         `yaml:"strict_recommender" env:"STRICT_RECOMMENDER"`
	Voting            VotingConfig `yaml:"voting" env:"VOTING"`
}

// VotingConfig 投票配置
type VotingConfig struct {
	QuorumThreshold float64 `yaml:"quorum_threshold" env:"QUORUM_THRESHOLD"`
	Weighted        bool    `yaml:"weighted" env:"WEIGHTED"`
	TimeoutSeconds  int     `yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	MaxRounds       int     `yaml:"max_rounds" env:"MAX_ROUNDS"`
}

// ToEngineConfig 转换为 consensus.EngineConfig
func (e EngineConfig) ToEngineConfig() consensus.EngineConfig {
	return consensus.EngineConfig{
		GNNWeight:         e.GNNWeight,
		VotingWeight:      e.VotingWeight,
		MinConfidence:     e.MinConfidence,
		StrictRecommender: e.StrictRecommender,
		Voting: consensus.VotingConfig{
			QuorumThreshold: e.Voting.QuorumThreshold,
			Weighted:        e.Voting.Weighted,
			TimeoutSeconds:  e.Voting.TimeoutSeconds,
			MaxRounds:       e.Voting.MaxRounds,
		},
	}
}

// PolicyConfig 护栏策略文件配置
type PolicyConfig struct {
	// 策略文件路径，为空时使用内置基线规则
	Path string `yaml:"path" env:"PATH"`
	// 轮询间隔，0 表示不监听
	WatchInterval time.Duration `yaml:"watch_interval" env:"WATCH_INTERVAL"`
	// 防抖延迟
	DebounceDelay time.Duration `yaml:"debounce_delay" env:"DEBOUNCE_DELAY"`
}

// RecommenderConfig 推荐器配置
type RecommenderConfig struct {
	Enabled         bool          `yaml:"enabled" env:"ENABLED"`
	Dimension       int           `yaml:"dimension" env:"DIMENSION"`
	Temperature     float64       `yaml:"temperature" env:"TEMPERATURE"`
	DecayFactor     float64       `yaml:"decay_factor" env:"DECAY_FACTOR"`
	EventBoost      float64       `yaml:"event_boost" env:"EVENT_BOOST"`
	MaxAlternatives int           `yaml:"max_alternatives" env:"MAX_ALTERNATIVES"`
	CacheEnabled    bool          `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	CacheTTL        time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`

	// 启动时加载的节点嵌入文件，请求也可通过 embeddings 字段附带
	EmbeddingsFile string `yaml:"embeddings_file" env:"EMBEDDINGS_FILE"`
}

// ToSimilarityConfig 转换为 recommender.SimilarityConfig
func (r RecommenderConfig) ToSimilarityConfig() recommender.SimilarityConfig {
	return recommender.SimilarityConfig{
		Dimension:       r.Dimension,
		Temperature:     r.Temperature,
		DecayFactor:     r.DecayFactor,
		EventBoost:      r.EventBoost,
		MaxAlternatives: r.MaxAlternatives,
	}
}

// DatabaseConfig 审计数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// DSN 返回 GORM 连接字符串
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// AuditConfig 审计账本配置
type AuditConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 后端列表，第一个为主后端: memory, database, mongo
	Backends []string          `yaml:"backends" env:"BACKENDS"`
	Mongo    audit.MongoConfig `yaml:"mongo" env:"MONGO"`
	// 启动时校验整条链
	VerifyOnStart bool `yaml:"verify_on_start" env:"VERIFY_ON_START"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}
