// =============================================================================
// 📦 HIDO 默认配置
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/hido/audit"
	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/internal/cache"
	"github.com/BaSui01/hido/recommender"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Engine:      DefaultEngineConfig(),
		Policy:      DefaultPolicyConfig(),
		Recommender: DefaultRecommenderConfig(),
		Redis:       cache.DefaultConfig(),
		Database:    DefaultDatabaseConfig(),
		Audit:       DefaultAuditConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultEngineConfig 与 consensus.DefaultEngineConfig 保持一致
func DefaultEngineConfig() EngineConfig {
	d := consensus.DefaultEngineConfig()
	return EngineConfig{
		GNNWeight:     d.GNNWeight,
		VotingWeight:  d.VotingWeight,
		MinConfidence: d.MinConfidence,
		Voting: VotingConfig{
			QuorumThreshold: d.Voting.QuorumThreshold,
			Weighted:        d.Voting.Weighted,
			TimeoutSeconds:  d.Voting.TimeoutSeconds,
			MaxRounds:       d.Voting.MaxRounds,
		},
	}
}

// DefaultPolicyConfig 返回默认策略配置
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		WatchInterval: 5 * time.Second,
		DebounceDelay: 500 * time.Millisecond,
	}
}

// DefaultRecommenderConfig 推荐器默认关闭
func DefaultRecommenderConfig() RecommenderConfig {
	d := recommender.DefaultSimilarityConfig()
	return RecommenderConfig{
		Dimension:       d.Dimension,
		Temperature:     d.Temperature,
		DecayFactor:     d.DecayFactor,
		EventBoost:      d.EventBoost,
		MaxAlternatives: d.MaxAlternatives,
		CacheTTL:        time.Minute,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "hido",
		Name:            "hido",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultAuditConfig 默认只写内存账本
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:  true,
		Backends: []string{"memory"},
		Mongo: audit.MongoConfig{
			Database:   "hido",
			Collection: "audit_entries",
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "hido",
		SampleRate:   0.1,
	}
}
