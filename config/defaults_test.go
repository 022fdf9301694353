package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.AllowQueryAPIKey)
	assert.False(t, cfg.JWT.Enabled())
	assert.Equal(t, 100, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
}

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	assert.InDelta(t, 0.3, cfg.GNNWeight, 1e-9)
	assert.InDelta(t, 0.7, cfg.VotingWeight, 1e-9)
	assert.InDelta(t, 0.5, cfg.MinConfidence, 1e-9)
	assert.InDelta(t, 2.0/3.0, cfg.Voting.QuorumThreshold, 1e-9)
	assert.Equal(t, 60, cfg.Voting.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Voting.MaxRounds)
	assert.False(t, cfg.Voting.Weighted)
	assert.False(t, cfg.StrictRecommender)
}

func TestDefaultRecommenderConfig(t *testing.T) {
	cfg := DefaultRecommenderConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 64, cfg.Dimension)
	assert.Equal(t, 3, cfg.MaxAlternatives)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
}

func TestDefaultAuditConfig(t *testing.T) {
	cfg := DefaultAuditConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"memory"}, cfg.Backends)
	assert.Equal(t, "audit_entries", cfg.Mongo.Collection)
	assert.False(t, cfg.VerifyOnStart)
}

func TestDefaultLogAndTelemetry(t *testing.T) {
	log := DefaultLogConfig()
	assert.Equal(t, "info", log.Level)
	assert.Equal(t, "json", log.Format)
	assert.Equal(t, []string{"stdout"}, log.OutputPaths)

	tel := DefaultTelemetryConfig()
	assert.False(t, tel.Enabled)
	assert.Equal(t, "hido", tel.ServiceName)
	assert.InDelta(t, 0.1, tel.SampleRate, 1e-9)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config DatabaseConfig
		want   string
	}{
		{
			name:   "postgres",
			config: DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "hido", SSLMode: "disable"},
			want:   "host=db port=5432 user=u password=p dbname=hido sslmode=disable",
		},
		{
			name:   "mysql",
			config: DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "hido"},
			want:   "u:p@tcp(db:3306)/hido?parseTime=true&loc=UTC",
		},
		{
			name:   "sqlite",
			config: DatabaseConfig{Driver: "sqlite", Name: "/var/lib/hido/audit.db"},
			want:   "/var/lib/hido/audit.db",
		},
		{
			name:   "unknown",
			config: DatabaseConfig{Driver: "oracle"},
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}

func TestEngineConfig_ToEngineConfig(t *testing.T) {
	cfg := EngineConfig{
		GNNWeight:         0.4,
		VotingWeight:      0.6,
		MinConfidence:     0.55,
		StrictRecommender: true,
		Voting:            VotingConfig{QuorumThreshold: 0.5, Weighted: true, TimeoutSeconds: 10, MaxRounds: 2},
	}
	out := cfg.ToEngineConfig()
	assert.Equal(t, 0.4, out.GNNWeight)
	assert.Equal(t, 0.6, out.VotingWeight)
	assert.Equal(t, 0.55, out.MinConfidence)
	assert.True(t, out.StrictRecommender)
	assert.Equal(t, 0.5, out.Voting.QuorumThreshold)
	assert.True(t, out.Voting.Weighted)
	assert.Equal(t, 10, out.Voting.TimeoutSeconds)
	assert.Equal(t, 2, out.Voting.MaxRounds)
}

func TestRecommenderConfig_ToSimilarityConfig(t *testing.T) {
	cfg := RecommenderConfig{Dimension: 16, Temperature: 0.5, DecayFactor: 0.2, EventBoost: 0.3, MaxAlternatives: 5}
	out := cfg.ToSimilarityConfig()
	assert.Equal(t, 16, out.Dimension)
	assert.Equal(t, 0.5, out.Temperature)
	assert.Equal(t, 0.2, out.DecayFactor)
	assert.Equal(t, 0.3, out.EventBoost)
	assert.Equal(t, 5, out.MaxAlternatives)
	assert.NoError(t, out.Validate())
}
