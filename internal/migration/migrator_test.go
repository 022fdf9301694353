package migration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	appconfig "github.com/BaSui01/hido/config"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"PostgreSQL", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	tests := []struct {
		name     string
		dbType   DatabaseType
		sslMode  string
		database string
		expected string
	}{
		{"postgres", DatabaseTypePostgres, "disable", "hido", "postgres://u:p@db:5432/hido?sslmode=disable"},
		{"postgres default ssl", DatabaseTypePostgres, "", "hido", "postgres://u:p@db:5432/hido?sslmode=require"},
		{"mysql", DatabaseTypeMySQL, "", "hido", "u:p@tcp(db:5432)/hido?parseTime=true&multiStatements=true"},
		{"sqlite", DatabaseTypeSQLite, "", "/var/lib/hido/audit.db", "file:/var/lib/hido/audit.db?_pragma=foreign_keys(1)"},
		{"unknown", DatabaseType("oracle"), "", "x", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildDatabaseURL(tt.dbType, "db", 5432, tt.database, "u", "p", tt.sslMode)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAvailableMigrations(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		t.Run(string(dbType), func(t *testing.T) {
			assert.Equal(t, "migrations/"+string(dbType), dbType.MigrationsPath())

			files, err := AvailableMigrations(dbType)
			require.NoError(t, err)
			require.NotEmpty(t, files)
			assert.Equal(t, MigrationFile{Version: 1, Name: "create_audit_entries"}, files[0])
			for i := 1; i < len(files); i++ {
				assert.Greater(t, files[i].Version, files[i-1].Version)
			}
		})
	}

	_, err := AvailableMigrations(DatabaseType("oracle"))
	assert.Error(t, err)
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")

	_, err = NewMigratorFromURL("oracle", "x", nil)
	assert.Error(t, err)

	_, err = NewMigratorFromDatabaseConfig(appconfig.DatabaseConfig{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

func newSQLiteMigrator(t *testing.T) *DefaultMigrator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	m, err := NewMigratorFromDatabaseConfig(appconfig.DatabaseConfig{Driver: "sqlite", Name: path}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMigrator_SQLite_Integration(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	// 重复执行是幂等的
	require.NoError(t, m.Up(ctx))

	version, dirty, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	_, err = m.db.Exec(`INSERT INTO audit_entries
		(id, sequence, decision_id, intent_id, selected_agent, decision_type, confidence,
		 requires_human_approval, reasoning, payload, prev_hash, hash, created_at)
		VALUES ('e1', 1, 'd1', 'i1', 'agent-1', 'approve', 0.9, 0, 'ok', '{}', 'p', 'h', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	// sequence 唯一约束
	_, err = m.db.Exec(`INSERT INTO audit_entries
		(id, sequence, decision_id, prev_hash, hash, created_at)
		VALUES ('e2', 1, 'd2', 'p', 'h', CURRENT_TIMESTAMP)`)
	assert.Error(t, err)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	assert.True(t, statuses[0].Applied)

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), info.CurrentVersion)
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Equal(t, 0, info.PendingMigrations)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	var tables int
	require.NoError(t, m.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'audit_entries'`).Scan(&tables))
	assert.Equal(t, 0, tables)
}

func TestCLI_Output(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	var buf bytes.Buffer
	cli := NewCLI(m)
	cli.SetOutput(&buf)

	require.NoError(t, cli.Run(ctx, "version", nil))
	assert.Contains(t, buf.String(), "No migrations applied yet")

	buf.Reset()
	require.NoError(t, cli.Run(ctx, "up", nil))
	assert.Contains(t, buf.String(), "Current version: 1")

	buf.Reset()
	require.NoError(t, cli.Run(ctx, "status", nil))
	assert.Contains(t, buf.String(), "create_audit_entries")
	assert.Contains(t, buf.String(), "Applied")
	assert.Contains(t, buf.String(), "Total: 1, Applied: 1, Pending: 0")

	buf.Reset()
	require.NoError(t, cli.Run(ctx, "info", nil))
	assert.Contains(t, buf.String(), "Current Version:    1")

	buf.Reset()
	require.NoError(t, cli.Run(ctx, "steps", []string{"-1"}))
	assert.Contains(t, buf.String(), "Rolling back 1 migration(s)")

	require.NoError(t, cli.Run(ctx, "goto", []string{"1"}))
	require.NoError(t, cli.Run(ctx, "reset", nil))
}

func TestCLI_RunArgumentErrors(t *testing.T) {
	cli := NewCLI(newSQLiteMigrator(t))
	ctx := context.Background()

	tests := []struct {
		sub  string
		args []string
		want string
	}{
		{"goto", nil, "missing argument"},
		{"goto", []string{"x"}, "invalid number"},
		{"goto", []string{"-2"}, "must not be negative"},
		{"force", nil, "missing argument"},
		{"steps", []string{"1.5"}, "invalid number"},
		{"explode", nil, "unknown migrate subcommand"},
	}
	for _, tt := range tests {
		t.Run(tt.sub+"_"+tt.want, func(t *testing.T) {
			err := cli.Run(ctx, tt.sub, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
