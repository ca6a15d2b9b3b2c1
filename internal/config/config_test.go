package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_HOST", "localhost")
	t.Setenv("DATABASE_DBNAME", "exams")
	t.Setenv("DATABASE_USER", "exam")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoad_EnvOnlyWithDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Ranking.EndGrace)
	assert.Equal(t, 30*time.Second, cfg.Ranking.LockWait)
	assert.Equal(t, "noop", cfg.Email.Provider)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_ADDR", "redis:6379")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "9090"
database:
  host: file-host
  sslmode: require
ranking:
  end_grace: 5m
  auto_submit_concurrency: 3
cors:
  allowed_origins: ["https://exams.example.com"]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host, "env wins over file")
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 5*time.Minute, cfg.Ranking.EndGrace)
	assert.Equal(t, 3, cfg.Ranking.AutoSubmitConcurrency)
	assert.Equal(t, []string{"https://exams.example.com"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_HOST", "localhost")
	t.Setenv("DATABASE_DBNAME", "exams")
	t.Setenv("DATABASE_USER", "exam")
	t.Setenv("JWT_SECRET", "")

	_, err := Load("")

	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoad_ReleaseNeedsDatabasePassword(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GIN_MODE", "release")
	t.Setenv("DATABASE_PASSWORD", "")

	_, err := Load("")

	assert.ErrorContains(t, err, "DATABASE_PASSWORD")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, splitList([]string{"a:1, b:2"}))
	assert.Equal(t, []string{"a", "b"}, splitList([]string{"a", " ", "b"}))
	assert.Nil(t, splitList(nil))
}

func TestDatabaseConfig_ConnectionStrings(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "exams", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=exams sslmode=disable", d.PostgresConnectionString())
	assert.Equal(t, "postgres://u:p@db:5432/exams?sslmode=disable", d.PostgresURL())
}
