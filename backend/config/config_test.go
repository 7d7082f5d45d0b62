package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Running.Port)
	assert.Equal(t, "doc-ops", cfg.Kafka.Topic)
	assert.Equal(t, 1024, cfg.Collab.HistoryCap)
	assert.Equal(t, 600*time.Second, cfg.Collab.PresenceTTL)
	assert.Equal(t, "join", cfg.Collab.DefaultStrategy)
	assert.Equal(t, 5, cfg.Collab.SnapshotKeep)
	assert.Empty(t, cfg.Mysql.DSN)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
running:
  port: 9000
kafka:
  brokers: ["k1:9092", "k2:9092"]
collab:
  presenceTTL: 30s
  fieldStrategies:
    title: take_remote
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "collabConfig.yaml"), yaml, 0o644))
	t.Setenv("COLLAB_AUTH_SECRET", "from-env")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Running.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Collab.PresenceTTL)
	assert.Equal(t, "take_remote", cfg.Collab.FieldStrategies["title"])
	assert.Equal(t, "from-env", cfg.Auth.Secret)
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "collabConfig.yaml"), []byte("running: ["), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}
