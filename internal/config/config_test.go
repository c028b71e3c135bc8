package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	content := `
server:
  port: "9090"
database:
  driver: "sqlite"
  sqlite:
    path: "./test.db"
shopify:
  api_key: "key"
  api_secret: "secret"
conversation:
  max_title_length: 30
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./test.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "key", cfg.Shopify.APIKey)
	assert.Equal(t, 30, cfg.Conversation.MaxTitleLength)

	// 未配置的键使用默认值
	assert.Equal(t, 3, cfg.Conversation.MaxAppendAttempts)
	assert.Equal(t, "2025-07", cfg.Shopify.APIVersion)
	assert.Equal(t, "conversations", cfg.Elasticsearch.IndexName)
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shopify:\n  api_secret: \"from-file\"\n"), 0644))
	t.Setenv("SECTION_STUDIO_SHOPIFY_API_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Shopify.APISecret)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
