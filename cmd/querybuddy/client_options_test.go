package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querybuddy/querybuddy/internal/config"
)

func TestClientOptionsWithoutCacheDir(t *testing.T) {
	opts, cleanup, err := clientOptions(config.NewAppConfig(), "")
	require.NoError(t, err)
	assert.Empty(t, opts)
	assert.NoError(t, cleanup())
}

func TestClientOptionsCacheDirWithoutEndpoint(t *testing.T) {
	opts, cleanup, err := clientOptions(config.NewAppConfig(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, opts)
	assert.NoError(t, cleanup())
}

func TestClientOptionsCachedEmbedder(t *testing.T) {
	cfg := config.NewAppConfigWithOptions(config.WithEmbeddingEndpoint(
		config.NewEndpointWithOptions(
			config.WithModel("text-embedding-3-small"),
			config.WithAPIKey("sk-test"),
		),
	))

	opts, cleanup, err := clientOptions(cfg, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, opts, 1)
	assert.NoError(t, cleanup())
}
