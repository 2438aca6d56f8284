package main

import (
	"net/http"

	querybuddy "github.com/querybuddy/querybuddy"
	"github.com/querybuddy/querybuddy/infrastructure/provider"
	"github.com/querybuddy/querybuddy/internal/config"
)

// clientOptions builds extra client options from CLI flags. When
// httpCacheDir is set, embedding calls go through a SQLite-backed HTTP
// response cache under that directory; generation calls always hit the
// live endpoint so replies reflect the current conversation. The returned
// cleanup releases the cache database and is safe to call when no cache
// was configured.
func clientOptions(cfg config.AppConfig, httpCacheDir string) ([]querybuddy.Option, func() error, error) {
	noop := func() error { return nil }

	e := cfg.EmbeddingEndpoint()
	if httpCacheDir == "" || e == nil || !e.IsConfigured() {
		return nil, noop, nil
	}

	transport, err := provider.NewCachingTransport(httpCacheDir, nil)
	if err != nil {
		return nil, noop, err
	}

	embedder := provider.NewOpenAIProviderFromConfig(provider.OpenAIConfig{
		APIKey:         e.APIKey(),
		BaseURL:        e.BaseURL(),
		ChatModel:      e.Model(),
		EmbeddingModel: e.Model(),
		MaxRetries:     e.MaxRetries(),
		InitialDelay:   e.InitialDelay(),
		BackoffFactor:  e.BackoffFactor(),
		HTTPClient: &http.Client{
			Transport: transport,
			Timeout:   e.Timeout(),
		},
	})
	return []querybuddy.Option{querybuddy.WithEmbeddingProvider(embedder)}, transport.Close, nil
}
