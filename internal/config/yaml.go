package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration file layout. Every field
// is a pointer so absent keys leave the environment-derived value alone.
type FileConfig struct {
	Host      *string `yaml:"host"`
	Port      *int    `yaml:"port"`
	DBURL     *string `yaml:"db_url"`
	LogLevel  *string `yaml:"log_level"`
	LogFormat *string `yaml:"log_format"`

	Embedding  *EndpointFile `yaml:"embedding"`
	Generation *EndpointFile `yaml:"generation"`
	Pipeline   *PipelineFile `yaml:"pipeline"`
}

// EndpointFile is the YAML layout for an AI endpoint.
type EndpointFile struct {
	Provider *string `yaml:"provider"`
	BaseURL  *string `yaml:"base_url"`
	Model    *string `yaml:"model"`
	APIKey   *string `yaml:"api_key"`
}

// PipelineFile is the YAML layout for pipeline bounds.
type PipelineFile struct {
	RetrievalK          *int     `yaml:"retrieval_k"`
	RowCap              *int     `yaml:"row_cap"`
	QueryTimeoutSeconds *float64 `yaml:"query_timeout_seconds"`
	HistoryWindow       *int     `yaml:"history_window"`
	SampleRows          *int     `yaml:"sample_rows"`
	MaxCorrections      *int     `yaml:"max_corrections"`
	Temperature         *float64 `yaml:"temperature"`
	InsightTemperature  *float64 `yaml:"insight_temperature"`
}

// LoadYAML reads a FileConfig from the given path. A missing file is not
// an error; it returns an empty FileConfig.
func LoadYAML(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return FileConfig{}, nil
	}
	if err != nil {
		return FileConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}

// Overlay applies the file values on top of the given AppConfig. File
// values win over environment values, matching the precedence order
// flags > file > environment > defaults used by the CLI.
func (f FileConfig) Overlay(cfg AppConfig) AppConfig {
	var opts []AppConfigOption
	if f.Host != nil {
		opts = append(opts, WithHost(*f.Host))
	}
	if f.Port != nil {
		opts = append(opts, WithPort(*f.Port))
	}
	if f.DBURL != nil {
		opts = append(opts, WithDBURL(*f.DBURL))
	}
	if f.LogLevel != nil {
		opts = append(opts, WithLogLevel(*f.LogLevel))
	}
	if f.LogFormat != nil {
		opts = append(opts, WithLogFormat(parseLogFormat(*f.LogFormat)))
	}
	if f.Embedding != nil {
		opts = append(opts, WithEmbeddingEndpoint(f.Embedding.overlay(cfg.EmbeddingEndpoint(), DefaultEmbeddingModel)))
	}
	if f.Generation != nil {
		opts = append(opts, WithGenerationEndpoint(f.Generation.overlay(cfg.GenerationEndpoint(), DefaultChatModel)))
	}
	if f.Pipeline != nil {
		opts = append(opts, WithPipelineConfig(f.Pipeline.overlay(cfg.Pipeline())))
	}
	return cfg.Apply(opts...)
}

func (e EndpointFile) overlay(base *Endpoint, defaultModel string) Endpoint {
	ep := NewEndpointWithOptions(WithModel(defaultModel))
	if base != nil {
		ep = *base
	}
	if e.Provider != nil {
		ep = NewEndpointWithOptions(endpointOptions(ep, WithProvider(*e.Provider))...)
	}
	if e.BaseURL != nil {
		ep = NewEndpointWithOptions(endpointOptions(ep, WithBaseURL(*e.BaseURL))...)
	}
	if e.Model != nil {
		ep = NewEndpointWithOptions(endpointOptions(ep, WithModel(*e.Model))...)
	}
	if e.APIKey != nil {
		ep = NewEndpointWithOptions(endpointOptions(ep, WithAPIKey(*e.APIKey))...)
	}
	return ep
}

// endpointOptions rebuilds an Endpoint's options plus one override.
func endpointOptions(e Endpoint, extra EndpointOption) []EndpointOption {
	return []EndpointOption{
		WithProvider(e.provider),
		WithBaseURL(e.baseURL),
		WithModel(e.model),
		WithAPIKey(e.apiKey),
		WithTimeout(e.timeout),
		WithMaxRetries(e.maxRetries),
		WithInitialDelay(e.initialDelay),
		WithBackoffFactor(e.backoffFactor),
		extra,
	}
}

func (p PipelineFile) overlay(base PipelineConfig) PipelineConfig {
	if p.RetrievalK != nil {
		base = base.WithRetrievalK(*p.RetrievalK)
	}
	if p.RowCap != nil {
		base = base.WithRowCap(*p.RowCap)
	}
	if p.QueryTimeoutSeconds != nil {
		base = base.WithQueryTimeout(time.Duration(*p.QueryTimeoutSeconds * float64(time.Second)))
	}
	if p.HistoryWindow != nil {
		base = base.WithHistoryWindow(*p.HistoryWindow)
	}
	if p.SampleRows != nil {
		base = base.WithSampleRows(*p.SampleRows)
	}
	if p.MaxCorrections != nil {
		base = base.WithMaxCorrections(*p.MaxCorrections)
	}
	if p.Temperature != nil {
		base = base.WithTemperature(*p.Temperature)
	}
	if p.InsightTemperature != nil {
		base = base.WithInsightTemperature(*p.InsightTemperature)
	}
	return base
}
