package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/thisisjab/chquery/api"
	"github.com/thisisjab/chquery/cache"
	"github.com/thisisjab/chquery/plugin"
	"github.com/thisisjab/chquery/querier"
	"github.com/thisisjab/chquery/schema"
	"github.com/thisisjab/chquery/storage"
	"go.yaml.in/yaml/v3"
)

type Config struct {
	Logger    LoggerConfig               `yaml:"logger"`
	Storage   StorageConfig              `yaml:"storage"`
	Cache     *CacheConfig               `yaml:"cache"`
	API       api.Config                 `yaml:"api"`
	Operators []plugin.LuaOperatorConfig `yaml:"operators"`
	Models    []ModelConfig              `yaml:"models"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Type   string `yaml:"type"`
	Output string `yaml:"output"`
}

type StorageConfig struct {
	Type   string `yaml:"type"`
	Config any    `yaml:"config"`
}

type CacheConfig struct {
	Type   string `yaml:"type"`
	Config any    `yaml:"config"`
}

type ModelConfig struct {
	Name   string        `yaml:"name"`
	Table  string        `yaml:"table"`
	Engine string        `yaml:"engine"`
	Fields []FieldConfig `yaml:"fields"`
}

type FieldConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Runtime holds the components built from a Config.
type Runtime struct {
	Logger *slog.Logger
	// Storage is nil when no storage is configured. It is not connected yet.
	Storage *storage.ClickHouseStorage
	// Executor is Storage, wrapped by the cache when one is configured.
	Executor querier.Executor
	Models   *schema.Registry
	API      api.Config
}

// Parse builds the runtime components. Custom operators are added to the
// querier registry, so Parse must run during startup.
func (cfg Config) Parse() (*Runtime, *slog.Logger, error) {
	logger, err := parseLoggerConfig(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create logger: %w", err)
	}

	models, err := parseModelConfigs(cfg.Models)
	if err != nil {
		return nil, logger, fmt.Errorf("cannot create models: %w", err)
	}

	for _, oc := range cfg.Operators {
		op, err := plugin.NewLuaOperator(oc)
		if err != nil {
			return nil, logger, fmt.Errorf("cannot create operator `%s`: %w", oc.Name, err)
		}
		plugin.Register(op)
		logger.Debug("registered lua operator", "name", op.Name())
	}

	rt := &Runtime{Logger: logger, Models: models, API: cfg.API}

	if cfg.Storage.Type == "" {
		return rt, logger, nil
	}

	st, err := parseStorageConfig(logger, cfg.Storage)
	if err != nil {
		return nil, logger, fmt.Errorf("cannot create storage: %w", err)
	}
	rt.Storage = st
	rt.Executor = st

	if cfg.Cache != nil {
		rt.Executor, err = parseCacheConfig(logger, *cfg.Cache, st)
		if err != nil {
			return nil, logger, fmt.Errorf("cannot create cache: %w", err)
		}
	}

	return rt, logger, nil
}

func parseLoggerConfig(cfg LoggerConfig) (*slog.Logger, error) {
	var logger *slog.Logger
	var handler slog.Handler

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	// Compiled SQL goes to stdout, so logs default to stderr.
	w := os.Stderr
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		w = os.Stdout
	default:
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	switch cfg.Type {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "text", "":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case "colored-text":
		handler = tint.NewHandler(w, &tint.Options{Level: level, AddSource: true})
	default:
		return nil, fmt.Errorf("invalid log type: %s", cfg.Type)
	}

	logger = slog.New(handler)

	return logger, nil
}

func parseModelConfigs(cfgs []ModelConfig) (*schema.Registry, error) {
	models := make([]*schema.Model, len(cfgs))
	for i, mc := range cfgs {
		columns := make([]schema.Column, len(mc.Fields))
		for j, fc := range mc.Fields {
			field, err := schema.ParseType(fc.Type)
			if err != nil {
				return nil, fmt.Errorf("model `%s`, field `%s`: %w", mc.Name, fc.Name, err)
			}
			columns[j] = schema.Column{Name: fc.Name, Field: field}
		}

		m, err := schema.NewModel(mc.Name, mc.Table, schema.Engine(mc.Engine), columns...)
		if err != nil {
			return nil, err
		}
		models[i] = m
	}

	return schema.NewRegistry(models...)
}

func parseStorageConfig(logger *slog.Logger, cfg StorageConfig) (*storage.ClickHouseStorage, error) {
	switch cfg.Type {
	case "clickhouse":
		var clickHouseConfig storage.ClickHouseStorageConfig

		if err := remarshal(cfg.Config, &clickHouseConfig); err != nil {
			return nil, fmt.Errorf("cannot parse clickhouse storage config: %w", err)
		}

		s, err := storage.NewClickHouseStorage(logger, clickHouseConfig)
		if err != nil {
			return nil, fmt.Errorf("cannot create clickhouse storage: %w", err)
		}

		return s, nil

	default:
		return nil, fmt.Errorf("invalid storage type: %s", cfg.Type)
	}
}

func parseCacheConfig(logger *slog.Logger, cfg CacheConfig, next querier.Executor) (querier.Executor, error) {
	switch cfg.Type {
	case "redis":
		var redisConfig cache.Config

		if err := remarshal(cfg.Config, &redisConfig); err != nil {
			return nil, fmt.Errorf("cannot parse redis cache config: %w", err)
		}
		if redisConfig.Addr == "" {
			return nil, fmt.Errorf("redis cache requires an address")
		}

		return cache.New(logger, next, cache.NewRedisClient(redisConfig), redisConfig), nil

	default:
		return nil, fmt.Errorf("invalid cache type: %s", cfg.Type)
	}
}

// remarshal takes an input value, marshals it to YAML, and then unmarshals it into a new value of the same type.
// This is useful for converting generic interfaces (like map[string]any) into concrete struct types.
// The output parameter must be a pointer to the target type.
func remarshal(input any, output any) error {
	// Marshal the input to YAML
	yamlBytes, err := yaml.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal to YAML: %w", err)
	}

	// Unmarshal the YAML into the output
	if err := yaml.Unmarshal(yamlBytes, output); err != nil {
		return fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}

	return nil
}
