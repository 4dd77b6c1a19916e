package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	path      string
}

// NewLoader prepares a config hydrator for the given config file. TOML is
// the canonical format; YAML and JSON documents are accepted by extension.
func NewLoader(envPrefix, path string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		path:      path,
	}
}

// Path reports the config file the loader reads, for watchers.
func (l *Loader) Path() string {
	return l.path
}

// Load assembles the effective snapshot so the composition root can make
// decisions using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if l.path != "" {
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(l.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", l.path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", l.path, err)
		}
		parser, err := parserFor(l.path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(l.path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", l.path, err)
		}
	}

	if l.envPrefix != "" {
		transform := func(s string) string {
			// Double underscores signal a nested path (LOG__LEVEL -> log.level);
			// single underscores stay, the keys are snake_case already.
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.SortFolders()
	return cfg, nil
}

// parserFor picks the koanf parser matching the file extension.
func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml", ".tml":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported config file extension %s", ext)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"thumb_root_path":   cfg.ThumbRootPath,
		"static_site_path":  cfg.StaticSitePath,
		"audit_log_path":    cfg.AuditLogPath,
		"play_overlay_path": cfg.PlayOverlayPath,
		"log": map[string]any{
			"path":   cfg.Log.Path,
			"level":  cfg.Log.Level,
			"format": cfg.Log.Format,
		},
		"listen": map[string]any{
			"address": cfg.Listen.Address,
			"port":    cfg.Listen.Port,
		},
		"metrics": map[string]any{
			"port": cfg.Metrics.Port,
		},
		"http": map[string]any{
			"cors_origin": cfg.HTTP.CORSOrigin,
		},
		"thumbs": map[string]any{
			"max_size":       cfg.Thumbs.MaxSize,
			"convert_path":   cfg.Thumbs.ConvertPath,
			"ffmpeg_path":    cfg.Thumbs.FfmpegPath,
			"composite_path": cfg.Thumbs.CompositePath,
		},
		"access": map[string]any{
			"segment_boundaries": cfg.Access.SegmentBoundaries,
		},
		"decision_cache": map[string]any{
			"backend":     cfg.DecisionCache.Backend,
			"ttl_seconds": cfg.DecisionCache.TTLSeconds,
			"valkey": map[string]any{
				"address":  cfg.DecisionCache.Valkey.Address,
				"username": cfg.DecisionCache.Valkey.Username,
				"password": cfg.DecisionCache.Valkey.Password,
				"db":       cfg.DecisionCache.Valkey.DB,
				"tls": map[string]any{
					"enabled": cfg.DecisionCache.Valkey.TLS.Enabled,
					"ca_file": cfg.DecisionCache.Valkey.TLS.CAFile,
				},
			},
		},
	}
}
