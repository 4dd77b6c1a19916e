package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Config holds every option the gallery reads at startup plus the access
// rule set that stays live-reloadable afterwards.
type Config struct {
	ThumbRootPath   string `koanf:"thumb_root_path"`
	StaticSitePath  string `koanf:"static_site_path"`
	AuditLogPath    string `koanf:"audit_log_path"`
	PlayOverlayPath string `koanf:"play_overlay_path"`

	Log           LogConfig           `koanf:"log"`
	Listen        ListenConfig        `koanf:"listen"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	HTTP          HTTPConfig          `koanf:"http"`
	Thumbs        ThumbsConfig        `koanf:"thumbs"`
	Access        AccessConfig        `koanf:"access"`
	DecisionCache DecisionCacheConfig `koanf:"decision_cache"`

	Groups  []Group  `koanf:"groups"`
	Folders []Folder `koanf:"folders"`
}

// LogConfig expresses destination, level, and format of the service log.
type LogConfig struct {
	Path   string `koanf:"path"`
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ListenConfig instructs the gallery HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// MetricsConfig selects the metrics listener port. Zero disables the
// listener and all counter tracking with it.
type MetricsConfig struct {
	Port int `koanf:"port"`
}

// HTTPConfig carries response-header knobs for the JSON endpoints.
type HTTPConfig struct {
	CORSOrigin string `koanf:"cors_origin"`
}

// ThumbsConfig bounds thumbnail sizes and names the external converters.
// The tool paths are resolved through PATH when not absolute.
type ThumbsConfig struct {
	MaxSize       int    `koanf:"max_size"`
	ConvertPath   string `koanf:"convert_path"`
	FfmpegPath    string `koanf:"ffmpeg_path"`
	CompositePath string `koanf:"composite_path"`
}

// AccessConfig tunes the rule matcher. SegmentBoundaries switches prefix
// matching from plain string prefixes (the historical behavior, where
// /a/b also covers /a/bc) to path-segment-aware prefixes.
type AccessConfig struct {
	SegmentBoundaries bool `koanf:"segment_boundaries"`
}

// DecisionCacheConfig selects the optional access-decision cache backend.
type DecisionCacheConfig struct {
	Backend    string            `koanf:"backend"`
	TTLSeconds int               `koanf:"ttl_seconds"`
	Valkey     ValkeyCacheConfig `koanf:"valkey"`
}

type ValkeyCacheConfig struct {
	Address  string          `koanf:"address"`
	Username string          `koanf:"username"`
	Password string          `koanf:"password"`
	DB       int             `koanf:"db"`
	TLS      ValkeyTLSConfig `koanf:"tls"`
}

type ValkeyTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"ca_file"`
}

// Group names a reusable set of member emails that folder rules reference
// as "#name" principals.
type Group struct {
	Name    string   `koanf:"name"`
	Members []string `koanf:"members"`
}

// Folder is one ordered access rule. Allowed and Denied hold principals:
// plain emails or "#group" references. Inheritable and BreaksInheritance
// default to false and reset at every rule boundary during evaluation.
type Folder struct {
	Path              string   `koanf:"path"`
	Inheritable       bool     `koanf:"inheritable"`
	BreaksInheritance bool     `koanf:"breaks_inheritance"`
	Allowed           []string `koanf:"allowed"`
	Denied            []string `koanf:"denied"`
}

// Validate enforces invariants that keep the runtime predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if strings.TrimSpace(c.ThumbRootPath) == "" {
		return errors.New("config: thumb_root_path required")
	}
	if strings.TrimSpace(c.StaticSitePath) == "" {
		return errors.New("config: static_site_path required")
	}
	if strings.TrimSpace(c.Log.Path) == "" {
		return errors.New("config: log.path required")
	}
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Listen.Port)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("config: metrics.port invalid: %d", c.Metrics.Port)
	}
	if c.Metrics.Port != 0 && c.Metrics.Port == c.Listen.Port {
		return fmt.Errorf("config: metrics.port collides with listen.port: %d", c.Metrics.Port)
	}
	switch strings.TrimSpace(strings.ToLower(c.Log.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: log.format unsupported: %s", c.Log.Format)
	}
	if c.Thumbs.MaxSize <= 0 {
		return fmt.Errorf("config: thumbs.max_size invalid: %d", c.Thumbs.MaxSize)
	}
	if c.DecisionCache.TTLSeconds < 0 {
		return fmt.Errorf("config: decision_cache.ttl_seconds invalid: %d", c.DecisionCache.TTLSeconds)
	}
	backend := strings.TrimSpace(strings.ToLower(c.DecisionCache.Backend))
	switch backend {
	case "", "off", "memory":
	case "valkey":
		if strings.TrimSpace(c.DecisionCache.Valkey.Address) == "" {
			return errors.New("config: decision_cache.valkey.address required for valkey backend")
		}
	default:
		return fmt.Errorf("config: decision_cache.backend unsupported: %s", c.DecisionCache.Backend)
	}
	seen := make(map[string]struct{}, len(c.Groups))
	for i, group := range c.Groups {
		name := strings.TrimSpace(group.Name)
		if name == "" {
			return fmt.Errorf("config: groups[%d].name empty", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("config: group %q defined twice", name)
		}
		seen[name] = struct{}{}
	}
	for i, folder := range c.Folders {
		if !strings.HasPrefix(folder.Path, "/") {
			return fmt.Errorf("config: folders[%d].path must be absolute: %q", i, folder.Path)
		}
	}
	return nil
}

// SortFolders orders the rule list by path ascending. Evaluation order is
// part of the access contract, so this runs once at load and the slice is
// never mutated afterwards.
func (c *Config) SortFolders() {
	sort.SliceStable(c.Folders, func(i, j int) bool {
		return c.Folders[i].Path < c.Folders[j].Path
	})
}

// DefaultConfig returns the baseline values that align with the design defaults.
func DefaultConfig() Config {
	return Config{
		PlayOverlayPath: "play256.png",
		Log: LogConfig{
			Level:  "Info",
			Format: "text",
		},
		Listen: ListenConfig{
			Address: "0.0.0.0",
			Port:    8000,
		},
		Thumbs: ThumbsConfig{
			MaxSize:       1024,
			ConvertPath:   "convert",
			FfmpegPath:    "ffmpeg",
			CompositePath: "composite",
		},
		DecisionCache: DecisionCacheConfig{
			Backend:    "off",
			TTLSeconds: 30,
		},
	}
}
