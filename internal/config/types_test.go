package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.ThumbRootPath = "/tmp/thumbs"
	cfg.StaticSitePath = "/tmp/site"
	cfg.Log.Path = "/tmp/gallery.log"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "valid config passes",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "missing thumb root",
			mutate:  func(cfg *Config) { cfg.ThumbRootPath = " " },
			wantErr: "thumb_root_path",
		},
		{
			name:    "missing static site",
			mutate:  func(cfg *Config) { cfg.StaticSitePath = "" },
			wantErr: "static_site_path",
		},
		{
			name:    "missing log path",
			mutate:  func(cfg *Config) { cfg.Log.Path = "" },
			wantErr: "log.path",
		},
		{
			name:    "listen port out of range",
			mutate:  func(cfg *Config) { cfg.Listen.Port = 70000 },
			wantErr: "listen.port",
		},
		{
			name:    "metrics port negative",
			mutate:  func(cfg *Config) { cfg.Metrics.Port = -1 },
			wantErr: "metrics.port",
		},
		{
			name: "metrics port collides with listen port",
			mutate: func(cfg *Config) {
				cfg.Listen.Port = 8000
				cfg.Metrics.Port = 8000
			},
			wantErr: "collides",
		},
		{
			name:    "unsupported log format",
			mutate:  func(cfg *Config) { cfg.Log.Format = "xml" },
			wantErr: "log.format",
		},
		{
			name:    "thumb max size zero",
			mutate:  func(cfg *Config) { cfg.Thumbs.MaxSize = 0 },
			wantErr: "thumbs.max_size",
		},
		{
			name:    "negative cache ttl",
			mutate:  func(cfg *Config) { cfg.DecisionCache.TTLSeconds = -5 },
			wantErr: "ttl_seconds",
		},
		{
			name:    "unsupported cache backend",
			mutate:  func(cfg *Config) { cfg.DecisionCache.Backend = "memcached" },
			wantErr: "decision_cache.backend",
		},
		{
			name:    "valkey backend requires address",
			mutate:  func(cfg *Config) { cfg.DecisionCache.Backend = "valkey" },
			wantErr: "valkey.address",
		},
		{
			name: "valkey backend with address passes",
			mutate: func(cfg *Config) {
				cfg.DecisionCache.Backend = "valkey"
				cfg.DecisionCache.Valkey.Address = "localhost:6379"
			},
		},
		{
			name:    "empty group name",
			mutate:  func(cfg *Config) { cfg.Groups = []Group{{Name: "  "}} },
			wantErr: "name empty",
		},
		{
			name: "duplicate group name",
			mutate: func(cfg *Config) {
				cfg.Groups = []Group{
					{Name: "family", Members: []string{"a@x.org"}},
					{Name: "family", Members: []string{"b@x.org"}},
				}
			},
			wantErr: "defined twice",
		},
		{
			name:    "relative folder path",
			mutate:  func(cfg *Config) { cfg.Folders = []Folder{{Path: "media"}} },
			wantErr: "absolute",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSortFoldersIsStable(t *testing.T) {
	cfg := validConfig()
	cfg.Folders = []Folder{
		{Path: "/media/z"},
		{Path: "/media"},
		{Path: "/media/a/b"},
		{Path: "/media/a"},
	}
	cfg.SortFolders()

	got := make([]string, 0, len(cfg.Folders))
	for _, f := range cfg.Folders {
		got = append(got, f.Path)
	}
	require.Equal(t, []string{"/media", "/media/a", "/media/a/b", "/media/z"}, got)
}
