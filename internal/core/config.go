package core

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultMaxDepth bounds closure traversal in artifact generations.
const DefaultMaxDepth = 20

const (
	defaultIndexSize     = 4096
	defaultIndexTTL      = 10 * time.Minute
	defaultTypeCacheSize = 512
	defaultLSIDAuthority = "lineagecore.local"
)

// Config carries the tunables the service reads at construction.
type Config struct {
	// MaxDepth is the closure bound used when a query does not set one.
	MaxDepth int
	// IndexSize caps the ancestor index. Zero disables the index.
	IndexSize int
	IndexTTL  time.Duration
	// TypeCacheSize caps the type registry cache.
	TypeCacheSize int
	TypeCacheTTL  time.Duration
	// LSIDAuthority is the authority segment of minted artifact LSIDs.
	LSIDAuthority string
}

// DefaultConfig returns the configuration used when no overrides are supplied.
func DefaultConfig() Config {
	return Config{
		MaxDepth:      DefaultMaxDepth,
		IndexSize:     defaultIndexSize,
		IndexTTL:      defaultIndexTTL,
		TypeCacheSize: defaultTypeCacheSize,
		TypeCacheTTL:  defaultIndexTTL,
		LSIDAuthority: defaultLSIDAuthority,
	}
}

// ConfigFromEnv overlays environment variables on DefaultConfig.
//
//	LINEAGECORE_CLOSURE_MAX_DEPTH: positive integer (default 20)
//	LINEAGECORE_INDEX_SIZE: ancestor index entries, 0 disables (default 4096)
//	LINEAGECORE_INDEX_TTL: Go duration (default 10m)
//	LINEAGECORE_LSID_AUTHORITY: LSID authority (default lineagecore.local)
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv("LINEAGECORE_CLOSURE_MAX_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("LINEAGECORE_CLOSURE_MAX_DEPTH: want a positive integer, got %q", v)
		}
		cfg.MaxDepth = n
	}
	if v := os.Getenv("LINEAGECORE_INDEX_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("LINEAGECORE_INDEX_SIZE: want a non-negative integer, got %q", v)
		}
		cfg.IndexSize = n
	}
	if v := os.Getenv("LINEAGECORE_INDEX_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("LINEAGECORE_INDEX_TTL: want a positive duration, got %q", v)
		}
		cfg.IndexTTL = d
	}
	if v := os.Getenv("LINEAGECORE_LSID_AUTHORITY"); v != "" {
		cfg.LSIDAuthority = v
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxDepth <= 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.IndexSize < 0 {
		c.IndexSize = 0
	}
	if c.IndexTTL <= 0 {
		c.IndexTTL = def.IndexTTL
	}
	if c.TypeCacheSize <= 0 {
		c.TypeCacheSize = def.TypeCacheSize
	}
	if c.TypeCacheTTL <= 0 {
		c.TypeCacheTTL = def.TypeCacheTTL
	}
	if c.LSIDAuthority == "" {
		c.LSIDAuthority = def.LSIDAuthority
	}
	return c
}
