// Package cache provides redis cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/support-bridge/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains redis cache configuration for embedding caching.
type Options struct {
	// Enabled toggles the embedding cache.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Addr is the redis server address (host:port).
	Addr string `json:"addr" mapstructure:"addr"`

	// Password is the optional redis password.
	Password string `json:"password" mapstructure:"password"`

	// DB is the redis database index.
	DB int `json:"db" mapstructure:"db"`

	// TTL is the cache entry lifetime.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`
}

// NewOptions creates new Options with defaults. The cache is opt-in.
func NewOptions() *Options {
	return &Options{
		Enabled: false,
		Addr:    "localhost:6379",
		TTL:     24 * time.Hour,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, options.Join(prefixes...)+"cache.enabled", o.Enabled, "Enable the redis embedding cache.")
	fs.StringVar(&o.Addr, options.Join(prefixes...)+"cache.addr", o.Addr, "Redis server address (host:port).")
	fs.StringVar(&o.Password, options.Join(prefixes...)+"cache.password", o.Password, "Redis password.")
	fs.IntVar(&o.DB, options.Join(prefixes...)+"cache.db", o.DB, "Redis database index.")
	fs.DurationVar(&o.TTL, options.Join(prefixes...)+"cache.ttl", o.TTL, "Cache entry lifetime.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.Addr == "" {
		errs = append(errs, fmt.Errorf("cache.addr is required when the cache is enabled"))
	}
	if o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}
	return errs
}
