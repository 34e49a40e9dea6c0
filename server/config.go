package server

import (
	"runtime"
	"time"

	"github.com/kbukum/tilekit/security"
	"github.com/kbukum/tilekit/util"
)

// Config holds the HTTP serving settings.
type Config struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" mapstructure:"addr"`

	// ReadTimeout and WriteTimeout bound request IO. SSE connections
	// disable the write deadline themselves.
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`

	// RateLimit is the sustained tile-request rate per second. Zero
	// disables rate limiting.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	// RateBurst is the rate limiter burst size.
	RateBurst int `yaml:"rate_burst" mapstructure:"rate_burst"`

	// MaxComputes bounds concurrent on-demand tile computations. Requests
	// beyond the bound fail fast with 503.
	MaxComputes int `yaml:"max_computes" mapstructure:"max_computes"`

	// TLS enables HTTPS when certificate and key are configured.
	TLS *security.TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	c.Addr = util.Coalesce(c.Addr, ":8080")
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.RateBurst == 0 {
		c.RateBurst = 20
	}
	if c.MaxComputes == 0 {
		c.MaxComputes = 2 * runtime.NumCPU()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return c.TLS.Validate()
}
