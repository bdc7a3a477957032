// Package intercom provides support platform API configuration options.
package intercom

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/support-bridge/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains support platform API configuration.
type Options struct {
	// BaseURL is the API base address.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// AccessToken is the bearer token used for API calls.
	AccessToken string `json:"access-token" mapstructure:"access-token"`

	// ClientSecret signs webhook notifications (HMAC-SHA1).
	ClientSecret string `json:"client-secret" mapstructure:"client-secret"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries bounds transport-level retries.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		BaseURL:    "https://api.intercom.io",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BaseURL, options.Join(prefixes...)+"intercom.base-url", o.BaseURL, "Support platform API base URL.")
	fs.StringVar(&o.AccessToken, options.Join(prefixes...)+"intercom.access-token", o.AccessToken, "Support platform API access token.")
	fs.StringVar(&o.ClientSecret, options.Join(prefixes...)+"intercom.client-secret", o.ClientSecret, "Webhook signing secret.")
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"intercom.timeout", o.Timeout, "API request timeout.")
	fs.IntVar(&o.MaxRetries, options.Join(prefixes...)+"intercom.max-retries", o.MaxRetries, "Maximum number of request retries.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("intercom.base-url is required"))
	}
	if o.AccessToken == "" {
		errs = append(errs, fmt.Errorf("intercom.access-token is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("intercom.timeout must be positive"))
	}
	return errs
}
