// Package bot provides reply pipeline configuration options.
package bot

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/support-bridge/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains the reply pipeline configuration.
type Options struct {
	// Company is the company name used in the reply instructions.
	Company string `json:"company" mapstructure:"company"`

	// AdminID is the admin identity the bot replies as.
	AdminID int64 `json:"admin-id" mapstructure:"admin-id"`

	// AdminName is the display name of the bot admin.
	AdminName string `json:"admin-name" mapstructure:"admin-name"`

	// TestMode downgrades outgoing replies to internal notes and overrides
	// the assignment gate.
	TestMode bool `json:"test-mode" mapstructure:"test-mode"`

	// HistoryLimit caps how many conversation parts enter the transcript.
	HistoryLimit int `json:"history-limit" mapstructure:"history-limit"`

	// RetrievalTopK is the number of sections retrieved per query.
	RetrievalTopK int `json:"retrieval-top-k" mapstructure:"retrieval-top-k"`

	// CompletionAttempts bounds completion retries on rate limiting.
	CompletionAttempts int `json:"completion-attempts" mapstructure:"completion-attempts"`

	// CompletionBackoff is the fixed wait between completion retries.
	CompletionBackoff time.Duration `json:"completion-backoff" mapstructure:"completion-backoff"`

	// WorkerPoolSize is the webhook task pool size.
	WorkerPoolSize int `json:"worker-pool-size" mapstructure:"worker-pool-size"`

	// SyncOnStart runs an article ingestion pass when the server starts.
	SyncOnStart bool `json:"sync-on-start" mapstructure:"sync-on-start"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		HistoryLimit:       10,
		RetrievalTopK:      10,
		CompletionAttempts: 5,
		CompletionBackoff:  5 * time.Second,
		WorkerPoolSize:     32,
		SyncOnStart:        true,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Company, options.Join(prefixes...)+"bot.company", o.Company, "Company name used in reply instructions.")
	fs.Int64Var(&o.AdminID, options.Join(prefixes...)+"bot.admin-id", o.AdminID, "Admin identity the bot replies as.")
	fs.StringVar(&o.AdminName, options.Join(prefixes...)+"bot.admin-name", o.AdminName, "Display name of the bot admin.")
	fs.BoolVar(&o.TestMode, options.Join(prefixes...)+"bot.test-mode", o.TestMode, "Send internal notes instead of customer replies.")
	fs.IntVar(&o.HistoryLimit, options.Join(prefixes...)+"bot.history-limit", o.HistoryLimit, "Maximum conversation parts in the transcript.")
	fs.IntVar(&o.RetrievalTopK, options.Join(prefixes...)+"bot.retrieval-top-k", o.RetrievalTopK, "Number of sections retrieved per query.")
	fs.IntVar(&o.CompletionAttempts, options.Join(prefixes...)+"bot.completion-attempts", o.CompletionAttempts, "Completion attempts before degrading.")
	fs.DurationVar(&o.CompletionBackoff, options.Join(prefixes...)+"bot.completion-backoff", o.CompletionBackoff, "Fixed wait between completion retries.")
	fs.IntVar(&o.WorkerPoolSize, options.Join(prefixes...)+"bot.worker-pool-size", o.WorkerPoolSize, "Webhook worker pool size.")
	fs.BoolVar(&o.SyncOnStart, options.Join(prefixes...)+"bot.sync-on-start", o.SyncOnStart, "Run article ingestion on startup.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Company == "" {
		errs = append(errs, fmt.Errorf("bot.company is required"))
	}
	if o.AdminID == 0 {
		errs = append(errs, fmt.Errorf("bot.admin-id is required"))
	}
	if o.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("bot.history-limit must be positive"))
	}
	if o.RetrievalTopK <= 0 {
		errs = append(errs, fmt.Errorf("bot.retrieval-top-k must be positive"))
	}
	if o.CompletionAttempts <= 0 {
		errs = append(errs, fmt.Errorf("bot.completion-attempts must be positive"))
	}
	if o.WorkerPoolSize <= 0 {
		errs = append(errs, fmt.Errorf("bot.worker-pool-size must be positive"))
	}
	return errs
}
