// Package options defines the generic options interface and common helpers.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." and appends a trailing "." when the
// result is non-empty, producing flag names like "chat.llm.model".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions defines methods implemented by every options struct.
type IOptions interface {
	// Validate validates the options and may complete defaults.
	Validate() []error

	// AddFlags registers flags on the given flagset.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
