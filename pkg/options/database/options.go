// Package database provides relational database configuration options.
package database

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/support-bridge/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Options contains relational database configuration.
type Options struct {
	// Driver selects the database driver (sqlite|mysql|postgres).
	Driver string `json:"driver" mapstructure:"driver"`

	// DSN is the data source name. For sqlite this is the file path.
	DSN string `json:"dsn" mapstructure:"dsn"`

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int `json:"max-idle-conns" mapstructure:"max-idle-conns"`

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int `json:"max-open-conns" mapstructure:"max-open-conns"`

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration `json:"conn-max-lifetime" mapstructure:"conn-max-lifetime"`

	// LogLevel sets the gorm log level (silent|error|warn|info).
	LogLevel string `json:"log-level" mapstructure:"log-level"`
}

// NewOptions creates new Options with defaults. SQLite keeps single-node
// deployments dependency free.
func NewOptions() *Options {
	return &Options{
		Driver:          DriverSQLite,
		DSN:             "articles.db",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		LogLevel:        "warn",
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, options.Join(prefixes...)+"db.driver", o.Driver, "Database driver (sqlite|mysql|postgres).")
	fs.StringVar(&o.DSN, options.Join(prefixes...)+"db.dsn", o.DSN, "Database data source name.")
	fs.IntVar(&o.MaxIdleConns, options.Join(prefixes...)+"db.max-idle-conns", o.MaxIdleConns, "Maximum number of idle connections.")
	fs.IntVar(&o.MaxOpenConns, options.Join(prefixes...)+"db.max-open-conns", o.MaxOpenConns, "Maximum number of open connections.")
	fs.DurationVar(&o.ConnMaxLifetime, options.Join(prefixes...)+"db.conn-max-lifetime", o.ConnMaxLifetime, "Maximum connection lifetime.")
	fs.StringVar(&o.LogLevel, options.Join(prefixes...)+"db.log-level", o.LogLevel, "Gorm log level (silent|error|warn|info).")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Driver {
	case DriverSQLite, DriverMySQL, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver: %q", o.Driver))
	}
	if o.DSN == "" {
		errs = append(errs, fmt.Errorf("db.dsn is required"))
	}
	return errs
}
