package eventstore

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultHost                    = "localhost"
	defaultPort                    = 8091
	defaultDatabaseName            = "eventstore"
	defaultEventsCollectionName    = "events"
	defaultSnapshotsCollectionName = "snapshots"
	defaultSSLMode                 = "disable"
)

// QueryOptions controls how scans against the persistence collaborator are issued.
type QueryOptions struct {
	// StrongConsistency forces scans to read from the primary instead of an eventually consistent replica.
	StrongConsistency bool
}

// Config holds the recognized adapter options.
//
// The zero value of every field means "not provided". Merging only ever copies provided values,
// so an explicit zero (e.g. Port: 0) keeps the default.
type Config struct {
	Host                    string
	Port                    int
	DatabaseName            string
	EventsCollectionName    string
	SnapshotsCollectionName string
	QueryOptions            QueryOptions
	ConnectionTimeout       time.Duration // zero means no timeout
	User                    string
	Password                string
	SSLMode                 string
}

// DefaultConfig returns the defaults all caller options are merged over.
func DefaultConfig() Config {
	return Config{
		Host:                    defaultHost,
		Port:                    defaultPort,
		DatabaseName:            defaultDatabaseName,
		EventsCollectionName:    defaultEventsCollectionName,
		SnapshotsCollectionName: defaultSnapshotsCollectionName,
		QueryOptions:            QueryOptions{StrongConsistency: false},
		SSLMode:                 defaultSSLMode,
	}
}

// BuildConfig merges the given overrides over DefaultConfig.
func BuildConfig(overrides Config) Config {
	return DefaultConfig().Merge(overrides)
}

// Merge returns a copy of c where every non-zero field of overrides replaces the field of c.
func (c Config) Merge(overrides Config) Config {
	merged := c

	if overrides.Host != "" {
		merged.Host = overrides.Host
	}

	if overrides.Port != 0 {
		merged.Port = overrides.Port
	}

	if overrides.DatabaseName != "" {
		merged.DatabaseName = overrides.DatabaseName
	}

	if overrides.EventsCollectionName != "" {
		merged.EventsCollectionName = overrides.EventsCollectionName
	}

	if overrides.SnapshotsCollectionName != "" {
		merged.SnapshotsCollectionName = overrides.SnapshotsCollectionName
	}

	if overrides.QueryOptions != (QueryOptions{}) {
		merged.QueryOptions = overrides.QueryOptions
	}

	if overrides.ConnectionTimeout != 0 {
		merged.ConnectionTimeout = overrides.ConnectionTimeout
	}

	if overrides.User != "" {
		merged.User = overrides.User
	}

	if overrides.Password != "" {
		merged.Password = overrides.Password
	}

	if overrides.SSLMode != "" {
		merged.SSLMode = overrides.SSLMode
	}

	return merged
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PostgresDSN builds a postgres:// connection URL from the config.
func (c Config) PostgresDSN() string {
	dsn := url.URL{
		Scheme: "postgres",
		Host:   c.Address(),
		Path:   "/" + c.DatabaseName,
	}

	switch {
	case c.User != "" && c.Password != "":
		dsn.User = url.UserPassword(c.User, c.Password)
	case c.User != "":
		dsn.User = url.User(c.User)
	}

	if c.SSLMode != "" {
		dsn.RawQuery = fmt.Sprintf("sslmode=%s", url.QueryEscape(c.SSLMode))
	}

	return dsn.String()
}
