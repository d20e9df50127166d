package driver

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/sqlerr"
)

// SSLMode controls the TLS upgrade negotiation.
type SSLMode string

const (
	SSLDisable    SSLMode = "disable"
	SSLPrefer     SSLMode = "prefer"
	SSLRequire    SSLMode = "require"
	SSLVerifyCa   SSLMode = "verify-ca"
	SSLVerifyFull SSLMode = "verify-full"
)

// WantsTLS reports whether the mode asks for an SSLRequest at all.
func (m SSLMode) WantsTLS() bool { return m != SSLDisable }

// Required reports whether a server refusal is fatal.
func (m SSLMode) Required() bool {
	return m == SSLRequire || m == SSLVerifyCa || m == SSLVerifyFull
}

// Config is the connection configuration shared by all drivers.
type Config struct {
	Dialect  dialect.Dialect `toml:"dialect"`
	Host     string          `toml:"host"`
	Port     int             `toml:"port"`
	User     string          `toml:"user"`
	Password string          `toml:"password"`
	Database string          `toml:"database"`
	// Path is the database file for SQLite (":memory:" included).
	Path string `toml:"path"`

	ConnectTimeoutMs int     `toml:"connect_timeout_ms"`
	QueryTimeoutMs   int     `toml:"query_timeout_ms"`
	SSL              SSLMode `toml:"ssl_mode"`
	ApplicationName  string  `toml:"application_name"`
	// StmtCacheSize bounds the per-connection prepared-statement cache.
	StmtCacheSize int `toml:"stmt_cache_size"`
}

// Defaults for unset fields.
const (
	DefaultConnectTimeoutMs = 30000
	DefaultQueryTimeoutMs   = 30000
	DefaultStmtCacheSize    = 64
)

// Normalize fills defaults and validates the configuration.
func (c *Config) Normalize() error {
	if c.Dialect == "" {
		return sqlerr.New(sqlerr.Config, "dialect is required")
	}
	if !dialect.Valid(string(c.Dialect)) {
		return sqlerr.New(sqlerr.Config, "unsupported dialect %q", c.Dialect)
	}
	if c.ConnectTimeoutMs == 0 {
		c.ConnectTimeoutMs = DefaultConnectTimeoutMs
	}
	if c.QueryTimeoutMs == 0 {
		c.QueryTimeoutMs = DefaultQueryTimeoutMs
	}
	if c.SSL == "" {
		c.SSL = SSLPrefer
	}
	if c.StmtCacheSize == 0 {
		c.StmtCacheSize = DefaultStmtCacheSize
	}
	if c.Port == 0 {
		c.Port = c.Dialect.DefaultPort()
	}
	if c.Dialect == dialect.SQLite {
		if c.Path == "" {
			c.Path = c.Database
		}
		if c.Path == "" {
			return sqlerr.New(sqlerr.Config, "sqlite requires a database path")
		}
		return nil
	}
	if c.Host == "" {
		return sqlerr.New(sqlerr.Config, "host is required for %s", c.Dialect)
	}
	if c.User == "" {
		return sqlerr.New(sqlerr.Config, "user is required for %s", c.Dialect)
	}
	return nil
}

// ConnectTimeout returns the connect timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// QueryTimeout returns the query timeout as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

// Addr returns the dial address, bracketing IPv6 hosts.
func (c *Config) Addr() string {
	return net.JoinHostPort(strings.Trim(c.Host, "[]"), strconv.Itoa(c.Port))
}

// ParseURL parses postgres:// / mysql:// / sqlite:// connection URLs.
// The userinfo, host (IPv6 in brackets), optional port, and path
// segment (database name) are recognized; the query string is ignored.
func ParseURL(raw string) (*Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, sqlerr.Wrap(sqlerr.Config, err, "malformed connection url")
	}
	cfg := &Config{}
	switch u.Scheme {
	case "postgres", "postgresql":
		cfg.Dialect = dialect.Postgres
	case "mysql":
		cfg.Dialect = dialect.MySQL
	case "sqlite", "file":
		cfg.Dialect = dialect.SQLite
		cfg.Path = strings.TrimPrefix(u.Opaque+u.Path, "/")
		if u.Opaque == "" && strings.HasPrefix(u.Path, "/") {
			cfg.Path = u.Path // keep absolute file paths absolute
		}
		return cfg, nil
	default:
		return nil, sqlerr.New(sqlerr.Config, "unsupported url scheme %q", u.Scheme)
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	cfg.Host = u.Hostname()
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, sqlerr.New(sqlerr.Config, "invalid port %q", p)
		}
		cfg.Port = n
	} else {
		cfg.Port = cfg.Dialect.DefaultPort()
	}
	cfg.Database = strings.TrimPrefix(u.Path, "/")
	return cfg, nil
}

// LoadConfigFile reads a TOML connection configuration.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sqlerr.Wrap(sqlerr.Config, err, "read config %s", path)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, sqlerr.Wrap(sqlerr.Config, err, "parse config %s", path)
	}
	return &cfg, nil
}
