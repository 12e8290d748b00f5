package config

import (
	"flag"
	"io"
	"strings"
)

// parseFlags overlays the command-line flags that matter most at deploy
// time. Everything else is environment-only.
//
//	-addr string        listen address
//	-database string    PostgreSQL URL; empty runs on in-memory storage
//	-redis string       Redis URL for shared rate limiting
//	-origins string     comma-separated trusted origins
//	-log-level string   debug, info, warn or error
//	-dev                development logging
func parseFlags(c *Config, args []string) error {
	fs := flag.NewFlagSet("bantayd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.StringVar(&c.DatabaseURL, "database", c.DatabaseURL, "PostgreSQL URL")
	fs.StringVar(&c.RedisURL, "redis", c.RedisURL, "Redis URL")
	origins := fs.String("origins", strings.Join(c.TrustedOrigins, ","), "comma-separated trusted origins")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.BoolVar(&c.LogDev, "dev", c.LogDev, "development logging")

	if err := fs.Parse(args); err != nil {
		return err
	}

	c.TrustedOrigins = splitList(*origins)
	return nil
}
