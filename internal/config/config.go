// Package config loads the service configuration from TOML. Fields left out
// of the file keep the values in their default tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mcuadros/go-defaults"
)

// EnvPath names the variable consulted when no -config flag is given.
const EnvPath = "FINGERPRINT_CONFIG"

type Config struct {
	Server    Server    `toml:"server"`
	Log       Log       `toml:"log"`
	Matching  Matching  `toml:"matching"`
	Debug     Debug     `toml:"debug"`
	Templates Templates `toml:"templates"`
}

type Server struct {
	Addr string `toml:"addr" default:":5050"`
	// BodyLimitMiB caps request bodies; base64 inflates images by a third.
	BodyLimitMiB    int           `toml:"body_limit_mib" default:"16"`
	CORSOrigins     string        `toml:"cors_origins" default:"*"`
	Prefork         bool          `toml:"prefork"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" default:"10s"`
}

type Log struct {
	Dir          string        `toml:"dir" default:"logs"`
	Pattern      string        `toml:"pattern" default:"fingerprint.%Y%m%d.log"`
	MaxAge       time.Duration `toml:"max_age" default:"168h"`
	RotationTime time.Duration `toml:"rotation_time" default:"24h"`
	Stdout       bool          `toml:"stdout" default:"true"`
	// File disables the rotating file when false.
	File bool `toml:"file" default:"true"`
}

type Matching struct {
	Workers         int           `toml:"workers"`
	Trees           int           `toml:"kd_trees" default:"5"`
	Checks          int           `toml:"checks" default:"100"`
	RANSACIter      int           `toml:"ransac_iterations" default:"2000"`
	RANSACConf      float64       `toml:"ransac_confidence" default:"0.995"`
	RANSACThreshold float64       `toml:"ransac_threshold" default:"5.0"`
	Seed            int64         `toml:"seed"`
	CacheTTL        time.Duration `toml:"cache_ttl" default:"10m"`
}

type Debug struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir" default:"debug"`
}

type Templates struct {
	// Dir holds the template store; empty keeps templates in memory.
	Dir string `toml:"dir" default:"templates"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads path over the defaults. An empty path falls back to EnvPath
// and then to the defaults alone; a named file that is missing is an error.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path != "" {
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			keys := make([]string, len(undec))
			for i, k := range undec {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Server.Addr != "", "server.addr is empty")
	check(c.Server.BodyLimitMiB > 0, "server.body_limit_mib must be positive, got %d", c.Server.BodyLimitMiB)
	check(c.Server.ShutdownTimeout >= 0, "server.shutdown_timeout is negative")
	check(c.Matching.Workers >= 0, "matching.workers is negative")
	check(c.Matching.Trees > 0, "matching.kd_trees must be positive, got %d", c.Matching.Trees)
	check(c.Matching.Checks > 0, "matching.checks must be positive, got %d", c.Matching.Checks)
	check(c.Matching.RANSACIter > 0, "matching.ransac_iterations must be positive, got %d", c.Matching.RANSACIter)
	check(c.Matching.RANSACConf > 0 && c.Matching.RANSACConf < 1, "matching.ransac_confidence must be in (0, 1), got %v", c.Matching.RANSACConf)
	check(c.Matching.RANSACThreshold > 0, "matching.ransac_threshold must be positive, got %v", c.Matching.RANSACThreshold)
	check(c.Matching.CacheTTL >= 0, "matching.cache_ttl is negative")
	check(!c.Log.File || c.Log.Pattern != "", "log.pattern is empty")
	check(c.Log.RotationTime > 0 || !c.Log.File, "log.rotation_time must be positive")
	check(!c.Debug.Enabled || c.Debug.Dir != "", "debug.dir is empty")
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// BodyLimit is the request body cap in bytes.
func (s Server) BodyLimit() int { return s.BodyLimitMiB << 20 }
