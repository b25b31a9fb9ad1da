package semcache

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/semcache/semcache/rfc7234"
)

// FileConfig is the YAML configuration file layout.
type FileConfig struct {
	Port     int            `yaml:"port"`
	Provider string         `yaml:"provider"`
	DBPath   string         `yaml:"dbPath"`
	Origins  []OriginConfig `yaml:"origins"`
}

// OriginConfig configures one proxied origin and its engine options.
type OriginConfig struct {
	Origin          string  `yaml:"origin"`
	Host            string  `yaml:"host"`
	Private         bool    `yaml:"private"`
	IgnoreCargoCult bool    `yaml:"ignoreCargoCult"`
	TrustServerDate *bool   `yaml:"trustServerDate"`
	CacheHeuristic  float64 `yaml:"cacheHeuristic"`
	ImmutableMinTTL string  `yaml:"immutableMinTtl"`
}

// EngineOptions translates the origin configuration into engine options,
// starting from the defaults.
func (o OriginConfig) EngineOptions() (rfc7234.Options, error) {
	opt := rfc7234.DefaultOptions()
	opt.Shared = !o.Private
	opt.IgnoreCargoCult = o.IgnoreCargoCult
	if o.TrustServerDate != nil {
		opt.TrustServerDate = *o.TrustServerDate
	}
	if o.CacheHeuristic != 0 {
		opt.CacheHeuristic = o.CacheHeuristic
	}
	if o.ImmutableMinTTL != "" {
		ttl, err := time.ParseDuration(o.ImmutableMinTTL)
		if err != nil {
			return opt, err
		}
		opt.ImmutableMinTTL = ttl
	}
	return opt, nil
}

// LoadConfig reads and parses the YAML configuration file.
func LoadConfig(filename string) (FileConfig, error) {
	var config FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
