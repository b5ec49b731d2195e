package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Arclight-Systems/casetrail/pkg/storage"
)

// Profile is a deployment-specific YAML overlay. Zero values leave the
// corresponding env-derived setting untouched.
type Profile struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`

	Export ExportProfile  `yaml:"export"`
	Store  storage.Config `yaml:"storage"`
}

// ExportProfile overrides export limits.
type ExportProfile struct {
	RateLimitPerHour   int `yaml:"rate_limit_per_hour"`
	MaxRows            int `yaml:"max_rows"`
	DownloadTTLMinutes int `yaml:"download_ttl_minutes"`
}

// LoadProfile reads and parses a profile YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load profile %q: %w", path, err)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("config: parse profile %q: %w", path, err)
	}
	return &profile, nil
}

func (p *Profile) apply(cfg *Config) {
	if p.Environment != "" {
		cfg.Environment = p.Environment
	}
	if p.Export.RateLimitPerHour > 0 {
		cfg.ExportRateLimitPerHour = p.Export.RateLimitPerHour
	}
	if p.Export.MaxRows > 0 {
		cfg.ExportMaxRows = p.Export.MaxRows
	}
	if p.Export.DownloadTTLMinutes > 0 {
		cfg.DownloadTTLMinutes = p.Export.DownloadTTLMinutes
	}
	if p.Store.Backend != "" {
		cfg.Storage = p.Store
	}
}
