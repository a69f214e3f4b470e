// Package config loads the ingestion job schedule.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	// schedules may name any IANA zone, even in minimal images
	_ "time/tzdata"

	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/utils"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Timezone    string `yaml:"timezone"`
	HorizonDays int    `yaml:"horizon_days"`
	Jobs        []Job  `yaml:"jobs"`
}

// Job schedules one platform's snapshot ingestion.
type Job struct {
	Platform string `yaml:"platform"`
	// Schedule is a standard 5-field cron expression evaluated in Config.Timezone.
	Schedule string `yaml:"schedule"`
	Snapshot string `yaml:"snapshot"`
}

func DefaultConfig() Config {
	return Config{
		Timezone:    "UTC",
		HorizonDays: social.DefaultHorizonDays,
		Jobs: []Job{
			{Platform: string(social.Instagram), Schedule: "0 0 * * *", Snapshot: "scraped_data_instagram.csv"},
			{Platform: string(social.TikTok), Schedule: "10 0 * * *", Snapshot: "scraped_data_tiktok.csv"},
		},
	}
}

// FromEnv loads JOBS_CONFIG when set, or the defaults otherwise.
func FromEnv() (Config, error) {
	return Load(utils.Env("JOBS_CONFIG", ""))
}

// Load reads a YAML job file over the defaults. An empty path yields the defaults. Environment
// overrides (SNAPSHOT_DIR, HORIZON_DAYS) are applied after the file and the result is validated.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dir := utils.Env("SNAPSHOT_DIR", ""); dir != "" {
		for i := range c.Jobs {
			if !filepath.IsAbs(c.Jobs[i].Snapshot) {
				c.Jobs[i].Snapshot = filepath.Join(dir, c.Jobs[i].Snapshot)
			}
		}
	}
	c.HorizonDays = utils.EnvInt("HORIZON_DAYS", c.HorizonDays)
}

// Validate checks platforms, schedules, timezone and horizon.
func (c Config) Validate() error {
	if c.HorizonDays <= 0 {
		return fmt.Errorf("horizon_days must be > 0, got %d", c.HorizonDays)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Jobs))
	for i, j := range c.Jobs {
		cat, ok := social.Lookup(j.Platform)
		if !ok {
			return fmt.Errorf("jobs[%d]: unknown platform %q", i, j.Platform)
		}
		if seen[string(cat.Platform)] {
			return fmt.Errorf("jobs[%d]: duplicate platform %q", i, cat.Platform)
		}
		seen[string(cat.Platform)] = true
		if _, err := cron.ParseStandard(j.Schedule); err != nil {
			return fmt.Errorf("jobs[%d]: invalid schedule %q: %w", i, j.Schedule, err)
		}
		if j.Snapshot == "" {
			return fmt.Errorf("jobs[%d]: snapshot path is required", i)
		}
	}
	return nil
}

// Location resolves Timezone, defaulting to UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Job returns the job of a platform.
func (c Config) Job(p social.Platform) (Job, bool) {
	for _, j := range c.Jobs {
		if cat, ok := social.Lookup(j.Platform); ok && cat.Platform == p {
			return j, true
		}
	}
	return Job{}, false
}
