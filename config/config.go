// Package config loads the settings of a marsclock run from a YAML file and
// MARSCLOCK_* environment variables. Variables may also come from a .env
// file; variables already set in the process environment take precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/history"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "MARSCLOCK_"

// Settings is the configuration of one run.
type Settings struct {
	Clock            clock.Config
	History          history.Config
	MaxDrainPerPulse int
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		Clock:   clock.DefaultConfig(),
		History: history.DefaultConfig(),
	}
}

// Validate rejects settings that cannot be run.
func (s Settings) Validate() error {
	if err := s.Clock.Validate(); err != nil {
		return err
	}

	if err := s.History.Validate(); err != nil {
		return err
	}

	if s.MaxDrainPerPulse < 0 {
		return &timing.ConfigError{
			Field:  "max drain per pulse",
			Value:  s.MaxDrainPerPulse,
			Reason: "must not be negative",
		}
	}

	return nil
}

type clockFile struct {
	Ratio      *float64       `yaml:"ratio"`
	RatioMin   *float64       `yaml:"ratio_min"`
	RatioMax   *float64       `yaml:"ratio_max"`
	Interval   *time.Duration `yaml:"interval"`
	MaxElapsed *time.Duration `yaml:"max_elapsed"`
	MarsStart  string         `yaml:"mars_start"`
	EarthStart string         `yaml:"earth_start"`
}

type historyFile struct {
	Capacity  *int               `yaml:"capacity"`
	Transient []history.Category `yaml:"transient"`
}

type queueFile struct {
	MaxDrainPerPulse *int `yaml:"max_drain_per_pulse"`
}

type file struct {
	Clock   clockFile   `yaml:"clock"`
	History historyFile `yaml:"history"`
	Queue   queueFile   `yaml:"queue"`
}

// Load reads configFile and envFile on top of the defaults, then overlays
// the process environment. Either file name may be empty.
func Load(configFile, envFile string) (Settings, error) {
	s := Default()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return s, fmt.Errorf("config: %w", err)
		}

		if s, err = Decode(s, data); err != nil {
			return s, err
		}
	}

	lookup := os.LookupEnv
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		if err != nil {
			return s, fmt.Errorf("config: %w", err)
		}

		lookup = func(key string) (string, bool) {
			if v, ok := os.LookupEnv(key); ok {
				return v, true
			}

			v, ok := vars[key]

			return v, ok
		}
	}

	s, err := Overlay(s, lookup)
	if err != nil {
		return s, err
	}

	return s, s.Validate()
}

// Decode applies the YAML document in data to s. Keys that are absent keep
// the values of s.
func Decode(s Settings, data []byte) (Settings, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return s, fmt.Errorf("config: %w", err)
	}

	c := &s.Clock
	if f.Clock.Ratio != nil {
		c.Ratio = timing.Ratio(*f.Clock.Ratio)
	}

	if f.Clock.RatioMin != nil {
		c.RatioBounds.Min = timing.Ratio(*f.Clock.RatioMin)
	}

	if f.Clock.RatioMax != nil {
		c.RatioBounds.Max = timing.Ratio(*f.Clock.RatioMax)
	}

	if f.Clock.Interval != nil {
		c.Interval = *f.Clock.Interval
	}

	if f.Clock.MaxElapsed != nil {
		c.MaxElapsed = *f.Clock.MaxElapsed
	}

	if err := setMarsStart(c, f.Clock.MarsStart); err != nil {
		return s, err
	}

	if err := setEarthStart(c, f.Clock.EarthStart); err != nil {
		return s, err
	}

	if f.History.Capacity != nil {
		s.History.Capacity = *f.History.Capacity
	}

	if f.History.Transient != nil {
		s.History.Transient = f.History.Transient
	}

	if f.Queue.MaxDrainPerPulse != nil {
		s.MaxDrainPerPulse = *f.Queue.MaxDrainPerPulse
	}

	return s, nil
}

// Overlay applies the MARSCLOCK_* variables that lookup finds to s.
func Overlay(
	s Settings,
	lookup func(key string) (string, bool),
) (Settings, error) {
	env := envReader{lookup: lookup}

	env.ratio("RATIO", &s.Clock.Ratio)
	env.ratio("RATIO_MIN", &s.Clock.RatioBounds.Min)
	env.ratio("RATIO_MAX", &s.Clock.RatioBounds.Max)
	env.duration("INTERVAL", &s.Clock.Interval)
	env.duration("MAX_ELAPSED", &s.Clock.MaxElapsed)
	env.integer("HISTORY_CAPACITY", &s.History.Capacity)
	env.integer("MAX_DRAIN_PER_PULSE", &s.MaxDrainPerPulse)
	env.categories("HISTORY_TRANSIENT", &s.History.Transient)

	if v, ok := env.get("MARS_START"); ok && env.err == nil {
		env.err = setMarsStart(&s.Clock, v)
	}

	if v, ok := env.get("EARTH_START"); ok && env.err == nil {
		env.err = setEarthStart(&s.Clock, v)
	}

	return s, env.err
}

func setMarsStart(c *clock.Config, v string) error {
	if v == "" {
		return nil
	}

	t, err := timing.ParseMarsTime(v)
	if err != nil {
		return fmt.Errorf("config: mars start: %w", err)
	}

	c.MarsStart = t

	return nil
}

func setEarthStart(c *clock.Config, v string) error {
	if v == "" {
		return nil
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return fmt.Errorf("config: earth start: %w", err)
	}

	c.EarthStart = timing.NewEarthTime(t.UTC())

	return nil
}

// envReader keeps the first parse error and skips everything after it.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) get(name string) (string, bool) {
	v, ok := r.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}

	v = strings.TrimSpace(v)

	return v, v != ""
}

func (r *envReader) fail(name, v string, err error) {
	r.err = fmt.Errorf("config: %s%s=%q: %w", EnvPrefix, name, v, err)
}

func (r *envReader) ratio(name string, dst *timing.Ratio) {
	v, ok := r.get(name)
	if !ok || r.err != nil {
		return
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(name, v, err)
		return
	}

	*dst = timing.Ratio(f)
}

func (r *envReader) duration(name string, dst *time.Duration) {
	v, ok := r.get(name)
	if !ok || r.err != nil {
		return
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}

	*dst = d
}

func (r *envReader) integer(name string, dst *int) {
	v, ok := r.get(name)
	if !ok || r.err != nil {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}

	*dst = n
}

func (r *envReader) categories(name string, dst *[]history.Category) {
	v, ok := r.get(name)
	if !ok || r.err != nil {
		return
	}

	var cats []history.Category
	for _, part := range strings.Split(v, ",") {
		c, err := history.ParseCategory(part)
		if err != nil {
			r.fail(name, v, err)
			return
		}

		cats = append(cats, c)
	}

	*dst = cats
}
