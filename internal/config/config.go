// Package config loads run configuration from a YAML file.
//
// Everything has a sensible default; a config file is only needed to
// override the id convention, the monitored fields, or the publish sinks.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/relation"
)

// Config is the full run configuration.
type Config struct {
	// DataDir is the root of the event-file tree.
	DataDir string `yaml:"data_dir"`

	// MonitoredFields overrides the monitored field per entity kind.
	// An explicit empty value disables transaction extraction for a kind.
	MonitoredFields map[string]string `yaml:"monitored_fields,omitempty"`

	// Relationships selects how join keys are derived.
	Relationships Relationships `yaml:"relationships,omitempty"`

	// Publish configures timeline sinks.
	Publish Publish `yaml:"publish,omitempty"`
}

// Relationships configures join-key resolution. Mode "suffix" (default)
// strips the kind prefix and keeps the trailing digits; mode "mapping"
// uses the explicit entries only.
type Relationships struct {
	Mode    string         `yaml:"mode,omitempty"`
	Entries []MappingEntry `yaml:"entries,omitempty"`
}

// MappingEntry binds one record id to a join key.
type MappingEntry struct {
	Kind string `yaml:"kind"`
	ID   string `yaml:"id"`
	Key  string `yaml:"key"`
}

// Publish configures the optional timeline sinks.
type Publish struct {
	File  *FileSink  `yaml:"file,omitempty"`
	Kafka *KafkaSink `yaml:"kafka,omitempty"`
}

// FileSink appends the timeline to a JSONL file.
type FileSink struct {
	Dir      string `yaml:"dir"`
	Filename string `yaml:"filename"`
}

// KafkaSink publishes the timeline to a Kafka topic.
type KafkaSink struct {
	Bootstrap string `yaml:"bootstrap"`
	Topic     string `yaml:"topic"`
}

// Default returns the zero-config setup: suffix resolution, built-in
// monitored fields, no sinks.
func Default() Config {
	return Config{DataDir: "data"}
}

// Load reads and validates a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Relationships.Mode {
	case "", "suffix":
	case "mapping":
		if len(c.Relationships.Entries) == 0 {
			return fmt.Errorf("relationships mode %q requires at least one entry", c.Relationships.Mode)
		}
	default:
		return fmt.Errorf("unknown relationships mode %q", c.Relationships.Mode)
	}
	for kind := range c.MonitoredFields {
		if !event.Kind(kind).Valid() {
			return fmt.Errorf("monitored_fields: unknown entity kind %q", kind)
		}
	}
	for _, e := range c.Relationships.Entries {
		if !event.Kind(e.Kind).Valid() {
			return fmt.Errorf("relationships: unknown entity kind %q", e.Kind)
		}
	}
	if c.Publish.Kafka != nil && (c.Publish.Kafka.Bootstrap == "" || c.Publish.Kafka.Topic == "") {
		return fmt.Errorf("publish.kafka requires bootstrap and topic")
	}
	return nil
}

// Resolver builds the configured relation.Resolver.
func (c Config) Resolver() relation.Resolver {
	if c.Relationships.Mode != "mapping" {
		return relation.SuffixResolver{}
	}
	entries := make(map[event.Kind]map[string]relation.JoinKey)
	for _, e := range c.Relationships.Entries {
		kind := event.Kind(e.Kind)
		if entries[kind] == nil {
			entries[kind] = make(map[string]relation.JoinKey)
		}
		entries[kind][e.ID] = relation.JoinKey(e.Key)
	}
	return relation.NewMappingResolver(entries)
}

// Monitored returns the per-kind monitored field overrides in pipeline
// form.
func (c Config) Monitored() map[event.Kind]string {
	if len(c.MonitoredFields) == 0 {
		return nil
	}
	out := make(map[event.Kind]string, len(c.MonitoredFields))
	for k, f := range c.MonitoredFields {
		out[event.Kind(k)] = f
	}
	return out
}
