package serve

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServingConfig is the runtime configuration of a serving process, loadable
// from a YAML file. Batching and Routing are hot-reloadable; Replicas.Count
// is read at startup only.
type ServingConfig struct {
	Batching BatchConfig   `yaml:"batching"`
	Routing  RoutingConfig `yaml:"routing"`
	Replicas ReplicaConfig `yaml:"replicas"`
}

// DefaultServingConfig returns the defaults used when no file is given.
func DefaultServingConfig() ServingConfig {
	return ServingConfig{
		Batching: BatchConfig{
			MaxBatchSize: 10,
			MaxWaitTime:  10 * time.Millisecond,
		},
		Routing: RoutingConfig{
			Policy: PolicyUniform,
			K:      DefaultK,
		},
		Replicas: ReplicaConfig{
			Count: 1,
		},
	}
}

// LoadServingConfig reads a YAML file on top of DefaultServingConfig.
// Unknown keys are rejected so that typos surface as errors.
func LoadServingConfig(path string) (*ServingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading serving config: %w", err)
	}
	return ParseServingConfig(data)
}

// ParseServingConfig decodes and validates a YAML document.
func ParseServingConfig(data []byte) (*ServingConfig, error) {
	cfg := DefaultServingConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parsing serving config: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *ServingConfig) Validate() error {
	if err := c.Batching.Validate(); err != nil {
		return err
	}
	if err := c.Routing.Validate(); err != nil {
		return err
	}
	return c.Replicas.Validate()
}

// EffectiveMaxOngoingRequests returns the configured cap or the one derived
// from the batch size.
func (c *ServingConfig) EffectiveMaxOngoingRequests() int {
	if c.Replicas.MaxOngoingRequests > 0 {
		return c.Replicas.MaxOngoingRequests
	}
	return MaxOngoingRequests(c.Batching.MaxBatchSize)
}
