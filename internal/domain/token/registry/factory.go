package registry

import (
	"fmt"
)

// Driver identifiers supported by the registry.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// New creates a registry based on the provided configuration.
func New(cfg Config) (Registry, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(cfg), nil
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported registry driver: %s", driver)
	}
}
