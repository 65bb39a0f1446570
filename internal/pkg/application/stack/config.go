package stack

import (
	"io"

	"github.com/diwise/entity-store/pkg/store"
	yaml "gopkg.in/yaml.v2"
)

type PathConfig struct {
	Name       string `yaml:"name"`
	TargetType string `yaml:"targetType"`
}

type LRUConfig struct {
	Capacity int `yaml:"capacity"`
}

type RemoteConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Tenant         string `yaml:"tenant"`
	TrustFiltering bool   `yaml:"trustFiltering"`
}

type DurableConfig struct {
	Enabled bool `yaml:"enabled"`
}

type RecoveryConfig struct {
	Enabled bool `yaml:"enabled"`
}

type StoreConfig struct {
	EntityType string         `yaml:"entityType"`
	Paths      []PathConfig   `yaml:"paths"`
	Source     string         `yaml:"source"`
	LRU        LRUConfig      `yaml:"lru"`
	Remote     RemoteConfig   `yaml:"remote"`
	Durable    DurableConfig  `yaml:"durable"`
	Recovery   RecoveryConfig `yaml:"recovery"`
}

// ReadContext maps the configured data source policy and trust flag
// to the context reads are issued with.
func (c StoreConfig) ReadContext() store.ReadContext {
	rc := store.ReadContext{TrustRemoteFiltering: c.Remote.TrustFiltering}

	switch c.Source {
	case "remote":
		rc.Source = store.SourceRemote
	case "remote-then-local":
		rc.Source = store.SourceRemoteThenLocal
	case "remote-or-local":
		rc.Source = store.SourceRemoteOrLocal
	default:
		rc.Source = store.SourceLocal
	}

	return rc
}

type Config struct {
	Stores []StoreConfig `yaml:"stores"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {

	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(buf, &cfg)

	return cfg, err
}
