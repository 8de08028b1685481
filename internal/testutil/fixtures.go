package testutil

import (
	"embed"
	"encoding/json"
	"path"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/firefly-engineering/netbsd-imager/internal/config"
)

//go:embed fixtures/*
var fixturesFS embed.FS

// LoadFixture loads a fixture file by name.
func LoadFixture(name string) ([]byte, error) {
	return fixturesFS.ReadFile("fixtures/" + name)
}

// LoadConfigFixture decodes a config fixture on top of the defaults
// without validating it, so invalid fixtures can be loaded too.
func LoadConfigFixture(name string) (*config.Config, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	switch path.Ext(name) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		_, err = toml.Decode(string(data), cfg)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStateFixture loads a build state fixture.
func LoadStateFixture(name string) (*config.BuildState, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	var state config.BuildState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ValidConfig returns the valid TOML config fixture.
func ValidConfig() (*config.Config, error) {
	return LoadConfigFixture("valid_config.toml")
}

// ValidYAMLConfig returns the valid YAML config fixture. It describes the
// same build as ValidConfig.
func ValidYAMLConfig() (*config.Config, error) {
	return LoadConfigFixture("valid_config.yaml")
}

// InvalidConfig returns the invalid config fixture.
func InvalidConfig() (*config.Config, error) {
	return LoadConfigFixture("invalid_config.toml")
}

// PartialBuildState returns a state fixture with two completed batches.
func PartialBuildState() (*config.BuildState, error) {
	return LoadStateFixture("build_state.json")
}
