package prayersw

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the deploy-time worker configuration. The asset
// manifest is baked in per deployed version; changing it requires
// bumping the version so a fresh bucket is precached.
type FileConfig struct {
	Name    string       `yaml:"name"`
	Version string       `yaml:"version"`
	Assets  []string     `yaml:"assets"`
	Routes  RoutesConfig `yaml:"routes"`
	Push    PushConfig   `yaml:"push"`
}

type RoutesConfig struct {
	// Path prefixes the worker leaves completely alone.
	Bypass []string `yaml:"bypass"`
}

type PushConfig struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
	Icon  string `yaml:"icon"`
	Badge string `yaml:"badge"`
}

// LoadConfig reads a worker config from the given YAML file.
func LoadConfig(filename string) (FileConfig, error) {
	var config FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, err
	}
	if config.Version == "" {
		return config, fmt.Errorf("config %s: version is required", filename)
	}
	return config, nil
}

// Apply copies the file config onto a worker Config, leaving fields the
// file does not set untouched.
func (f FileConfig) Apply(config *Config) {
	if f.Name != "" {
		config.Name = f.Name
	}
	if f.Version != "" {
		config.Version = f.Version
	}
	if len(f.Assets) > 0 {
		config.Manifest = f.Assets
	}
	if len(f.Routes.Bypass) > 0 {
		config.BypassPrefixes = f.Routes.Bypass
	}
	if f.Push.Title != "" {
		config.Push.Title = f.Push.Title
	}
	if f.Push.Body != "" {
		config.Push.Body = f.Push.Body
	}
	if f.Push.Icon != "" {
		config.Push.Icon = f.Push.Icon
	}
	if f.Push.Badge != "" {
		config.Push.Badge = f.Push.Badge
	}
}
