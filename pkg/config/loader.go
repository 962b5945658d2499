package config

import (
	"os"
	"strings"

	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML file into cfg after substituting environment
// variables. Fields the file leaves out keep their current values.
func Load(filePath string, cfg interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}
	return Unmarshal(data, cfg)
}

// Unmarshal decodes YAML into cfg after substituting environment variables.
func Unmarshal(data []byte, cfg interface{}) error {
	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to parse YAML")
	}
	return nil
}

// LoadConfig reads a Config from filePath. Defaults are sized from the
// file's max_memory_mb before the rest of the file is applied over them,
// and the result is validated.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}
	return Parse(data)
}

// Parse is LoadConfig for YAML already in memory.
func Parse(data []byte) (*Config, error) {
	var head struct {
		Name        string `yaml:"name"`
		MaxMemoryMB int    `yaml:"max_memory_mb"`
	}
	if err := Unmarshal(data, &head); err != nil {
		return nil, err
	}
	cfg := New(head.Name, head.MaxMemoryMB)
	if err := Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to filePath as YAML.
func Save(filePath string, cfg interface{}) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to marshal YAML")
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil { //nolint:gosec
		return poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to write config file").
			WithDetail("path", filePath)
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
// Unset variables become empty.
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		content = content[:start] + os.Getenv(varName) + content[end+1:]
	}
	return content
}
