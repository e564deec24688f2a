// Package config loads, validates, and caches the pipeline configuration.
// The model catalog comes from a YAML file; runtime settings (addresses,
// log level) come from the environment and override file values.
package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/modelmux/modelmux/pkg/augment"
	"github.com/modelmux/modelmux/pkg/model"
)

// Runtime holds environment-supplied settings.
type Runtime struct {
	Addr       string `envconfig:"MODELMUX_ADDR" default:":8080"`
	ConfigPath string `envconfig:"MODELMUX_CONFIG" default:"modelmux.yaml"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	Env        string `envconfig:"APP_ENV" default:"development"`
}

// LoadRuntime reads Runtime from the environment.
func LoadRuntime() (Runtime, error) {
	var rt Runtime
	if err := envconfig.Process("", &rt); err != nil {
		return Runtime{}, fmt.Errorf("config: read environment: %w", err)
	}
	return rt, nil
}

// ModelEntry is one catalog row in the YAML file.
type ModelEntry struct {
	ID            string `yaml:"id"`
	Provider      string `yaml:"provider"` // cloud | daemon | ondevice | rules
	MaxTokens     int    `yaml:"max_tokens"`
	CredentialEnv string `yaml:"credential_env"`
	Vision        bool   `yaml:"vision"`
	Notice        string `yaml:"notice"`
}

// File is the full YAML document.
type File struct {
	DefaultModel string       `yaml:"default_model"`
	Models       []ModelEntry `yaml:"models"`

	Cloud struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"cloud"`

	Daemon struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"daemon"`

	Search struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"search"`

	Images struct {
		Enabled bool   `yaml:"enabled"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"images"`

	Integrations []augment.Integration `yaml:"integrations"`

	Telemetry struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
		Insecure bool   `yaml:"insecure"`
	} `yaml:"telemetry"`
}

// Normalize trims whitespace and fills defaults that depend on other
// fields.
func (f *File) Normalize() {
	f.DefaultModel = strings.TrimSpace(f.DefaultModel)
	for i := range f.Models {
		f.Models[i].ID = strings.TrimSpace(f.Models[i].ID)
		f.Models[i].Provider = strings.ToLower(strings.TrimSpace(f.Models[i].Provider))
	}
	if f.Images.Enabled && f.Images.BaseURL == "" {
		f.Images.BaseURL = "https://image.pollinations.ai/prompt"
	}
}

// Validate rejects configurations the registry would refuse anyway, so the
// operator sees the problem at load time with a file-shaped message.
func (f *File) Validate() error {
	if len(f.Models) == 0 {
		return fmt.Errorf("config: at least one model is required")
	}
	seen := map[string]bool{}
	defaultOK := false
	for i, m := range f.Models {
		if m.ID == "" {
			return fmt.Errorf("config: models[%d]: id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("config: duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
		if _, err := kindOf(m.Provider); err != nil {
			return fmt.Errorf("config: models[%d] (%s): %w", i, m.ID, err)
		}
		if m.ID == f.DefaultModel && m.Provider == "rules" {
			defaultOK = true
		}
	}
	if f.DefaultModel == "" {
		return fmt.Errorf("config: default_model is required")
	}
	if !defaultOK {
		return fmt.Errorf("config: default_model %q must exist and use provider \"rules\"", f.DefaultModel)
	}
	return nil
}

// Descriptors converts the catalog to registry descriptors.
func (f *File) Descriptors() ([]model.Descriptor, error) {
	out := make([]model.Descriptor, 0, len(f.Models))
	for _, m := range f.Models {
		kind, err := kindOf(m.Provider)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Descriptor{
			ID:                 m.ID,
			Kind:               kind,
			MaxTokens:          m.MaxTokens,
			RequiresCredential: m.CredentialEnv,
			SupportsVision:     m.Vision,
			StaticNotice:       m.Notice,
		})
	}
	return out, nil
}

func kindOf(provider string) (model.Kind, error) {
	switch provider {
	case "cloud":
		return model.KindCloudChat, nil
	case "daemon":
		return model.KindLocalDaemon, nil
	case "ondevice":
		return model.KindOnDevice, nil
	case "rules":
		return model.KindRuleBased, nil
	default:
		return 0, fmt.Errorf("unknown provider %q (want cloud, daemon, ondevice, or rules)", provider)
	}
}
