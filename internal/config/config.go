package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models residentone.yml: the studio's stage catalog, workflow
// orchestration rules, and outbound webhooks. It is stored per-studio in
// the DB and importable from YAML.
type Config struct {
	Studio struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name" json:"name"`
	} `yaml:"studio" json:"studio"`
	Stages struct {
		// Catalog is the ordered list of stage types seeded into every
		// new room.
		Catalog []StageType `yaml:"catalog" json:"catalog"`
	} `yaml:"stages" json:"stages"`
	Workflow struct {
		// AutoStart maps a stage type to the stage type that should be
		// started (within the same room) when a version owned by the
		// first is pushed to the client.
		AutoStart map[string]string `yaml:"auto_start" json:"auto_start"`
	} `yaml:"workflow" json:"workflow"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

type StageType struct {
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description"`
	// Workflow names the version workflow owned by stages of this type;
	// empty means the stage carries no versioned deliverables.
	Workflow string `yaml:"workflow,omitempty" json:"workflow,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Studio.ID == "" {
		return fmt.Errorf("config.studio.id is required")
	}
	if len(c.Stages.Catalog) == 0 {
		return fmt.Errorf("config.stages.catalog is required")
	}
	seen := map[string]bool{}
	for _, st := range c.Stages.Catalog {
		if st.Type == "" {
			return fmt.Errorf("config.stages.catalog contains empty stage type")
		}
		if seen[st.Type] {
			return fmt.Errorf("stage type %s listed twice in catalog", st.Type)
		}
		seen[st.Type] = true
		switch st.Workflow {
		case "", "rendering", "floorplan":
		default:
			return fmt.Errorf("stage type %s has unknown workflow %s", st.Type, st.Workflow)
		}
	}
	for from, to := range c.Workflow.AutoStart {
		if !seen[from] {
			return fmt.Errorf("auto_start references unknown stage type %s", from)
		}
		if !seen[to] {
			return fmt.Errorf("auto_start for %s targets unknown stage type %s", from, to)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// StageWorkflow returns the version workflow configured for a stage type.
func (c *Config) StageWorkflow(stageType string) string {
	for _, st := range c.Stages.Catalog {
		if st.Type == stageType {
			return st.Workflow
		}
	}
	return ""
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "residentone.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with residentone studio config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(studioID string) string {
	return fmt.Sprintf(defaultTemplate, studioID)
}

// Default returns the default Config struct for a studio.
func Default(studioID string) *Config {
	var cfg Config
	cfg.Studio.ID = studioID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, studioID))).Decode(&cfg)
	return &cfg
}

const defaultTemplate = `studio:
  id: %s
  name: Interior Design Studio

stages:
  catalog:
    - type: design
      description: "Concept boards, finishes, and design direction"
    - type: three_d
      description: "3D rendering passes for client review"
      workflow: rendering
    - type: drawings
      description: "Construction drawings and millwork details"
    - type: ffe
      description: "Furniture, fixtures, and equipment sourcing"
    - type: client_approval
      description: "Client-facing approval round"

workflow:
  auto_start:
    three_d: client_approval
`
