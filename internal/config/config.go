package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"practiceflow/internal/radar"
)

// Config models practiceflow.yml.
type Config struct {
	Workspace struct {
		ID   string `yaml:"id" json:"id"`
		Type string `yaml:"type" json:"type"`
	} `yaml:"workspace" json:"workspace"`
	Radar RadarConfig `yaml:"radar" json:"radar"`
	RBAC  struct {
		Roles map[string]RBACRole `yaml:"roles" json:"roles"`
	} `yaml:"rbac" json:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// RadarConfig exposes the tuned scoring constants. The defaults match
// the shipped product numbers; change them only with a migration plan
// for in-flight rankings.
type RadarConfig struct {
	KeywordRules     []radar.KeywordRule `yaml:"keyword_rules" json:"keyword_rules"`
	ObjectiveWeights map[string]int      `yaml:"objective_weights" json:"objective_weights"`
	Decay            struct {
		Overdue             int `yaml:"overdue" json:"overdue"`
		Imminent            int `yaml:"imminent" json:"imminent"`
		Soon                int `yaml:"soon" json:"soon"`
		ImminentWindowHours int `yaml:"imminent_window_hours" json:"imminent_window_hours"`
		SoonWindowHours     int `yaml:"soon_window_hours" json:"soon_window_hours"`
	} `yaml:"decay" json:"decay"`
	DriftMultiplier     int `yaml:"drift_multiplier" json:"drift_multiplier"`
	ReliefWindowMinutes int `yaml:"relief_window_minutes" json:"relief_window_minutes"`
	ReliefAmount        int `yaml:"relief_amount" json:"relief_amount"`
}

type RBACRole struct {
	Description string   `yaml:"description" json:"description"`
	Permissions []string `yaml:"permissions" json:"permissions"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

var validClasses = map[string]bool{
	"critical": true, "operational": true, "stability": true, "maintenance": true, "personal": true,
}

var validWorkspaceTypes = map[string]bool{
	"PRACTICE": true, "COACHING": true, "HOME": true,
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with pf workspace config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.ID == "" {
		return fmt.Errorf("config.workspace.id is required")
	}
	if !validWorkspaceTypes[c.Workspace.Type] {
		return fmt.Errorf("config.workspace.type must be one of PRACTICE, COACHING, HOME")
	}
	for _, rule := range c.Radar.KeywordRules {
		if !validClasses[string(rule.Class)] {
			return fmt.Errorf("radar keyword rule references unknown class %s", rule.Class)
		}
		for _, kw := range rule.Keywords {
			if kw == "" {
				return fmt.Errorf("radar keyword rule for %s has empty keyword", rule.Class)
			}
		}
	}
	for cls := range c.Radar.ObjectiveWeights {
		if !validClasses[cls] {
			return fmt.Errorf("radar objective weight references unknown class %s", cls)
		}
	}
	if c.Radar.DriftMultiplier < 0 {
		return fmt.Errorf("radar.drift_multiplier must be >= 0")
	}
	if c.Radar.ReliefWindowMinutes < 0 {
		return fmt.Errorf("radar.relief_window_minutes must be >= 0")
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["owner"]; !ok {
			return fmt.Errorf("config.rbac.roles must include owner")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d missing url", i)
		}
	}
	return nil
}

// Tuning converts the radar section into engine tuning, falling back to
// the built-in defaults for any zero-valued field.
func (c *Config) Tuning() radar.Tuning {
	t := radar.DefaultTuning()
	r := c.Radar
	if len(r.KeywordRules) > 0 {
		t.Rules = r.KeywordRules
	}
	if len(r.ObjectiveWeights) > 0 {
		weights := make(map[radar.Class]int, len(r.ObjectiveWeights))
		for cls, w := range r.ObjectiveWeights {
			weights[radar.Class(cls)] = w
		}
		t.Weights = weights
	}
	if r.Decay.Overdue != 0 {
		t.DecayOverdue = r.Decay.Overdue
	}
	if r.Decay.Imminent != 0 {
		t.DecayImminent = r.Decay.Imminent
	}
	if r.Decay.Soon != 0 {
		t.DecaySoon = r.Decay.Soon
	}
	if r.Decay.ImminentWindowHours != 0 {
		t.ImminentWindow = time.Duration(r.Decay.ImminentWindowHours) * time.Hour
	}
	if r.Decay.SoonWindowHours != 0 {
		t.SoonWindow = time.Duration(r.Decay.SoonWindowHours) * time.Hour
	}
	if r.DriftMultiplier != 0 {
		t.DriftMultiplier = r.DriftMultiplier
	}
	if r.ReliefWindowMinutes != 0 {
		t.ReliefWindow = time.Duration(r.ReliefWindowMinutes) * time.Minute
	}
	if r.ReliefAmount != 0 {
		t.ReliefAmount = r.ReliefAmount
	}
	return t
}

// Path returns the config file path for a workspace directory.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "practiceflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(workspaceID string) string {
	return fmt.Sprintf(defaultTemplate, workspaceID)
}

// Default returns the default Config struct for a workspace.
func Default(workspaceID string) *Config {
	var cfg Config
	cfg.Workspace.ID = workspaceID
	cfg.Workspace.Type = "PRACTICE"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, workspaceID))).Decode(&cfg)
	return &cfg
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

const defaultTemplate = `workspace:
  id: %s
  type: PRACTICE

radar:
  keyword_rules:
    - class: critical
      keywords: [license, credential, compliance, payroll, insurance, blocked]
    - class: operational
      keywords: [client, referral, call back, intake, schedule, billing, contact, appointment, new referral]
    - class: stability
      keywords: [note, documentation, paperwork, review, acknowledged]
    - class: maintenance
      keywords: [cleanup, organize, update, template]
    - class: personal
      keywords: [home, family, personal, mom, kids]
  objective_weights:
    critical: 100
    operational: 75
    stability: 50
    maintenance: 30
    personal: 20
  decay:
    overdue: 25
    imminent: 20
    soon: 10
    imminent_window_hours: 24
    soon_window_hours: 72
  drift_multiplier: 3
  relief_window_minutes: 30
  relief_amount: -15

rbac:
  roles:
    owner:
      description: "Practice owner"
      permissions:
        - workspace.read
        - workspace.update
        - referral.create
        - referral.read
        - referral.update
        - referral.assign
        - staff.manage
        - stub.manage
        - announcement.create
        - radar.view
    therapist:
      description: "Licensed clinician"
      permissions:
        - workspace.read
        - referral.read
        - referral.update
        - stub.manage
        - radar.view
    intern:
      description: "Supervised intern"
      permissions:
        - workspace.read
        - referral.read
        - radar.view
`
