package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrelay/schema"
)

// Config is a workflow definition: one backend, a set of agents and the
// entry agent.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Runner  RunnerConfig  `yaml:"runner"`
	Entry   string        `yaml:"entry"`
	Resume  string        `yaml:"resume,omitempty"`
	Agents  []AgentConfig `yaml:"agents"`
}

// BackendConfig selects and configures the model backend. It is read once
// and passed to NewBackend; nothing reads the environment during a run.
type BackendConfig struct {
	Provider    string           `yaml:"provider"` // openai, anthropic, bedrock, gemini or mock
	Model       string           `yaml:"model"`
	Timeout     time.Duration    `yaml:"timeout"`
	APIKeyEnv   string           `yaml:"api_key_env"`
	BaseURL     string           `yaml:"base_url"`
	Region      string           `yaml:"region"`
	Temperature *float64         `yaml:"temperature"`
	MaxTokens   int              `yaml:"max_tokens"`
	Retry       *RetryConfig     `yaml:"retry"`
	RateLimit   *RateLimitConfig `yaml:"rate_limit"`
}

// RetryConfig enables retries of retryable backend errors.
type RetryConfig struct {
	MaxTries        uint          `yaml:"max_tries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time"`
}

// RateLimitConfig throttles backend calls with a token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// RunnerConfig holds runner-wide limits.
type RunnerConfig struct {
	CallTimeout   time.Duration `yaml:"call_timeout"`
	MaxModelCalls int           `yaml:"max_model_calls"`
}

// AgentConfig declares one agent.
type AgentConfig struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Model        string            `yaml:"model"`
	Instructions string            `yaml:"instructions"`
	Output       *OutputConfig     `yaml:"output"`
	Handoffs     []string          `yaml:"handoffs"`
	Guardrails   []GuardrailConfig `yaml:"guardrails"`
}

// OutputConfig declares a structured output schema.
type OutputConfig struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Fields      []FieldConfig `yaml:"fields"`
}

// FieldConfig declares one schema field.
type FieldConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Items       string `yaml:"items"`
	Description string `yaml:"description"`
	Optional    bool   `yaml:"optional"`
	MinItems    int    `yaml:"min_items"`
	MaxItems    int    `yaml:"max_items"`
}

// GuardrailConfig declares one guardrail. Exactly one kind must be set:
// an agent guardrail (agent plus trip_when, trip_unless or
// trip_on_questions), max_length or block_keywords.
type GuardrailConfig struct {
	Name            string         `yaml:"name"`
	Agent           string         `yaml:"agent"`
	TripWhen        *TripCondition `yaml:"trip_when"`
	TripUnless      *TripCondition `yaml:"trip_unless"`
	TripOnQuestions bool           `yaml:"trip_on_questions"`
	MaxLength       int            `yaml:"max_length"`
	BlockKeywords   []string       `yaml:"block_keywords"`
}

// TripCondition compares one structured output field of a classifier.
type TripCondition struct {
	Field  string `yaml:"field"`
	Equals any    `yaml:"equals"`
}

// Load reads and validates a workflow file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a workflow definition.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.Provider == "" {
		c.Backend.Provider = ProviderOpenAI
	}

	if c.Entry == "" && len(c.Agents) > 0 {
		c.Entry = c.Agents[0].Name
	}
}

// Validate checks names and references without constructing anything.
func (c *Config) Validate() error {
	if !slices.Contains(Providers, c.Backend.Provider) {
		return fmt.Errorf("unknown backend provider %q", c.Backend.Provider)
	}

	if c.Runner.MaxModelCalls < 0 {
		return fmt.Errorf("runner max_model_calls must not be negative")
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("config must define at least one agent")
	}

	names := make(map[string]bool, len(c.Agents))

	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent must have a name")
		}

		if names[a.Name] {
			return fmt.Errorf("duplicate agent %q", a.Name)
		}

		names[a.Name] = true
	}

	if !names[c.Entry] {
		return fmt.Errorf("entry agent %q not found in agents", c.Entry)
	}

	if c.Resume != "" && !names[c.Resume] {
		return fmt.Errorf("resume agent %q not found in agents", c.Resume)
	}

	for _, a := range c.Agents {
		if err := a.validate(names); err != nil {
			return fmt.Errorf("agent %q: %w", a.Name, err)
		}
	}

	return nil
}

func (a AgentConfig) validate(names map[string]bool) error {
	seen := map[string]bool{}

	for _, h := range a.Handoffs {
		if !names[h] {
			return fmt.Errorf("handoff target %q not found in agents", h)
		}

		if seen[h] {
			return fmt.Errorf("duplicate handoff target %q", h)
		}

		seen[h] = true
	}

	if a.Output != nil {
		if _, err := a.Output.Schema(a.Name); err != nil {
			return err
		}
	}

	for i, g := range a.Guardrails {
		if err := g.validate(names); err != nil {
			return fmt.Errorf("guardrail %d: %w", i, err)
		}
	}

	return nil
}

func (g GuardrailConfig) validate(names map[string]bool) error {
	kinds := 0

	if g.Agent != "" {
		kinds++

		if !names[g.Agent] {
			return fmt.Errorf("guardrail agent %q not found in agents", g.Agent)
		}

		conditions := 0
		for _, set := range []bool{g.TripWhen != nil, g.TripUnless != nil, g.TripOnQuestions} {
			if set {
				conditions++
			}
		}

		if conditions != 1 {
			return fmt.Errorf("agent guardrail needs exactly one of trip_when, trip_unless, trip_on_questions")
		}
	}

	if g.MaxLength > 0 {
		kinds++
	}

	if len(g.BlockKeywords) > 0 {
		kinds++
	}

	if kinds != 1 {
		return fmt.Errorf("guardrail must set exactly one of agent, max_length, block_keywords")
	}

	return nil
}

// Schema converts the output declaration into a schema. The schema name
// defaults to the agent name.
func (o *OutputConfig) Schema(agentName string) (*schema.Schema, error) {
	name := o.Name
	if name == "" {
		name = agentName
	}

	fields := make([]schema.Field, 0, len(o.Fields))

	for _, fc := range o.Fields {
		f, err := fc.field()
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", name, err)
		}

		fields = append(fields, f)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("output %s: at least one field is required", name)
	}

	return schema.New(name, fields...).WithDescription(o.Description), nil
}

var fieldTypes = []schema.Type{
	schema.TypeString, schema.TypeInteger, schema.TypeNumber,
	schema.TypeBoolean, schema.TypeArray, schema.TypeObject,
}

func (fc FieldConfig) field() (schema.Field, error) {
	if fc.Name == "" {
		return schema.Field{}, fmt.Errorf("field must have a name")
	}

	t := schema.Type(fc.Type)
	if !slices.Contains(fieldTypes, t) {
		return schema.Field{}, fmt.Errorf("field %s: unknown type %q", fc.Name, fc.Type)
	}

	if fc.Items != "" && !slices.Contains(fieldTypes, schema.Type(fc.Items)) {
		return schema.Field{}, fmt.Errorf("field %s: unknown items type %q", fc.Name, fc.Items)
	}

	if t != schema.TypeArray && (fc.Items != "" || fc.MinItems != 0 || fc.MaxItems != 0) {
		return schema.Field{}, fmt.Errorf("field %s: items and cardinality apply to arrays only", fc.Name)
	}

	if fc.MinItems < 0 || fc.MaxItems < 0 || (fc.MaxItems > 0 && fc.MinItems > fc.MaxItems) {
		return schema.Field{}, fmt.Errorf("field %s: invalid cardinality %d..%d", fc.Name, fc.MinItems, fc.MaxItems)
	}

	return schema.Field{
		Name:        fc.Name,
		Type:        t,
		Items:       schema.Type(fc.Items),
		Required:    !fc.Optional,
		MinItems:    fc.MinItems,
		MaxItems:    fc.MaxItems,
		Description: fc.Description,
	}, nil
}
