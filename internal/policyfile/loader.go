// Package policyfile loads declarative policy documents: trust assignments,
// layered permission policies and an optional sandbox manifest, all from one
// YAML file. Documents are schema-validated before decoding and gated on the
// host version they declare to need.
package policyfile

import (
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/caplock-dev/caplock/internal/capability"
	"github.com/caplock-dev/caplock/internal/permission"
	"github.com/caplock-dev/caplock/internal/sandbox"
	"github.com/caplock-dev/caplock/internal/version"
)

// compiledSchema is built once at init; the schema is a compile-time
// constant, so failure here is a programming error.
var compiledSchema = jsonschema.MustCompileString("policy.schema.json", documentSchema)

// rawDocument mirrors the YAML layout before semantic conversion.
type rawDocument struct {
	Version     int               `yaml:"version"`
	HostVersion string            `yaml:"host_version"`
	Trust       map[string]string `yaml:"trust"`
	Policies    []rawPolicy       `yaml:"policies"`
	Sandbox     *rawSandbox       `yaml:"sandbox"`
}

type rawPolicy struct {
	Name            string   `yaml:"name"`
	MinTrust        string   `yaml:"min_trust"`
	AutoGrant       []string `yaml:"auto_grant"`
	AlwaysDeny      []string `yaml:"always_deny"`
	RequireApproval []string `yaml:"require_approval"`
	When            string   `yaml:"when"`
}

type rawSandbox struct {
	MaxMemory        uint64   `yaml:"max_memory"`
	MaxTableElements uint32   `yaml:"max_table_elements"`
	MaxExecutionTime string   `yaml:"max_execution_time"`
	MaxFuel          uint64   `yaml:"max_fuel"`
	AllowThreads     bool     `yaml:"allow_threads"`
	AllowSIMD        bool     `yaml:"allow_simd"`
	TrustLevel       string   `yaml:"trust_level"`
	AllowedImports   []string `yaml:"allowed_imports"`
	AllowedExports   []string `yaml:"allowed_exports"`
}

// Document is a parsed, semantically validated policy file.
type Document struct {
	Trust    map[string]capability.TrustLevel
	Policies []*permission.Policy
	Sandbox  *sandbox.Config
}

// Load reads and parses a policy document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return doc, nil
}

// Parse validates and decodes a policy document.
func Parse(data []byte) (*Document, error) {
	// Structural validation against the schema first, so decode errors
	// never mask layout mistakes.
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}

	if err := checkHostVersion(raw.HostVersion); err != nil {
		return nil, err
	}

	doc := &Document{Trust: make(map[string]capability.TrustLevel)}

	for context, name := range raw.Trust {
		level, ok := capability.ParseTrustLevel(name)
		if !ok {
			return nil, fmt.Errorf("unknown trust level %q for context %q", name, context)
		}
		doc.Trust[context] = level
	}

	for _, rp := range raw.Policies {
		p, err := buildPolicy(rp)
		if err != nil {
			return nil, err
		}
		doc.Policies = append(doc.Policies, p)
	}

	if raw.Sandbox != nil {
		cfg, err := buildSandboxConfig(*raw.Sandbox)
		if err != nil {
			return nil, err
		}
		doc.Sandbox = cfg
	}

	return doc, nil
}

// Apply installs the document's trust assignments and policies into a
// manager, in document order.
func (d *Document) Apply(m *permission.Manager) {
	for context, level := range d.Trust {
		m.SetTrustLevel(context, level)
	}
	for _, p := range d.Policies {
		m.AddPolicy(p)
	}
}

func buildPolicy(raw rawPolicy) (*permission.Policy, error) {
	minTrust := capability.Untrusted
	if raw.MinTrust != "" {
		level, ok := capability.ParseTrustLevel(raw.MinTrust)
		if !ok {
			return nil, fmt.Errorf("policy %q: unknown trust level %q", raw.Name, raw.MinTrust)
		}
		minTrust = level
	}

	p := permission.NewPolicy(raw.Name, minTrust)

	for _, set := range []struct {
		names []string
		add   func(...capability.Capability) *permission.Policy
		field string
	}{
		{raw.AutoGrant, p.WithAutoGrant, "auto_grant"},
		{raw.AlwaysDeny, p.WithAlwaysDeny, "always_deny"},
		{raw.RequireApproval, p.WithRequireApproval, "require_approval"},
	} {
		for _, name := range set.names {
			c, ok := capability.Parse(name)
			if !ok {
				return nil, fmt.Errorf("policy %q: unknown capability %q in %s", raw.Name, name, set.field)
			}
			set.add(c)
		}
	}

	if raw.When != "" {
		if _, err := p.WithCondition(raw.When); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func buildSandboxConfig(raw rawSandbox) (*sandbox.Config, error) {
	cfg := sandbox.DefaultConfig()

	if raw.MaxMemory > 0 {
		cfg.MaxMemory = raw.MaxMemory
	}
	if raw.MaxTableElements > 0 {
		cfg.MaxTableElements = raw.MaxTableElements
	}
	if raw.MaxFuel > 0 {
		cfg.MaxFuel = raw.MaxFuel
	}
	if raw.MaxExecutionTime != "" {
		d, err := time.ParseDuration(raw.MaxExecutionTime)
		if err != nil {
			return nil, fmt.Errorf("invalid max_execution_time: %w", err)
		}
		cfg.MaxExecutionTime = d
	}

	cfg.AllowThreads = raw.AllowThreads
	cfg.AllowSIMD = raw.AllowSIMD
	cfg.AllowedImports = raw.AllowedImports
	cfg.AllowedExports = raw.AllowedExports

	if raw.TrustLevel != "" {
		level, ok := capability.ParseTrustLevel(raw.TrustLevel)
		if !ok {
			return nil, fmt.Errorf("sandbox: unknown trust level %q", raw.TrustLevel)
		}
		cfg.TrustLevel = level
	}

	return &cfg, nil
}

// checkHostVersion enforces the document's declared host constraint against
// the running build. Dev builds skip the gate: their version string is not
// a semver.
func checkHostVersion(constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid host_version constraint %q: %w", constraint, err)
	}
	current, err := semver.NewVersion(version.Get().Version)
	if err != nil {
		return nil
	}
	if !c.Check(current) {
		return fmt.Errorf("policy requires host version %q, running %s", constraint, current)
	}
	return nil
}
