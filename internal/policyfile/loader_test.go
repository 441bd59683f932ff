package policyfile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caplock-dev/caplock/internal/capability"
	"github.com/caplock-dev/caplock/internal/permission"
)

const fullDocument = `
version: 1
trust:
  agent-1: basic
  pipeline: standard
policies:
  - name: no-syscalls
    always_deny: [system_call]
  - name: log-readers
    min_trust: sandboxed
    auto_grant: [file_read]
    when: 'resource startsWith "/var/log/"'
  - name: writes-need-review
    min_trust: basic
    require_approval: [file_write]
sandbox:
  max_memory: 33554432
  max_fuel: 500000
  max_execution_time: 2s
  trust_level: sandboxed
  allowed_imports: ["env.*", "wasi_snapshot_preview1.clock_time_get"]
  allowed_exports: ["run"]
`

func TestParse_FullDocument(t *testing.T) {
	doc, err := Parse([]byte(fullDocument))
	require.NoError(t, err)

	assert.Equal(t, capability.Basic, doc.Trust["agent-1"])
	assert.Equal(t, capability.Standard, doc.Trust["pipeline"])

	require.Len(t, doc.Policies, 3)
	assert.Equal(t, "no-syscalls", doc.Policies[0].Name)
	assert.True(t, doc.Policies[0].AlwaysDeny.Has(capability.SystemCall))
	assert.True(t, doc.Policies[1].AutoGrant.Has(capability.FileRead))
	assert.Equal(t, capability.Sandboxed, doc.Policies[1].MinTrust)
	assert.True(t, doc.Policies[2].RequireApproval.Has(capability.FileWrite))

	require.NotNil(t, doc.Sandbox)
	assert.Equal(t, uint64(33554432), doc.Sandbox.MaxMemory)
	assert.Equal(t, uint64(500000), doc.Sandbox.MaxFuel)
	assert.Equal(t, 2*time.Second, doc.Sandbox.MaxExecutionTime)
	assert.Equal(t, capability.Sandboxed, doc.Sandbox.TrustLevel)
	assert.Contains(t, doc.Sandbox.AllowedImports, "env.*")
}

func TestParse_AppliedDocumentEnforces(t *testing.T) {
	doc, err := Parse([]byte(fullDocument))
	require.NoError(t, err)

	m := permission.NewManager(permission.NewStore())
	doc.Apply(m)

	// Veto policy beats the trust tier.
	assert.Error(t, m.Check("pipeline", capability.SystemCall, "ioctl"))

	// Conditional auto-grant holds only inside the condition.
	assert.NoError(t, m.Check("agent-1", capability.FileRead, "/var/log/app.log"))

	// Basic trust grants FileRead implicitly anyway; a sandboxed-only
	// context depends on the condition.
	m.SetTrustLevel("probe", capability.Sandboxed)
	assert.NoError(t, m.Check("probe", capability.FileRead, "/var/log/app.log"))
	assert.Error(t, m.Check("probe", capability.FileRead, "/etc/shadow"))

	assert.True(t, m.RequiresApproval("agent-1", capability.FileWrite))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "missing version",
			doc:  `trust: {a: basic}`,
		},
		{
			name: "wrong version",
			doc:  `version: 2`,
		},
		{
			name: "unknown top-level key",
			doc: `
version: 1
grants: []
`,
		},
		{
			name: "unknown trust level",
			doc: `
version: 1
trust:
  agent-1: superuser
`,
		},
		{
			name: "unknown capability",
			doc: `
version: 1
policies:
  - name: p
    auto_grant: [teleport]
`,
		},
		{
			name: "policy without name",
			doc: `
version: 1
policies:
  - auto_grant: [file_read]
`,
		},
		{
			name: "invalid condition",
			doc: `
version: 1
policies:
  - name: p
    when: "resource +"
`,
		},
		{
			name: "invalid duration",
			doc: `
version: 1
sandbox:
  max_execution_time: fast
`,
		},
		{
			name: "invalid host constraint",
			doc: `
version: 1
host_version: "not a constraint"
`,
		},
		{
			name: "not yaml",
			doc:  `{{{{`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_HostVersionSkippedForDevBuilds(t *testing.T) {
	// The default build version "dev" is not a semver, so the gate is
	// informational only.
	doc, err := Parse([]byte(`
version: 1
host_version: ">= 99.0.0"
`))
	require.NoError(t, err)
	assert.Empty(t, doc.Policies)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/no/such/policy.yaml")
	assert.Error(t, err)
}
