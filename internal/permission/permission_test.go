package permission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caplock-dev/caplock/internal/capability"
)

func TestMatchResource(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		resource string
		expected bool
	}{
		{
			name:     "exact match",
			pattern:  "/etc/hosts",
			resource: "/etc/hosts",
			expected: true,
		},
		{
			name:     "exact mismatch",
			pattern:  "/etc/hosts",
			resource: "/etc/passwd",
			expected: false,
		},
		{
			name:     "universal wildcard",
			pattern:  "*",
			resource: "anything/at/all",
			expected: true,
		},
		{
			name:     "single level matches one segment",
			pattern:  "/project/*",
			resource: "/project/x",
			expected: true,
		},
		{
			name:     "single level rejects deeper path",
			pattern:  "/project/*",
			resource: "/project/a/b",
			expected: false,
		},
		{
			name:     "single level rejects the prefix itself",
			pattern:  "/project/*",
			resource: "/project",
			expected: false,
		},
		{
			name:     "single level rejects empty segment",
			pattern:  "/project/*",
			resource: "/project/",
			expected: false,
		},
		{
			name:     "recursive matches one level",
			pattern:  "/data/**",
			resource: "/data/file",
			expected: true,
		},
		{
			name:     "recursive matches any depth",
			pattern:  "/data/**",
			resource: "/data/a/b/c",
			expected: true,
		},
		{
			name:     "recursive rejects sibling prefix",
			pattern:  "/data/**",
			resource: "/database/x",
			expected: false,
		},
		{
			name:     "recursive rejects the prefix itself",
			pattern:  "/data/**",
			resource: "/data",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchResource(tt.pattern, tt.resource))
		})
	}
}

func TestPermission_UseLimitExhaustion(t *testing.T) {
	now := time.Now()
	p := New(capability.FileRead, "/tmp/*").WithMaxUses(3)

	for i := 0; i < 3; i++ {
		require.True(t, p.IsValid(now), "use %d", i)
		require.True(t, p.Use(now), "use %d", i)
	}

	// Invalid the instant the counter reaches the limit.
	assert.Equal(t, 3, p.UseCount)
	assert.False(t, p.IsValid(now))
	assert.False(t, p.Use(now))
	assert.Equal(t, 3, p.UseCount, "failed use must not mutate the counter")
}

func TestPermission_ExpiryMonotonicity(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	deadline := base.Add(time.Hour)
	p := New(capability.FileWrite, "/out/**").WithExpiry(deadline)

	assert.True(t, p.IsValid(deadline.Add(-time.Millisecond)))
	assert.False(t, p.IsValid(deadline))
	assert.False(t, p.IsValid(deadline.Add(time.Millisecond)))
}

func TestPermission_Matches(t *testing.T) {
	now := time.Now()
	p := New(capability.FileWrite, "/project/*")

	assert.True(t, p.Matches(capability.FileWrite, "/project/x", now))
	assert.False(t, p.Matches(capability.FileRead, "/project/x", now))
	assert.False(t, p.Matches(capability.FileWrite, "/elsewhere", now))
}

func TestPermission_UnlimitedByDefault(t *testing.T) {
	now := time.Now()
	p := New(capability.EnvAccess, "*")

	for i := 0; i < 100; i++ {
		require.True(t, p.Use(now))
	}
	assert.True(t, p.IsValid(now.Add(1000*time.Hour)))
}
