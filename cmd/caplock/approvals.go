package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/caplock-dev/caplock/internal/approval"
	"github.com/caplock-dev/caplock/internal/capability"
	"github.com/caplock-dev/caplock/internal/permission"
	"github.com/caplock-dev/caplock/internal/policyfile"
)

var (
	approvalsPolicyPath   string
	approvalsRequestsPath string
)

// approvalsCmd reviews a queue of permission requests interactively. The
// queue file is produced by the dispatch layer when a denied caller asks
// for escalation.
var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Review pending permission requests",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runApprovals()
	},
}

func init() {
	approvalsCmd.Flags().StringVar(&approvalsPolicyPath, "policy", "", "policy file with trust assignments")
	approvalsCmd.Flags().StringVar(&approvalsRequestsPath, "requests", "requests.yaml", "queued request file")
	rootCmd.AddCommand(approvalsCmd)
}

// queuedRequest is one entry of the request queue file.
type queuedRequest struct {
	Context    string `yaml:"context"`
	Capability string `yaml:"capability"`
	Resource   string `yaml:"resource"`
	Reason     string `yaml:"reason"`
}

func runApprovals() error {
	store := permission.NewStore()
	manager := permission.NewManager(store)

	if approvalsPolicyPath != "" {
		doc, err := policyfile.Load(approvalsPolicyPath)
		if err != nil {
			return err
		}
		doc.Apply(manager)
	}

	data, err := os.ReadFile(approvalsRequestsPath)
	if err != nil {
		return fmt.Errorf("failed to read request queue: %w", err)
	}

	var queued []queuedRequest
	if err := yaml.Unmarshal(data, &queued); err != nil {
		return fmt.Errorf("failed to parse request queue: %w", err)
	}

	for _, q := range queued {
		cap, ok := capability.Parse(q.Capability)
		if !ok {
			return fmt.Errorf("unknown capability %q in request queue", q.Capability)
		}
		manager.Request(q.Context, cap, q.Resource, q.Reason)
	}

	prompter := approval.NewPrompter()
	resolved, err := prompter.ReviewPending(manager)
	if err != nil {
		return err
	}

	fmt.Printf("%d of %d requests resolved\n", resolved, len(queued))
	seen := make(map[string]bool)
	for _, q := range queued {
		if seen[q.Context] {
			continue
		}
		seen[q.Context] = true
		for _, p := range manager.ListPermissions(q.Context) {
			fmt.Printf("granted: %s may %s on %s", q.Context, p.Capability, p.Resource)
			if p.ExpiresAt != nil {
				fmt.Printf(" until %s", p.ExpiresAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Println()
		}
	}
	return nil
}
