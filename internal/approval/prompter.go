// Package approval is the human-in-the-loop surface over the permission
// manager's request queue: it walks pending requests and records the
// operator's approve/deny decisions.
package approval

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/caplock-dev/caplock/internal/permission"
)

// Decision is what the operator chose for one request.
type Decision int

const (
	// DecisionSkip leaves the request pending.
	DecisionSkip Decision = iota
	// DecisionApprove grants without expiry.
	DecisionApprove
	// DecisionApproveHour grants for one hour.
	DecisionApproveHour
	// DecisionApproveDay grants for 24 hours.
	DecisionApproveDay
	// DecisionDeny refuses the request.
	DecisionDeny
)

// Prompter solicits decisions on pending requests from a terminal.
type Prompter struct{}

// NewPrompter creates a Prompter.
func NewPrompter() *Prompter {
	return &Prompter{}
}

// IsInteractive checks if we're running in an interactive terminal.
func (p *Prompter) IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// PromptForRequest asks the operator to resolve one request.
func (p *Prompter) PromptForRequest(r *permission.Request) (Decision, error) {
	var choice Decision
	err := huh.NewSelect[Decision]().
		Title(describeRequest(r)).
		Description(r.Reason).
		Options(
			huh.NewOption("Approve", DecisionApprove),
			huh.NewOption("Approve for 1 hour", DecisionApproveHour),
			huh.NewOption("Approve for 24 hours", DecisionApproveDay),
			huh.NewOption("Deny", DecisionDeny),
			huh.NewOption("Skip (decide later)", DecisionSkip),
		).
		Value(&choice).
		Run()
	if err != nil {
		return DecisionSkip, err
	}
	return choice, nil
}

// ReviewPending walks every pending request and applies the operator's
// decisions to the manager. It returns how many requests were resolved.
func (p *Prompter) ReviewPending(m *permission.Manager) (int, error) {
	pending := m.PendingRequests()
	if len(pending) == 0 {
		return 0, nil
	}

	if !p.IsInteractive() {
		return 0, p.formatNonInteractiveError(pending)
	}

	resolved := 0
	for _, r := range pending {
		decision, err := p.PromptForRequest(r)
		if err != nil {
			return resolved, err
		}

		switch decision {
		case DecisionApprove:
			m.ApproveRequest(r.ID, 0)
			resolved++
		case DecisionApproveHour:
			m.ApproveRequest(r.ID, time.Hour)
			resolved++
		case DecisionApproveDay:
			m.ApproveRequest(r.ID, 24*time.Hour)
			resolved++
		case DecisionDeny:
			m.DenyRequest(r.ID)
			resolved++
		case DecisionSkip:
			// Leave pending.
		}
	}
	return resolved, nil
}

// describeRequest renders one request for the prompt title.
func describeRequest(r *permission.Request) string {
	return fmt.Sprintf("%s requests %s on %s", r.Context, r.Capability, r.Resource)
}

// formatNonInteractiveError creates a helpful error message for
// non-interactive mode.
func (p *Prompter) formatNonInteractiveError(pending []*permission.Request) error {
	var msg strings.Builder
	msg.WriteString("Pending permission requests need review (running in non-interactive mode)\n\n")
	msg.WriteString("Pending requests:\n")

	for _, r := range pending {
		msg.WriteString(fmt.Sprintf("  - [%s] %s\n", r.ID, describeRequest(r)))
	}

	msg.WriteString("\nRun 'caplock approvals' from an interactive terminal to resolve them\n")

	return fmt.Errorf("%s", msg.String())
}
