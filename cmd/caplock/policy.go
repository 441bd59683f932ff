package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caplock-dev/caplock/internal/policyfile"
)

// policyCmd groups policy file tooling.
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Work with policy files",
}

// policyLintCmd validates policy files without applying them.
var policyLintCmd = &cobra.Command{
	Use:   "lint <policy.yaml> [more files...]",
	Short: "Validate policy files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			doc, err := policyfile.Load(path)
			if err != nil {
				fmt.Printf("%s: %v\n", path, err)
				failed++
				continue
			}
			fmt.Printf("%s: ok (%d trust assignments, %d policies", path, len(doc.Trust), len(doc.Policies))
			if doc.Sandbox != nil {
				fmt.Printf(", sandbox manifest")
			}
			fmt.Println(")")
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d policy files failed validation", failed, len(args))
		}
		return nil
	},
}

func init() {
	policyCmd.AddCommand(policyLintCmd)
	rootCmd.AddCommand(policyCmd)
}
