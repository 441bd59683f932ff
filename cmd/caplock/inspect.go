package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/caplock-dev/caplock/internal/policyfile"
	"github.com/caplock-dev/caplock/internal/sandbox"
	"github.com/caplock-dev/caplock/internal/wasm"
)

var inspectPolicyPath string

// inspectCmd validates modules against a sandbox manifest without running
// them: header pre-check, full compile, and an import/export allow-list
// dry run.
var inspectCmd = &cobra.Command{
	Use:   "inspect <module.wasm> [more modules...]",
	Short: "Validate WASM modules against a sandbox manifest",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd.Context(), args)
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectPolicyPath, "policy", "", "policy file with a sandbox manifest (default: built-in limits)")
	rootCmd.AddCommand(inspectCmd)
}

// moduleReport is the outcome of inspecting one module.
type moduleReport struct {
	path    string
	result  *sandbox.ValidationResult
	info    *wasm.ModuleInfo
	gateErr error
}

func runInspect(ctx context.Context, paths []string) error {
	cfg := sandbox.DefaultConfig()
	if inspectPolicyPath != "" {
		doc, err := policyfile.Load(inspectPolicyPath)
		if err != nil {
			return err
		}
		if doc.Sandbox == nil {
			return fmt.Errorf("policy file %s has no sandbox manifest", inspectPolicyPath)
		}
		cfg = *doc.Sandbox
	}

	inspector := wasm.NewInspector(ctx)
	defer inspector.Close(ctx)

	var mu sync.Mutex
	var reports []moduleReport

	g, ctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		g.Go(func() error {
			module, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read module %s: %w", path, err)
			}

			// Each module gets a fresh sandbox: violation logs must not
			// bleed between modules.
			sb := sandbox.NewSandbox(cfg)

			report := moduleReport{path: path}
			report.result, err = sb.ValidateModule(module)
			if err != nil {
				report.gateErr = err
			} else {
				report.info, err = inspector.Inspect(ctx, module)
				if err != nil {
					report.gateErr = err
				} else {
					report.gateErr = wasm.RegisterModuleImports(sb, report.info)
				}
			}

			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].path < reports[j].path })

	failed := 0
	for _, r := range reports {
		printReport(r)
		if r.gateErr != nil || (r.result != nil && !r.result.Valid) {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d modules failed inspection", failed, len(reports))
	}
	return nil
}

func printReport(r moduleReport) {
	fmt.Printf("%s:\n", r.path)

	if r.result != nil {
		fmt.Printf("  header: version=%d estimated_pages=%d valid=%v\n",
			r.result.Version, r.result.EstimatedPages, r.result.Valid)
		for _, issue := range r.result.Issues {
			fmt.Printf("  issue: %s\n", issue)
		}
	}

	if r.info != nil {
		for _, imp := range r.info.Imports {
			fmt.Printf("  import: %s\n", imp.QualifiedName())
		}
		for _, name := range r.info.Exports {
			fmt.Printf("  export: %s\n", name)
		}
		if r.info.HasMemory {
			if r.info.HasMaxPage {
				fmt.Printf("  memory: min=%d max=%d pages\n", r.info.MemoryMin, r.info.MemoryMax)
			} else {
				fmt.Printf("  memory: min=%d pages (no max)\n", r.info.MemoryMin)
			}
		}
	}

	if r.gateErr != nil {
		fmt.Printf("  DENIED: %v\n", r.gateErr)
	} else if r.result != nil && r.result.Valid {
		fmt.Printf("  OK\n")
	}
}
