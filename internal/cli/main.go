package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultTimeout = 3 * time.Hour

type rootFlags struct {
	config  string
	out     string
	verbose bool
	timeout time.Duration
}

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:          "storyreel",
		Short:        "Assemble a narrated highlight reel from ranked clip searches",
		SilenceUsage: true,
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "Project config file (YAML)")
	pf.StringVar(&f.out, "out", "", "Output directory (overrides out_dir)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Debug logging")
	pf.DurationVar(&f.timeout, "timeout", defaultTimeout, "Deadline for the whole run")

	root.AddCommand(newRunCmd(f), newAssembleCmd(f), newHistoryCmd(f))
	return root
}
