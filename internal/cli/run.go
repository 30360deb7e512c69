package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/forPelevin/storyreel/internal/logging"
	"github.com/forPelevin/storyreel/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type inputFlags struct {
	project       string
	video         string
	keepWorkspace bool
}

func (in *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.project, "project", "", "Project name (overrides project)")
	cmd.Flags().StringVar(&in.video, "video", "", "Source video path (overrides source_video)")
	cmd.Flags().BoolVar(&in.keepWorkspace, "keep-workspace", false, "Keep extracted segments after the run")
}

func newRunCmd(rf *rootFlags) *cobra.Command {
	in := &inputFlags{}
	var rawText string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate storyboard, narration and candidates, then assemble the reel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rf, in)
			if err != nil {
				return err
			}
			if rawText != "" {
				cfg.RawText = rawText
			}
			if err := cfg.Validate(pipeline.ModeRun); err != nil {
				return fmt.Errorf("config: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), rf.timeout)
			defer cancel()

			out, err := pipeline.Run(ctx, cfg, newLogger(cmd, rf))
			if err != nil {
				return err
			}
			return report(cmd, out)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&rawText, "raw-text", "", "Raw narrative text file (overrides raw_text)")
	return cmd
}

func newAssembleCmd(rf *rootFlags) *cobra.Command {
	in := &inputFlags{}
	src := pipeline.AssembleSources{}
	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Select, cut, join and mix from existing storyboard, candidates and narration files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rf, in)
			if err != nil {
				return err
			}
			if err := cfg.Validate(pipeline.ModeAssemble); err != nil {
				return fmt.Errorf("config: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), rf.timeout)
			defer cancel()

			out, err := pipeline.Assemble(ctx, cfg, src, newLogger(cmd, rf))
			if err != nil {
				return err
			}
			return report(cmd, out)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&src.Storyboard, "storyboard", "", "Storyboard JSON file")
	cmd.Flags().StringVar(&src.Candidates, "candidates", "", "Candidates JSON file")
	cmd.Flags().StringVar(&src.NarrationAudio, "narration", "", "Narration audio file")
	cmd.Flags().StringVar(&src.NarrationText, "narration-text", "", "Narration text file (optional)")
	for _, name := range []string{"storyboard", "candidates", "narration"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newHistoryCmd(rf *rootFlags) *cobra.Command {
	var (
		project string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the run ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rf, &inputFlags{})
			if err != nil {
				return err
			}
			runs, err := pipeline.History(cmd.Context(), cfg, project, limit, newLogger(cmd, rf))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "no runs recorded")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tPROJECT\tMODE\tSTATUS\tCLIPS\tSKIPPED\tRUN ID\tDETAIL")
			for _, r := range runs {
				detail := r.FinalPath
				if r.Error != "" {
					detail = r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), r.Project, r.Mode, r.Status, r.Clips, r.Skipped, r.ID, detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Only runs of this project")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}

func loadConfig(rf *rootFlags, in *inputFlags) (pipeline.Config, error) {
	cfg, err := pipeline.LoadConfig(rf.config)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.FromEnv(os.Getenv)

	if rf.out != "" {
		cfg.OutDir = rf.out
	}
	if in.project != "" {
		cfg.Project = in.project
	}
	if in.video != "" {
		cfg.SourceVideo = in.video
	}
	if in.keepWorkspace {
		cfg.KeepWorkspace = true
	}
	if cfg.SourceVideo != "" {
		abs, err := filepath.Abs(cfg.SourceVideo)
		if err != nil {
			return cfg, err
		}
		cfg.SourceVideo = abs
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, rf *rootFlags) zerolog.Logger {
	return logging.New(rf.verbose, cmd.ErrOrStderr())
}

func report(cmd *cobra.Command, out pipeline.Outcome) error {
	if out.PersistErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", out.PersistErr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Paths.Final)
	return nil
}
