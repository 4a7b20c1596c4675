package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xmhha/biorecorder/pkg/inspect"
)

// inspectCommand handles the inspect and align commands.
type inspectCommand struct {
	app *app

	sessionID string
	reference string
	tolerance time.Duration
	output    string
}

func newInspectCmd(a *app) *cobra.Command {
	c := &inspectCommand{app: a}
	cmd := &cobra.Command{
		Use:   "inspect [dir]",
		Short: "Summarize the recorded streams of a session",
		Long: `Summarize every timestamped stream of a session: row count, span,
effective rate, largest gap, ordering violations and value percentiles.

dir defaults to the configured output directory and the session to the
most recent one found there.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInspect(cmd.OutOrStdout(), c.dir(args))
		},
	}
	cmd.Flags().StringVar(&c.sessionID, "session", "", "session id to inspect")
	return cmd
}

func newAlignCmd(a *app) *cobra.Command {
	c := &inspectCommand{app: a}
	cmd := &cobra.Command{
		Use:   "align [dir]",
		Short: "Merge the streams of a session on nearest timestamps",
		Long: `Write one CSV row per row of the reference stream, joined with the
nearest row of every other stream within the tolerance.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAlign(cmd.OutOrStdout(), c.dir(args))
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.sessionID, "session", "", "session id to align")
	f.StringVarP(&c.reference, "reference", "r", string(inspect.KindHR), "reference stream kind")
	f.DurationVarP(&c.tolerance, "tolerance", "t", 500*time.Millisecond, "largest distance to a partner row")
	f.StringVarP(&c.output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (c *inspectCommand) dir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return c.app.cfg.OutputDir
}

// session resolves the selected session in dir.
func (c *inspectCommand) session(dir string) (inspect.SessionFiles, error) {
	files, err := inspect.Discover(dir, c.app.log)
	if err != nil {
		return inspect.SessionFiles{}, err
	}
	if c.sessionID != "" {
		return inspect.FindSession(files, c.sessionID)
	}

	sets := inspect.Group(files)
	if len(sets) == 0 {
		return inspect.SessionFiles{}, fmt.Errorf("%w in %s", inspect.ErrNoSessionsFound, dir)
	}
	// Discover orders by session id, which sorts chronologically.
	return sets[len(sets)-1], nil
}

// runInspect displays statistics of every stream of the session.
func (c *inspectCommand) runInspect(out io.Writer, dir string) error {
	set, err := c.session(dir)
	if err != nil {
		return err
	}

	var stats []inspect.Statistics
	for _, f := range set.Streams() {
		s, err := inspect.ParseFile(f.Path, f.Kind)
		if err != nil {
			c.app.log.Warn("skipping unreadable stream", "path", f.Path, "error", err)
			continue
		}
		stats = append(stats, inspect.Compute(s))
	}

	formatter, err := c.app.formatter(out)
	if err != nil {
		return err
	}
	if c.app.cfg.Display.Format != "json" {
		fmt.Fprintf(out, "Session %s (subject %s)\n", set.SessionID, set.Subject)
		if start, end, ok := inspect.Overlap(stats); ok {
			fmt.Fprintf(out, "Common span: %s\n", end.Sub(start).Round(time.Millisecond))
		}
		fmt.Fprintln(out)
	}
	return formatter.FormatInspection(out, stats)
}

// runAlign writes the merged table of the session.
func (c *inspectCommand) runAlign(out io.Writer, dir string) error {
	set, err := c.session(dir)
	if err != nil {
		return err
	}

	refKind := inspect.Kind(c.reference)
	refFile, ok := set.File(refKind)
	if !ok {
		return fmt.Errorf("session %s has no %s stream", set.SessionID, refKind)
	}
	ref, err := inspect.ParseFile(refFile.Path, refKind)
	if err != nil {
		return err
	}

	var others []*inspect.Stream
	for _, f := range set.Streams() {
		if f.Kind == refKind {
			continue
		}
		s, err := inspect.ParseFile(f.Path, f.Kind)
		if err != nil {
			if !errors.Is(err, inspect.ErrNoTimestampColumn) {
				c.app.log.Warn("skipping unreadable stream", "path", f.Path, "error", err)
			}
			continue
		}
		others = append(others, s)
	}

	aligned, err := inspect.Align(ref, others, c.tolerance)
	if err != nil {
		return err
	}

	w := out
	if c.output != "" {
		// #nosec G304: output path comes from the command line
		f, err := os.Create(c.output) // nolint:gosec
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := aligned.WriteCSV(w); err != nil {
		return err
	}

	for kind, n := range aligned.Matched {
		c.app.log.Info("aligned stream", "kind", string(kind), "matched", n, "rows", len(aligned.Rows))
	}
	return nil
}
