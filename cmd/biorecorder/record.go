package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/monitor"
	"github.com/0xmhha/biorecorder/pkg/recorder"
	"github.com/0xmhha/biorecorder/pkg/session"
	"github.com/0xmhha/biorecorder/pkg/trigger"
)

// recordCommand handles the record command.
type recordCommand struct {
	app *app

	subject     string
	duration    time.Duration
	stopFile    string
	modalities  []string
	noStress    bool
	noAttention bool
	noArchive   bool
	quiet       bool
}

func newRecordCmd(a *app) *cobra.Command {
	c := &recordCommand{app: a}
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a session until stopped",
		Long: `Record a session with every enabled channel.

The session stops on the first of: a line on stdin (terminal or pipe),
SIGINT or SIGTERM, the --duration elapsing, or the --stop-file being
created. The exit status is non-zero only when no channel produced a
valid file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Execute(cmd.Context(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&c.subject, "subject", "s", "", "subject label (default from config)")
	f.DurationVarP(&c.duration, "duration", "d", 0, "stop after this long (0 = until stopped)")
	f.StringVar(&c.stopFile, "stop-file", "", "stop when this file is created")
	f.StringSliceVarP(&c.modalities, "modalities", "m", nil, "channels to record (eeg, hr, gsr, video)")
	f.BoolVar(&c.noStress, "no-stress", false, "disable the stress detector")
	f.BoolVar(&c.noAttention, "no-attention", false, "disable the attention detector")
	f.BoolVar(&c.noArchive, "no-archive", false, "do not archive the session manifest")
	f.BoolVarP(&c.quiet, "quiet", "q", false, "suppress live progress")
	return cmd
}

// Execute runs a recording and reports its manifest.
func (c *recordCommand) Execute(ctx context.Context, out io.Writer) error {
	cfg := c.app.cfg

	subject := c.subject
	if subject == "" {
		subject = cfg.Subject
	}
	if subject == "" {
		return fmt.Errorf("no subject given: use --subject or set subject in the config")
	}
	if err := session.ValidateSubject(subject); err != nil {
		return err
	}

	if len(c.modalities) > 0 {
		mods, err := parseModalities(c.modalities)
		if err != nil {
			return err
		}
		if err := cfg.SetModalities(mods); err != nil {
			return err
		}
	}
	if c.noStress {
		cfg.Stress.Enabled = false
	}
	if c.noAttention {
		cfg.Attention.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	formatter, err := c.app.formatter(out)
	if err != nil {
		return err
	}

	var store *session.Store
	if !c.noArchive {
		store, err = c.app.openStore()
		if err != nil {
			return err
		}
		defer store.Close()
	}

	rc := recorder.RunConfig{
		Subject: subject,
		Stop:    c.stopTrigger(),
		Store:   store,
		OnStart: func(s session.Session) {
			fmt.Fprintf(out, "Recording session %s for subject %s in %s\n", s.SessionID, s.SubjectID, s.OutputDir)
			fmt.Fprintln(out, c.stopHint())
		},
	}
	if !c.quiet {
		rc.OnUpdate = func(u monitor.Update) {
			if err := formatter.FormatUpdate(out, u); err != nil {
				c.app.log.Warn("failed to display update", "error", err)
			}
		}
	}

	rec := recorder.New(cfg, c.app.devices(cfg), c.app.log)
	outcome, err := rec.Run(ctx, rc)
	if outcome == nil {
		return err
	}
	archiveErr := err
	if archiveErr != nil {
		c.app.log.Error("session not archived", "error", archiveErr)
	}

	fmt.Fprintln(out)
	if err := formatter.FormatManifest(out, outcome.Manifest); err != nil {
		return err
	}
	if !outcome.Manifest.Succeeded() {
		return errNoValidOutput
	}
	// The recording completed; only archiving failed.
	return archiveErr
}

// stopTrigger assembles the stop conditions of a recording.
func (c *recordCommand) stopTrigger() trigger.Trigger {
	triggers := []trigger.Trigger{trigger.Signals(os.Interrupt, syscall.SIGTERM)}
	if operatorInput(c.app.stdin) {
		triggers = append(triggers, trigger.Line(c.app.stdin))
	}
	if c.duration > 0 {
		triggers = append(triggers, trigger.After(c.duration))
	}
	if c.stopFile != "" {
		triggers = append(triggers, trigger.StopFile(trigger.StopFileConfig{
			Path:   c.stopFile,
			Remove: true,
		}, c.app.log))
	}
	return trigger.Any(triggers...)
}

// stopHint tells the operator how the session can be stopped.
func (c *recordCommand) stopHint() string {
	var ways []string
	if operatorInput(c.app.stdin) {
		ways = append(ways, "press Enter")
	}
	ways = append(ways, "Ctrl+C")
	if c.duration > 0 {
		ways = append(ways, fmt.Sprintf("wait %s", c.duration))
	}
	if c.stopFile != "" {
		ways = append(ways, "create "+c.stopFile)
	}
	return "To stop: " + strings.Join(ways, " or ")
}

// operatorInput reports whether f can carry a stop line: a terminal or a pipe.
func operatorInput(f *os.File) bool {
	if f == nil {
		return false
	}
	if trigger.Interactive(f) {
		return true
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeNamedPipe != 0
}

// parseModalities validates acquisition channel names. Entries may
// themselves be comma-separated.
func parseModalities(names []string) ([]channel.Modality, error) {
	var mods []channel.Modality
	seen := make(map[channel.Modality]bool)
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			m, err := channel.ParseModality(part)
			if err != nil {
				return nil, err
			}
			if !seen[m] {
				seen[m] = true
				mods = append(mods, m)
			}
		}
	}
	return mods, nil
}
