package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xmhha/biorecorder/pkg/config"
	"github.com/0xmhha/biorecorder/pkg/display"
	"github.com/0xmhha/biorecorder/pkg/logger"
	"github.com/0xmhha/biorecorder/pkg/recorder"
	"github.com/0xmhha/biorecorder/pkg/session"
	"github.com/0xmhha/biorecorder/pkg/trigger"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

// app holds the state shared by all commands of one invocation.
type app struct {
	configPath string
	format     string
	logLevel   string

	// stdin is the operator input stream.
	stdin *os.File

	// devices builds the device collaborators for a configuration.
	devices func(*config.Config) recorder.Devices

	cfg *config.Config
	log logger.Logger
}

func newApp() *app {
	return &app{
		stdin:   os.Stdin,
		devices: recorder.SimDevices,
	}
}

// newRootCmd builds the command tree.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "biorecorder",
		Short: "Record synchronized multi-modal biosignal sessions",
		Long: `biorecorder - synchronized EEG, heart rate, skin conductance and video recording

Every channel of a session starts against one clock, writes its own file
named <modality>_<subject>_<session>, and stops together with the others.
A channel that cannot connect or fails mid-session never takes the rest
of the session down.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to configuration file (YAML or TOML)")
	pf.StringVar(&a.format, "format", "", "output format (table, json, simple)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newRecordCmd(a),
		newSessionsCmd(a),
		newInspectCmd(a),
		newAlignCmd(a),
		newDevicesCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and sets up logging.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.NewLoader(a.configPath).Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.format != "" {
		cfg.Display.Format = a.format
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	lc := logger.Config{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Format: cfg.Logging.Format,
	}
	if strings.EqualFold(lc.Output, "stderr") || lc.Output == "" {
		a.log = logger.NewWithWriter(cmd.ErrOrStderr(), lc)
	} else {
		a.log = logger.New(lc)
	}
	return nil
}

// formatter returns the configured output formatter.
func (a *app) formatter(out io.Writer) (display.Formatter, error) {
	format, err := display.ParseFormat(a.cfg.Display.Format)
	if err != nil {
		return nil, err
	}
	return display.New(display.Config{
		Format:          format,
		ColorEnabled:    a.cfg.Display.ColorEnabled && isTerminal(out),
		ShowPercentiles: true,
	}), nil
}

// openStore opens the manifest archive.
func (a *app) openStore() (*session.Store, error) {
	store, err := session.OpenStore(session.StoreConfig{DBPath: a.cfg.Storage.DBPath}, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open session archive: %w", err)
	}
	return store, nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && trigger.Interactive(f)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Annotations: map[string]string{skipConfig: "true"},
		Args:        cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "biorecorder %s (commit: %s)\n", version, commit)
		},
	}
}
