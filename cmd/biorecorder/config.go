package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/0xmhha/biorecorder/pkg/config"
)

// configCommand handles configuration management subcommands.
type configCommand struct {
	app *app

	showFormat string
	output     string
	force      bool
}

func newConfigCmd(a *app) *cobra.Command {
	c := &configCommand{app: a}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and initialize configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runShow(cmd.OutOrStdout())
		},
	}
	show.Flags().StringVar(&c.showFormat, "as", "yaml", "encoding (yaml, toml)")

	path := &cobra.Command{
		Use:         "path",
		Short:       "Show configuration file search paths",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPath(cmd.OutOrStdout())
		},
	}

	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default configuration to a file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInit(cmd.OutOrStdout())
		},
	}
	initCmd.Flags().StringVarP(&c.output, "output", "o", "", "output path (default: "+config.DefaultConfigPath()+")")
	initCmd.Flags().BoolVar(&c.force, "force", false, "overwrite an existing file")

	cmd.AddCommand(show, path, initCmd)
	return cmd
}

// runShow displays the effective configuration.
func (c *configCommand) runShow(out io.Writer) error {
	target := "config.yaml"
	if c.showFormat == "toml" {
		target = "config.toml"
	} else if c.showFormat != "yaml" {
		return fmt.Errorf("unknown encoding %q (want yaml or toml)", c.showFormat)
	}

	data, err := config.Marshal(c.app.cfg, target)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "# Current Configuration")
	fmt.Fprintln(out, "# Source:", c.source())
	fmt.Fprintln(out)
	_, err = out.Write(data)
	return err
}

// runPath shows the configuration file search paths.
func (c *configCommand) runPath(out io.Writer) error {
	fmt.Fprintln(out, "Configuration file search paths (in order of precedence):")
	fmt.Fprintln(out)

	for i, p := range config.SearchPaths() {
		exists := "not found"
		if _, err := os.Stat(p); err == nil {
			exists = "found"
		}
		fmt.Fprintf(out, "  %d. %s [%s]\n", i+1, p, exists)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Active configuration:", c.source())
	return nil
}

// runInit writes the default configuration.
func (c *configCommand) runInit(out io.Writer) error {
	path := c.output
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !c.force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	if err := config.Save(config.Default(), path); err != nil {
		return err
	}

	fmt.Fprintf(out, "Default configuration written to: %s\n", path)
	return nil
}

// source returns the active configuration file.
func (c *configCommand) source() string {
	if p := config.NewLoader(c.app.configPath).Path(); p != "" {
		return p
	}
	return "defaults (no config file found)"
}
