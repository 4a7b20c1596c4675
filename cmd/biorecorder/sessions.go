package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/0xmhha/biorecorder/pkg/session"
)

// sessionsCommand handles the archived session subcommands.
type sessionsCommand struct {
	app *app

	subject    string
	limit      int
	deleteData bool
}

func newSessionsCmd(a *app) *cobra.Command {
	c := &sessionsCommand{app: a}
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "List, show and delete archived sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runList(cmd.OutOrStdout())
		},
	}
	list.Flags().StringVar(&c.subject, "subject", "", "only sessions of this subject")
	list.Flags().IntVarP(&c.limit, "limit", "n", 0, "show at most this many sessions")

	show := &cobra.Command{
		Use:   "show <[subject/]session-id|run-id>",
		Short: "Show the manifest of one session",
		Long: `Show the manifest of one session.

Subjects recording in the same second share a session id; qualify it as
<subject>/<session-id> when a bare id matches more than one subject.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runShow(cmd.OutOrStdout(), args[0])
		},
	}

	del := &cobra.Command{
		Use:   "delete <[subject/]session-id|run-id>",
		Short: "Remove a session from the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDelete(cmd.OutOrStdout(), args[0])
		},
	}
	del.Flags().BoolVar(&c.deleteData, "files", false, "also delete the recorded files")

	cmd.AddCommand(list, show, del)
	return cmd
}

// runList displays archived sessions.
func (c *sessionsCommand) runList(out io.Writer) error {
	store, err := c.app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var manifests []*session.Manifest
	if c.subject != "" {
		manifests, err = store.ListBySubject(c.subject)
	} else {
		manifests, err = store.List()
	}
	if err != nil {
		return err
	}
	if c.limit > 0 && len(manifests) > c.limit {
		manifests = manifests[:c.limit]
	}

	formatter, err := c.app.formatter(out)
	if err != nil {
		return err
	}
	return formatter.FormatSessions(out, manifests)
}

// runShow displays one manifest.
func (c *sessionsCommand) runShow(out io.Writer, ref string) error {
	store, err := c.app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := store.Lookup(ref)
	if err != nil {
		return err
	}

	formatter, err := c.app.formatter(out)
	if err != nil {
		return err
	}
	return formatter.FormatManifest(out, m)
}

// runDelete removes a manifest and, with --files, its recorded files.
func (c *sessionsCommand) runDelete(out io.Writer, ref string) error {
	store, err := c.app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := store.Lookup(ref)
	if err != nil {
		return err
	}
	if err := store.Delete(m.RunID); err != nil {
		return err
	}

	removed := 0
	if c.deleteData {
		for _, e := range m.Channels {
			for _, p := range e.Paths {
				if err := os.Remove(p); err != nil {
					if !os.IsNotExist(err) {
						c.app.log.Warn("failed to delete file", "path", p, "error", err)
					}
					continue
				}
				removed++
			}
		}
	}

	fmt.Fprintf(out, "Deleted session %s (run %s)", m.SessionID, m.RunID)
	if c.deleteData {
		fmt.Fprintf(out, ", %d files removed", removed)
	}
	fmt.Fprintln(out)
	return nil
}
