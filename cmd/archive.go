package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/calibkit/calib/internal/archive"
	"github.com/calibkit/calib/internal/param"
)

var (
	archiveDB      string
	archiveSession string
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Query the sqlite evaluation archive",
}

var archiveSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List archived calibration sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "archive is empty")
			return nil
		}
		for _, id := range sessions {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var archiveBestCmd = &cobra.Command{
	Use:   "best",
	Short: "Show the best archived evaluation of a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		session, err := resolveSession(cmd, store)
		if err != nil {
			return err
		}
		best, ok, err := store.Best(cmd.Context(), session)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("session %s has no evaluations", session)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "session:    %s\n", best.Session)
		fmt.Fprintf(out, "generation: %d\n", best.Generation)
		fmt.Fprintf(out, "objective:  %s\n", param.Scientific(best.Objective, 6))
		fmt.Fprintf(out, "params:     %v\n", best.Params)
		return nil
	},
}

var archiveHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the generation history of a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		session, err := resolveSession(cmd, store)
		if err != nil {
			return err
		}
		hist, err := store.History(cmd.Context(), session)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range hist {
			fmt.Fprintf(out, "gen %-4d runs %-8s objective %s\n",
				e.Generation, humanize.Comma(int64(e.Run)), param.Scientific(e.Objective, 6))
		}
		return nil
	},
}

func openArchive(cmd *cobra.Command) (*archive.Store, error) {
	store := archive.NewStore(archiveDB)
	if err := store.Init(cmd.Context()); err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archiveDB, err)
	}
	return store, nil
}

// resolveSession defaults to the most recent session when none is
// named.
func resolveSession(cmd *cobra.Command, store *archive.Store) (string, error) {
	if archiveSession != "" {
		return archiveSession, nil
	}
	sessions, err := store.Sessions(cmd.Context())
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("archive is empty")
	}
	return sessions[0], nil
}

func init() {
	archiveCmd.PersistentFlags().StringVar(&archiveDB, "db", "calib.db", "Archive database file")
	archiveCmd.PersistentFlags().StringVar(&archiveSession, "session", "", "Session id (default: most recent)")
	archiveCmd.AddCommand(archiveSessionsCmd, archiveBestCmd, archiveHistoryCmd)
	rootCmd.AddCommand(archiveCmd)
}
