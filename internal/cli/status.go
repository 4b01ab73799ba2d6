package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/couchcryptid/wildfire-water-etl/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) statusCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the ledger and output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.status(cmd.OutOrStdout(), domain.State(state))
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "list the features in this ledger state")
	return cmd
}

func (a *app) status(w io.Writer, only domain.State) error {
	out, err := store.NewOutputStore(a.cfg.OutputDir)
	if err != nil {
		return err
	}
	ledger, err := store.OpenLedger(filepath.Join(a.cfg.OutputDir, store.LedgerFile))
	if err != nil {
		return err
	}

	if only != "" {
		return listState(w, ledger, only)
	}

	files, err := out.List()
	if err != nil {
		return err
	}
	locks, err := out.Locks()
	if err != nil {
		return err
	}

	counts := ledger.Counts()
	states := make([]string, 0, len(counts))
	for st := range counts {
		states = append(states, string(st))
	}
	sort.Strings(states)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "output files\t%d\n", len(files))
	fmt.Fprintf(tw, "locks\t%d\n", len(locks))
	for _, st := range states {
		fmt.Fprintf(tw, "%s\t%d\n", st, counts[domain.State(st)])
	}
	return tw.Flush()
}

func listState(w io.Writer, ledger *store.Ledger, only domain.State) error {
	entries := ledger.Entries()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, id := range ledger.IDs() {
		e := entries[id]
		if e.State != only {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, e.UpdatedAt.Format(time.RFC3339), e.Reason)
	}
	return tw.Flush()
}

func (a *app) unlockCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "unlock [feature-id...]",
		Short: "Remove claim locks left behind by a killed run",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := store.NewOutputStore(a.cfg.OutputDir)
			if err != nil {
				return err
			}
			ids := args
			if all {
				if ids, err = out.Locks(); err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no locks")
					return nil
				}
			}
			if len(ids) == 0 {
				return errors.New("no feature ids given (use --all to clear every lock)")
			}
			for _, id := range ids {
				if err := out.Unlock(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove every lock in the output directory")
	return cmd
}
