package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	configloader "github.com/foxseedlab/nyukoku/external/config"
	denylistimpl "github.com/foxseedlab/nyukoku/external/denylist"
	repositoryimpl "github.com/foxseedlab/nyukoku/external/repository"
	"github.com/foxseedlab/nyukoku/internal/denylist"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

const adminTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(denylistCmd)
	denylistCmd.AddCommand(denylistAddCmd, denylistRemoveCmd, denylistListCmd)

	denylistAddCmd.Flags().String("reason", "", "why the value is listed")
}

var denylistCmd = &cobra.Command{
	Use:   "denylist",
	Short: "Manage the nationality and identity deny-list",
}

// withAdmin opens the database and hands the deny-list admin to fn.
func withAdmin(fn func(ctx context.Context, admin denylist.Admin) error) error {
	cfg, err := configloader.LoadStorage()
	if err != nil {
		return err
	}
	initLogger(cfg)

	injector := do.New()
	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	denylistimpl.RegisterDI(injector)

	pool, err := do.Invoke[*pgxpool.Pool](injector)
	if err != nil {
		return err
	}
	defer pool.Close()

	admin, err := do.Invoke[denylist.Admin](injector)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()
	return fn(ctx, admin)
}

func parseCategoryArg(arg string) (denylist.Category, error) {
	category, ok := denylist.ParseCategory(arg)
	if !ok {
		return "", fmt.Errorf("unknown category %q (want nationality or identity)", arg)
	}
	return category, nil
}

var denylistAddCmd = &cobra.Command{
	Use:   "add <nationality|identity> <value>",
	Short: "Add or reactivate an entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := parseCategoryArg(args[0])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		return withAdmin(func(ctx context.Context, admin denylist.Admin) error {
			result, err := admin.Add(ctx, category, args[1], reason)
			if err != nil {
				return fmt.Errorf("add entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q: %s\n", category, args[1], result)
			return nil
		})
	},
}

var denylistRemoveCmd = &cobra.Command{
	Use:   "remove <nationality|identity> <value>",
	Short: "Invalidate an active entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := parseCategoryArg(args[0])
		if err != nil {
			return err
		}
		return withAdmin(func(ctx context.Context, admin denylist.Admin) error {
			removed, err := admin.Remove(ctx, category, args[1])
			if err != nil {
				return fmt.Errorf("remove entry: %w", err)
			}
			if !removed {
				return fmt.Errorf("no active %s entry for %q", category, args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q removed.\n", category, args[1])
			return nil
		})
	},
}

var denylistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAdmin(func(ctx context.Context, admin denylist.Admin) error {
			entries, err := admin.ListActive(ctx)
			if err != nil {
				return fmt.Errorf("list entries: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tVALUE\tREASON\tUPDATED")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Category, e.Value, e.Reason, e.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		})
	},
}
