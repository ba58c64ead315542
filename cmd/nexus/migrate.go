package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/oriane-labs/hearth/internal/config"
	"github.com/oriane-labs/hearth/internal/sessions"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session/RAG store schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *sessions.Migrator) error {
				applied, err := m.Up(ctx, 0)
				if err != nil {
					return err
				}
				for _, id := range applied {
					fmt.Printf("applied %s\n", id)
				}
				if len(applied) == 0 {
					fmt.Println("already up to date")
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *sessions.Migrator) error {
				applied, all, err := m.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%d of %d migrations applied\n", len(applied), len(all))
				for _, a := range applied {
					fmt.Printf("  applied %s at %s\n", a.ID, a.AppliedAt.Format("2006-01-02T15:04:05Z07:00"))
				}
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *sessions.Migrator) error) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	migrator, err := sessions.NewMigrator(db)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}
	return fn(cmd.Context(), migrator)
}
