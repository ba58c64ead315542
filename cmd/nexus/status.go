package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriane-labs/hearth/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Validate the kernel configuration and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			fmt.Printf("config: ok (%s)\n", configPath)
			fmt.Printf("server: %s:%d\n", cfg.Server.Host, cfg.Server.HTTPPort)
			fmt.Printf("default provider: %s\n", cfg.LLM.DefaultProvider)
			fmt.Printf("scheduler jobs configured: %d\n", len(cfg.Scheduler.Jobs))
			return nil
		},
	}
}
