package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/gofast/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a fleet configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		fmt.Printf("✓ %s is valid\n", path)
		fmt.Printf("  Workers:  %d (%s, %s, %s)\n", cfg.Concurrency, cfg.Template.Region, cfg.Template.Size, cfg.Template.Image)
		fmt.Printf("  Proxy:    %t\n", cfg.Proxy)
		fmt.Printf("  Port:     %d\n", cfg.Port)
		fmt.Printf("  Start:    %s\n", cfg.StartCommand)
		if cfg.Artifact.Path != "" {
			fmt.Printf("  Artifact: %s -> %s\n", cfg.Artifact.Path, cfg.Artifact.RemotePath)
		}
		fmt.Printf("  Setup:    %d steps\n", len(cfg.Setup))
		for i, step := range cfg.Setup {
			fmt.Printf("    %2d. %s\n", i+1, step)
		}
		return nil
	},
}
