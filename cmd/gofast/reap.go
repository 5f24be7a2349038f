package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/gofast/pkg/config"
	"github.com/cuemby/gofast/pkg/provider/digitalocean"
	"github.com/cuemby/gofast/pkg/provision"
	"github.com/cuemby/gofast/pkg/storage"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Destroy instances left behind by an interrupted run",
	Long: `Destroy every instance still recorded in the local ledger.

A run records each instance it creates and removes it once destroyed, so
anything left in the ledger was leaked by a crash or a failed delete.`,
	RunE: runReap,
}

func init() {
	reapCmd.Flags().Bool("dry-run", false, "List the instances without destroying them")
}

func runReap(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	instances, err := store.List()
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		fmt.Println("No instances recorded")
		return nil
	}

	p := provision.New(digitalocean.New(cfg.Credentials.Token), provisionConfig(cfg), provision.WithLedger(store))

	failed := 0
	for _, inst := range instances {
		fmt.Printf("%-12s %-6s %-24s %-16s %s\n",
			inst.ID, inst.Role, inst.Name, inst.Address, inst.CreatedAt.Format(time.RFC3339))
		if dryRun {
			continue
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		err := p.Destroy(ctx, inst.ID)
		cancel()
		if err != nil {
			fmt.Printf("  ✗ %v\n", err)
			failed++
			continue
		}
		fmt.Println("  ✓ destroyed")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d instances could not be destroyed", failed, len(instances))
	}
	return nil
}
