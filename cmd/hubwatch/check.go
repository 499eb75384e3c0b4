package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/hubwatch/internal/config"
	"github.com/goodtune/hubwatch/internal/harmony"
	"github.com/goodtune/hubwatch/internal/storage"
	"github.com/goodtune/hubwatch/internal/storage/redis"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check hub and storage connectivity",
	Long:  `Probe the configured hub and storage backend and print what hubwatch sees.`,
}

var checkHubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Check hub connectivity",
	Long:  `Connect to the hub, list its defined activities, and show which one is running.`,
	Example: `  hubwatch -c config.yaml check hub`,
	RunE:    runCheckHub,
}

var checkStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Check storage connectivity",
	Long:  `Ping the storage backend and show today's record if one exists.`,
	Example: `  hubwatch -c config.yaml check store`,
	RunE:    runCheckStore,
}

func init() {
	checkCmd.AddCommand(checkHubCmd)
	checkCmd.AddCommand(checkStoreCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckHub(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	hub := harmony.NewWebsocketClient(harmony.Config{
		Host:    cfg.Hub.Host,
		Port:    cfg.Hub.Port,
		Timeout: parseDuration(cfg.Hub.RequestTimeout, 10*time.Second),
	}, logger)
	defer hub.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	activities, err := hub.Activities(ctx)
	if err != nil {
		color.Red("✗ hub %s unreachable: %v", cfg.Hub.Host, err)
		return err
	}
	color.Green("✓ hub %s reachable, %d activities defined", cfg.Hub.Host, len(activities))

	currentID, err := hub.CurrentActivityID(ctx)
	if err != nil {
		color.Red("✗ current activity query failed: %v", err)
		return err
	}

	offID := harmony.ResolveOffID(activities)
	for _, a := range activities {
		marker := " "
		line := fmt.Sprintf("  %s %-6s %s", marker, a.ID, a.Label)
		switch {
		case a.ID == currentID && a.ID == offID:
			color.Yellow("  ● %-6s %s (system off)", a.ID, a.Label)
		case a.ID == currentID:
			color.Green("  ● %-6s %s (running)", a.ID, a.Label)
		default:
			fmt.Println(line)
		}
	}

	return nil
}

func runCheckStore(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := redis.Open(cfg.Storage.Redis)
	if err != nil {
		color.Red("✗ storage unreachable: %v", err)
		return err
	}
	defer store.Close()
	color.Green("✓ storage reachable at %s:%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	rec, err := store.Records().FindByDate(ctx, time.Now())
	if err == storage.ErrNotFound {
		color.Yellow("  no record for today yet")
		return nil
	}
	if err != nil {
		color.Red("✗ record lookup failed: %v", err)
		return err
	}

	fmt.Printf("  record for %s (hub %s):\n", rec.Date.Format("2006-01-02"), rec.Hub)
	for id, t := range rec.Activities {
		fmt.Printf("    %-6s %-24s %4d min\n", id, t.Name, t.Active)
	}
	return nil
}
