// Package main provides the graphdbd CLI entry point: a thin process
// wrapper around pkg/corpus.Store. It carries no AQL parser and no
// relANNIS/GraphML codecs — those are collaborator concerns, per spec.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orneryd/graphdb/pkg/config"
	"github.com/orneryd/graphdb/pkg/corpus"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "graphdbd",
		Short: "graphdbd - corpus storage daemon for linguistically annotated graphs",
		Long: `graphdbd wires pkg/corpus.Store's multi-corpus cache, locking and
background sync up to a process lifecycle. It exposes no query language
of its own; query plans are submitted by an embedding collaborator.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("graphdbd v%s\n", version)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the corpus store and hold db.lock until interrupted",
		RunE:  runServe,
	}
	serveCmd.Flags().String("data-dir", "", "db_dir root (overrides GRAPHDB_DATA_DIR)")
	rootCmd.AddCommand(serveCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create db_dir if it doesn't already exist",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "", "db_dir root (overrides GRAPHDB_DATA_DIR)")
	rootCmd.AddCommand(initCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every corpus under db_dir",
		RunE:  runList,
	}
	listCmd.Flags().String("data-dir", "", "db_dir root (overrides GRAPHDB_DATA_DIR)")
	rootCmd.AddCommand(listCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.LoadFromEnv()
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Store.DBDir = dir
	}
	return cfg
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)

	fmt.Printf("opening corpus store at %s\n", cfg.Store.DBDir)
	store, err := corpus.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening corpus store: %w", err)
	}
	defer store.Close()

	names, err := store.List()
	if err != nil {
		return fmt.Errorf("listing corpora: %w", err)
	}
	fmt.Printf("%d corpora resident on disk\n", len(names))
	fmt.Println("holding db.lock, press Ctrl+C to release")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("shutting down")
	return store.Close()
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if err := os.MkdirAll(cfg.Store.DBDir, 0o755); err != nil {
		return fmt.Errorf("creating db_dir: %w", err)
	}
	fmt.Printf("initialized db_dir at %s\n", cfg.Store.DBDir)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	store, err := corpus.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening corpus store: %w", err)
	}
	defer store.Close()

	names, err := store.List()
	if err != nil {
		return fmt.Errorf("listing corpora: %w", err)
	}
	for _, name := range names {
		info, err := store.Info(name)
		if err != nil {
			return err
		}
		status := "unloaded"
		if info.Loaded {
			status = "loaded"
		}
		fmt.Printf("%s\t%s\n", name, status)
	}
	return nil
}
