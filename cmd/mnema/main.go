package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fernwehlabs/mnema/internal/config"
	"github.com/fernwehlabs/mnema/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "mnema",
	Short: "mnema - layered long-term memory for a companion agent",
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Assemble memory context for a user message",
	RunE:  runRetrieve,
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate <summary-ref>",
	Short: "Fold one finished conversation into the topic profiles",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsolidate,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Consolidate every conversation without a completed run",
	RunE:  runSweep,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the engine with the background schedule",
	RunE:  runDaemon,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and vault",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mnema status",
	RunE:  runStatus,
}

var (
	messageFlag string
	historyFlag []string
	jsonFlag    bool
)

func init() {
	retrieveCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "User message to retrieve memory for")
	retrieveCmd.Flags().StringArrayVar(&historyFlag, "history", nil, "Recent conversation turn (repeatable, oldest first)")
	retrieveCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the full retrieval result as JSON")
	_ = retrieveCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(retrieveCmd, consolidateCmd, sweepCmd, daemonCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openEngine() (*engine.Engine, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("API key not set. Run 'mnema onboard' or set MNEMA_API_KEY / ANTHROPIC_API_KEY")
	}
	return engine.New(cfg)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	res := e.Retrieve(context.Background(), messageFlag, historyFlag)

	if jsonFlag {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(res.Context)

	if len(res.Items) > 0 {
		fmt.Fprintln(os.Stderr, "\nretrieved from:")
		for _, item := range res.Items {
			fmt.Fprintf(os.Stderr, "  [%s] %s (%.1f)\n", item.Tier, item.Source, item.Score)
		}
	}
	if len(res.NewTopics) > 0 {
		names := make([]string, 0, len(res.NewTopics))
		for _, c := range res.NewTopics {
			names = append(names, c.Keyword)
		}
		fmt.Fprintf(os.Stderr, "proposed new topics: %s\n", strings.Join(names, ", "))
	}
	return nil
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Consolidate(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Consolidated %s\n", args[0])
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	n, err := e.Sweep(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Consolidated %d conversations\n", n)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	return e.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	for _, folder := range []string{cfg.Vault.ProfilesFolder, cfg.Vault.SummariesFolder, cfg.Vault.TranscriptsFolder} {
		if err := os.MkdirAll(filepath.Join(cfg.Vault.Path, folder), 0755); err != nil {
			return fmt.Errorf("create vault folder: %w", err)
		}
	}
	writeIfNotExists(filepath.Join(cfg.Vault.Path, cfg.Vault.PersonaNote), defaultPersonaMD)

	fmt.Printf("Vault ready: %s\n", cfg.Vault.Path)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set MNEMA_API_KEY / ANTHROPIC_API_KEY")
	fmt.Println("  3. Drop conversation summaries into the vault and run 'mnema sweep'")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Vault: %s\n", cfg.Vault.Path)
	fmt.Printf("Model: %s\n", cfg.Provider.Model)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}

	e, err := engine.New(cfg)
	if err != nil {
		fmt.Printf("Engine: error (%v)\n", err)
		return nil
	}
	defer e.Close()

	st := e.Status()
	fmt.Printf("Persona: %s\n", st.Persona)
	fmt.Printf("Profiles: %d\n", st.Profiles)
	fmt.Printf("Summaries: %d (%d consolidated)\n", st.Summaries, st.Ledger.Consolidations)
	fmt.Printf("Transcripts: %d\n", st.Transcripts)
	fmt.Printf("Tracked topics: %d\n", st.Tracked)
	fmt.Printf("History entries: %d\n", st.Ledger.HistoryEntries)

	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultPersonaMD = `---
name: Nomi
description: a warm, attentive companion
traits:
  - curious
  - playful
  - honest
---

Nomi keeps a careful memory of past conversations and brings the
relevant history into new ones.
`
