/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/freyjadb/pkg/api"
	"github.com/ssargent/freyjadb/pkg/config"
	"github.com/ssargent/freyjadb/pkg/index"
)

var (
	configPath string
	servePort  int
)

// serveCmd starts the HTTP admin API over a pkg/index.IndexManager.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP admin API",
	Long: `Serve starts the index admin API: insert/delete/search/range
over named secondary field indexes, plus /metrics and a health check.

Example:
  btreectl serve --config ./freyja.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		if configPath != "" {
			if config.ConfigExists(configPath) {
				loaded, err := config.LoadConfig(configPath)
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				cfg = loaded
			} else {
				bootstrapped, err := config.BootstrapConfig(configPath, dataDir)
				if err != nil {
					return fmt.Errorf("bootstrapping config: %w", err)
				}
				cfg = bootstrapped
				fmt.Printf("wrote new config with generated keys to %s\n", configPath)
			}
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.DataDir = dataDir
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}

		apiKey := cfg.Security.ClientAPIKey
		if apiKey == "" || apiKey == "auto" {
			return fmt.Errorf("config has no client API key configured; run with --config to bootstrap one")
		}

		manager := index.NewIndexManager(cfg.DataDir, cfg.BTree.KeysPerNode)
		defer manager.CloseAll()

		serverCfg := api.ServerConfig{
			Port:        cfg.Port,
			APIKey:      apiKey,
			DataDir:     cfg.DataDir,
			KeysPerNode: cfg.BTree.KeysPerNode,
		}
		return api.StartServer(manager, serverCfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (bootstrapped with generated keys if missing)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
}
