/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// dataDir, keysPerNode, keyWidth, and dataWidth are shared across every
// subcommand that opens the primary tree (see store.go). Each
// subcommand opens its own heap file rather than sharing one from
// PersistentPreRunE, since create/put/get/delete/iterate each close it
// again before returning.
var (
	dataDir     string
	keysPerNode int
	keyWidth    int
	dataWidth   int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "btreectl",
	Short: "btreectl - a persistent B+Tree index over a heap file",
	Long: `btreectl drives a persistent B+Tree index: a heap-file-backed
tree with leaf nodes chained for ordered traversal, plus a small HTTP
admin API over named secondary field indexes.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "./data", "Data directory for the tree's heap file(s)")
	rootCmd.PersistentFlags().IntVar(&keysPerNode, "keys-per-node", 16, "Maximum NodeList length before a split")
	rootCmd.PersistentFlags().IntVar(&keyWidth, "key-width", 64, "Fixed width, in bytes, of the primary tree's keys")
	rootCmd.PersistentFlags().IntVar(&dataWidth, "data-width", 4096, "Fixed width, in bytes, of the primary tree's values")
}
