package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a key from the primary tree",
	Long: `Delete removes a key and its value from the primary B+Tree.

Example:
  btreectl delete mykey`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		hf, tree, err := openPrimaryTree(dataDir, keysPerNode, keyWidth, dataWidth)
		if err != nil {
			return fmt.Errorf("opening tree: %w", err)
		}
		defer hf.Close()

		if err := tree.Delete(key); err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		fmt.Printf("deleted key %q\n", key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
