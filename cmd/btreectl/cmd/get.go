package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/freyjadb/pkg/bptree"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get the value stored for a key",
	Long: `Get looks up a key in the primary B+Tree and prints its value.

Example:
  btreectl get mykey`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		hf, tree, err := openPrimaryTree(dataDir, keysPerNode, keyWidth, dataWidth)
		if err != nil {
			return fmt.Errorf("opening tree: %w", err)
		}
		defer hf.Close()

		node, _, found, ctx, err := tree.Search(key)
		if err != nil {
			if errors.Is(err, bptree.ErrNotInitialized) {
				return fmt.Errorf("key %q not found", key)
			}
			return fmt.Errorf("search: %w", err)
		}
		defer ctx.Close()

		if !found {
			return fmt.Errorf("key %q not found", key)
		}

		value, err := tree.DecodeData(node.Data)
		if err != nil {
			return fmt.Errorf("decoding value: %w", err)
		}
		fmt.Printf("%s\n", value.([]byte))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
