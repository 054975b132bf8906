package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/freyjadb/pkg/bptree"
)

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Insert or overwrite a key's value",
	Long: `Put inserts a key-value pair into the primary B+Tree, replacing
the key's existing value if it is already present.

Example:
  btreectl put mykey myvalue`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := []byte(args[1])

		hf, tree, err := openPrimaryTree(dataDir, keysPerNode, keyWidth, dataWidth)
		if err != nil {
			return fmt.Errorf("opening tree: %w", err)
		}
		defer hf.Close()

		if err := tree.Insert(key, value); err != nil {
			if !errors.Is(err, bptree.ErrDuplicateKey) {
				return fmt.Errorf("insert: %w", err)
			}
			if err := tree.Delete(key); err != nil {
				return fmt.Errorf("replacing existing key: %w", err)
			}
			if err := tree.Insert(key, value); err != nil {
				return fmt.Errorf("insert after replace: %w", err)
			}
		}

		fmt.Printf("put key %q (%d bytes)\n", key, len(value))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}
