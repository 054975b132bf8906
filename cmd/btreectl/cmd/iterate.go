package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/freyjadb/pkg/bptree"
)

var reverse bool

// iterateCmd walks the primary tree's leaf chain in key order.
var iterateCmd = &cobra.Command{
	Use:   "iterate",
	Short: "List every key in the primary tree, in order",
	Long: `Iterate walks the primary tree's leaf chain and prints every
key and value in ascending key order, or descending with --reverse.

Example:
  btreectl iterate
  btreectl iterate --reverse`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		hf, tree, err := openPrimaryTree(dataDir, keysPerNode, keyWidth, dataWidth)
		if err != nil {
			return fmt.Errorf("opening tree: %w", err)
		}
		defer hf.Close()

		if reverse {
			it, err := tree.ReverseIter()
			if err != nil {
				return fmt.Errorf("reverse iterator: %w", err)
			}
			defer it.Close()
			for it.Next() {
				if err := printEntry(tree, it.Node()); err != nil {
					return err
				}
			}
			return it.Err()
		}

		it, err := tree.ForwardIter()
		if err != nil {
			return fmt.Errorf("forward iterator: %w", err)
		}
		defer it.Close()
		for it.Next() {
			if err := printEntry(tree, it.Node()); err != nil {
				return err
			}
		}
		return it.Err()
	},
}

// printEntry decodes one leaf node's fixed-width key/value back to Go
// values and prints it.
func printEntry(tree *bptree.Tree, n bptree.Node) error {
	key, err := tree.DecodeKey(n.Key)
	if err != nil {
		return fmt.Errorf("decoding key: %w", err)
	}
	value, err := tree.DecodeData(n.Data)
	if err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	fmt.Printf("%v\t%s\n", key, value.([]byte))
	return nil
}

func init() {
	rootCmd.AddCommand(iterateCmd)
	iterateCmd.Flags().BoolVar(&reverse, "reverse", false, "Walk the tree in descending key order")
}
