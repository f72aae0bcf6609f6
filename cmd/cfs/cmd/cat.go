package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// catCmd writes the content of a file to the standard output
var catCmd = &cobra.Command{
	Use:   "cat FILE",
	Short: "Print the content of a file",
	Long: `Print the content of a file: the payloads of its blocks, in ascending block position.

Positions without any block are skipped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c, err := config.storageContext()
		if err != nil {
			wrapFatalln("initializing storage", err)
			return
		}
		defer c.Close()

		h, err := c.Open(args[0])
		if err != nil {
			fatalStorageError("opening "+args[0], err)
			return
		}
		defer func() { _ = c.Release(h) }()

		positions, err := c.Positions(h)
		if err != nil {
			fatalStorageError("reading the index of "+args[0], err)
			return
		}

		out := cmd.OutOrStdout()
		for _, pos := range positions {
			data, found, err := c.ReadBlock(ctx, h, pos)
			if err != nil {
				fatalStorageError(fmt.Sprintf("reading block %d of %s", pos, args[0]), err)
				return
			}
			if !found {
				continue
			}
			if _, err = out.Write(data); err != nil {
				wrapFatalln("writing output", err)
				return
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
