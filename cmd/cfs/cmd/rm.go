package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

// rmCmd deletes a file and releases its blocks
var rmCmd = &cobra.Command{
	Use:   "rm FILE",
	Short: "Delete a file",
	Long: `Delete a file: the references held on its blocks are released, and blocks no longer
referenced by any file are removed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
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

		if err = c.Delete(context.Background(), h); err != nil {
			fatalStorageError("deleting "+args[0], err)
			return
		}
		log.Println("deleted", args[0])
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
