package cmd

import (
	"github.com/spf13/cobra"
)

const statTemplateString = `size: {{ .Size }} ({{ humanSize .Size }}), blocks: {{ .TotalBlocks }}`

// statCmd prints the header of a file
var statCmd = &cobra.Command{
	Use:   "stat FILE",
	Short: "Print the size and number of blocks of a file",
	Long: `Print the header of a file: its logical size and the number of blocks in its index.

FILE is a path relative to the storage root.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := config.storageContext()
		if err != nil {
			wrapFatalln("initializing storage", err)
			return
		}
		defer c.Close()

		header, err := c.Stat(args[0])
		if err != nil {
			fatalStorageError("stat "+args[0], err)
			return
		}

		printTemplate(outputTemplate("stat", statTemplateString), header)
	},
}

func init() {
	addTemplateFlag(statCmd)
	rootCmd.AddCommand(statCmd)
}
