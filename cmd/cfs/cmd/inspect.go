package cmd

import (
	"github.com/oneconcern/cfs/pkg/filetable"
	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/cobra"
)

const inspectTemplateString = `{{ .File.Path }}: size: {{ .File.Size }} ({{ humanSize .File.Size }}), blocks: {{ .File.TotalBlocks }}
{{- range .Entries }}
{{ .Position }} -> {{ .Digest }}
{{- end }}`

type inspection struct {
	File    filetable.Slot
	Entries []model.Entry
}

// inspectCmd dumps the index of a file
var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Print the block index of a file",
	Long: `Print the header of a file, followed by its entry log: the digest of the block stored
at each block position, in the order positions have been first written.

FILE is a path relative to the storage root.`,
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
		defer func() { _ = c.Release(h) }()

		slot, err := c.Lookup(h)
		if err != nil {
			wrapFatalln("looking up "+args[0], err)
			return
		}
		entries, err := c.Entries(h)
		if err != nil {
			fatalStorageError("reading the index of "+args[0], err)
			return
		}

		printTemplate(outputTemplate("inspect", inspectTemplateString), inspection{File: slot, Entries: entries})
	},
}

func init() {
	addTemplateFlag(inspectCmd)
	rootCmd.AddCommand(inspectCmd)
}
