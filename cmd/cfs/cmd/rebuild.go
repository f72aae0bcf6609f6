package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

const rebuildTemplateString = `previous: size: {{ .Previous.Size }}, blocks: {{ .Previous.TotalBlocks }}
rebuilt:  size: {{ .Header.Size }}, blocks: {{ .Header.TotalBlocks }}
{{- if .Truncated }}
truncated {{ .Truncated }} bytes of partial entry
{{- end }}
{{- range .MissingBlocks }}
missing block: {{ . }}
{{- end }}`

// rebuildCmd recovers the header of a file
var rebuildCmd = &cobra.Command{
	Use:   "rebuild FILE",
	Short: "Recompute the header of a file from its block index",
	Long: `Recompute the header of a file from its block index.

The header and the block index are updated separately: an interrupted write may leave a stale size
or number of blocks in the header. rebuild counts the entries of the index, truncates a partially
written entry and sums up the sizes of the blocks referenced by the index.

The file must not be in use while it is rebuilt.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := config.storageContext()
		if err != nil {
			wrapFatalln("initializing storage", err)
			return
		}
		defer c.Close()

		res, err := c.Rebuild(context.Background(), args[0])
		if err != nil {
			fatalStorageError("rebuilding "+args[0], err)
			return
		}

		printTemplate(outputTemplate("rebuild", rebuildTemplateString), res)
	},
}

func init() {
	addTemplateFlag(rebuildCmd)
	rootCmd.AddCommand(rebuildCmd)
}
