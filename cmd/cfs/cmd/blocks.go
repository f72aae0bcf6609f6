package cmd

import (
	"context"
	"sort"

	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/cobra"
)

const blockTemplateString = `{{ .Digest }} refs: {{ .Refs }} size: {{ .Size }}`

type blockInfo struct {
	Digest model.Digest
	Refs   uint64
	Size   int64
}

// blocksCmd lists the blocks of the storage root
var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List stored blocks",
	Long: `List the blocks of the storage root, with their reference count and payload size.

Blocks are listed by ascending digest.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c, err := config.storageContext()
		if err != nil {
			wrapFatalln("initializing storage", err)
			return
		}
		defer c.Close()

		store := c.Store()
		keys, err := store.Keys(ctx)
		if err != nil {
			wrapFatalln("listing blocks", err)
			return
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

		tpl := outputTemplate("block", blockTemplateString)
		for _, digest := range keys {
			refs, err := store.Refs(ctx, digest)
			if err != nil {
				// the block may have been removed since the listing
				continue
			}
			size, err := store.Size(ctx, digest)
			if err != nil {
				continue
			}
			printTemplate(tpl, blockInfo{Digest: digest, Refs: refs, Size: size})
		}
	},
}

func init() {
	addTemplateFlag(blocksCmd)
	rootCmd.AddCommand(blocksCmd)
}
