package cmd

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/docker/go-units"
	"github.com/oneconcern/cfs/pkg/cfs/status"
	"github.com/oneconcern/cfs/pkg/errors"
	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/cobra"
)

// putCmd chunks a local file into blocks
var putCmd = &cobra.Command{
	Use:   "put FILE SOURCE",
	Short: "Store the content of a local file",
	Long: `Store the content of a local file SOURCE as FILE, a path relative to the storage root.

SOURCE is split into blocks of 4 KiB which are written at consecutive block positions, starting with
the position set by --start. FILE is created if it does not exist yet. Blocks of an existing FILE are
overwritten in place: blocks beyond the end of SOURCE are kept.

Use "-" as SOURCE to read from the standard input.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		name, source := args[0], args[1]

		var rdr io.Reader
		if source == "-" {
			rdr = cmd.InOrStdin()
		} else {
			f, err := os.Open(source)
			if err != nil {
				wrapFatalln("opening source", err)
				return
			}
			defer f.Close()
			rdr = f
		}

		c, err := config.storageContext()
		if err != nil {
			wrapFatalln("initializing storage", err)
			return
		}
		defer c.Close()

		h, err := c.Create(name)
		if errors.Is(err, status.ErrAlreadyExists) {
			h, err = c.Open(name)
		}
		if err != nil {
			fatalStorageError("opening "+name, err)
			return
		}
		defer func() { _ = c.Release(h) }()

		var (
			written int64
			blocks  int
		)
		buf := make([]byte, model.BlockSize)
		for pos := cfsFlags.put.start; ; pos++ {
			n, err := io.ReadFull(rdr, buf)
			if n > 0 {
				if rerr := c.RegisterBlock(ctx, h, pos, buf[:n]); rerr != nil {
					fatalStorageError("writing "+name, rerr)
					return
				}
				written += int64(n)
				blocks++
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			if err != nil {
				wrapFatalln("reading source", err)
				return
			}
		}

		slot, err := c.Lookup(h)
		if err != nil {
			wrapFatalln("looking up "+name, err)
			return
		}
		log.Printf("stored %d blocks (%s) in %s, size is now %s", blocks, units.BytesSize(float64(written)), name, units.BytesSize(float64(slot.Size)))
	},
}

func init() {
	addStartFlag(putCmd)
	rootCmd.AddCommand(putCmd)
}
