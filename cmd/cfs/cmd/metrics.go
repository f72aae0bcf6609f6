package cmd

import (
	"log"
	"sync"

	"github.com/oneconcern/cfs/pkg/blockstore"
	"go.opencensus.io/stats/view"
)

var registerViews sync.Once

func enableMetrics() {
	registerViews.Do(func() {
		if err := view.Register(blockstore.Views()...); err != nil {
			wrapFatalln("registering metrics", err)
		}
	})
}

// reportMetrics prints the block store metrics collected while running the command
func reportMetrics() {
	for _, v := range blockstore.Views() {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			log.Println("retrieving metrics:", err)
			continue
		}
		for _, row := range rows {
			log.Printf("%s %v: %v", v.Name, row.Tags, row.Data)
		}
	}
}
