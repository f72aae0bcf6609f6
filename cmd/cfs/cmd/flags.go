// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type flagsT struct {
	root struct {
		root          string
		logLevel      string
		scheme        string
		cacheSize     string
		positionCache bool
		metrics       bool
	}
	core struct {
		Template string
	}
	put struct {
		start int64
	}
}

var cfsFlags = flagsT{}

// bindFlag makes a persistent flag the default value of a configuration key
func bindFlag(cmd *cobra.Command, flag string) string {
	if err := viper.BindPFlag(flag, cmd.PersistentFlags().Lookup(flag)); err != nil {
		logFatalln(err)
	}
	return flag
}

func addRootFlag(cmd *cobra.Command) string {
	c := "root"
	cmd.PersistentFlags().StringVar(&cfsFlags.root.root, c, ".", "The storage root directory")
	return bindFlag(cmd, c)
}

func addLogLevel(cmd *cobra.Command) string {
	c := "loglevel"
	cmd.PersistentFlags().StringVar(&cfsFlags.root.logLevel, c, "warn", "The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	return bindFlag(cmd, c)
}

func addSchemeFlag(cmd *cobra.Command) string {
	c := "scheme"
	cmd.PersistentFlags().StringVar(&cfsFlags.root.scheme, c, "sha1", "The deduplication scheme used to address blocks (sha1, blake2b). A storage root must always be used with the same scheme")
	return bindFlag(cmd, c)
}

func addCacheSizeFlag(cmd *cobra.Command) string {
	c := "cache-size"
	cmd.PersistentFlags().StringVar(&cfsFlags.root.cacheSize, c, "8MiB", "The size of the in-memory block cache (in KiB, MiB, ...). Use 0 to disable the cache")
	return bindFlag(cmd, c)
}

func addPositionCacheFlag(cmd *cobra.Command) string {
	c := "position-cache"
	cmd.PersistentFlags().BoolVar(&cfsFlags.root.positionCache, c, false, "Keep an in-memory map of block positions for open files")
	return bindFlag(cmd, c)
}

func addMetricsFlag(cmd *cobra.Command) string {
	c := "metrics"
	cmd.PersistentFlags().BoolVar(&cfsFlags.root.metrics, c, false, "Toggle block store metrics, reported when the command is done")
	return bindFlag(cmd, c)
}

func addTemplateFlag(cmd *cobra.Command) string {
	c := "format"
	cmd.Flags().StringVar(&cfsFlags.core.Template, c, "", `Pretty-print objects using a Go template. Use '{{ printf "%#v" . }}' to explore available fields`)
	return c
}

func addStartFlag(cmd *cobra.Command) string {
	c := "start"
	cmd.Flags().Int64Var(&cfsFlags.put.start, c, 0, "The block position of the first block written")
	return c
}
