// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cfs",
	Short: "cfs inspects and manipulates a deduplicating block storage root",
	Long: `cfs inspects and manipulates a deduplicating block storage root.

Files are stored as an index of fixed-size blocks, each block stored once in the ".BLOCKS"
directory of the storage root, under the digest of its content.

cfs works directly on the storage root: it may be used while the storage is mounted.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if config.Metrics {
			enableMetrics()
		}
	},
	// upstream api note:  *PostRun functions aren't called in case of a panic() in Run
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if config.Metrics {
			reportMetrics()
		}
	},
}

var config *CLIConfig

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addRootFlag(rootCmd)
	addLogLevel(rootCmd)
	addSchemeFlag(rootCmd)
	addCacheSizeFlag(rootCmd)
	addPositionCacheFlag(rootCmd)
	addMetricsFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if os.Getenv("CFS_CONFIG") != "" {
		// Use config file from the environment.
		viper.SetConfigFile(os.Getenv("CFS_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.cfs")
		viper.AddConfigPath("/etc/cfs")
		viper.SetConfigName("cfs")
	}

	viper.SetEnvPrefix("CFS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}

	var err error
	config, err = newConfig()
	if err != nil {
		logFatalln(err)
	}
}
