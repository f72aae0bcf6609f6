package cmd

import (
	"log"

	"github.com/docker/go-units"
	"github.com/oneconcern/cfs/pkg/cfs"
	"github.com/oneconcern/cfs/pkg/dlogger"
	"github.com/oneconcern/cfs/pkg/hashing"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// CLIConfig describes the CLI configuration.
//
// Settings are resolved from flags, CFS_* environment variables and the cfs.yaml config file, in that order.
type CLIConfig struct {
	Root          string `json:"root" yaml:"root" mapstructure:"root"`
	LogLevel      string `json:"loglevel" yaml:"loglevel" mapstructure:"loglevel"`
	Scheme        string `json:"scheme" yaml:"scheme" mapstructure:"scheme"`
	CacheSize     string `json:"cacheSize" yaml:"cache-size" mapstructure:"cache-size"`
	PositionCache bool   `json:"positionCache" yaml:"position-cache" mapstructure:"position-cache"`
	Metrics       bool   `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

func newConfig() (*CLIConfig, error) {
	var config CLIConfig
	err := viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// cacheSize converts the human-readable cache size. An empty size yields the default, zero disables the cache.
func (c *CLIConfig) cacheSize() (int, error) {
	switch c.CacheSize {
	case "":
		return 0, nil
	case "0":
		return -1, nil
	}
	size, err := units.RAMInBytes(c.CacheSize)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return -1, nil
	}
	return int(size), nil
}

// storageContext builds a storage context from the CLI configuration
func (c *CLIConfig) storageContext() (*cfs.Context, error) {
	logger, err := dlogger.GetLogger(c.LogLevel)
	if err != nil {
		return nil, err
	}
	scheme, err := hashing.ParseScheme(c.Scheme)
	if err != nil {
		return nil, err
	}
	cacheSize, err := c.cacheSize()
	if err != nil {
		return nil, err
	}

	return cfs.New(c.Root,
		cfs.Logger(logger),
		cfs.Scheme(scheme),
		cfs.CacheSize(cacheSize),
		cfs.PositionCache(c.PositionCache),
		cfs.WithMetrics(c.Metrics),
	)
}

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the effective CLI configuration, as YAML.

Configuration for cfs is the common set of flags that are needed for most commands and do not change across runs.
It may be set in a cfs.yaml file (in the current directory, $HOME/.cfs or /etc/cfs, or the file set by CFS_CONFIG),
or with CFS_* environment variables, e.g. CFS_ROOT or CFS_CACHE_SIZE.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		b, err := yaml.Marshal(config)
		if err != nil {
			wrapFatalln("marshalling config", err)
			return
		}
		log.Print(string(b))
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
