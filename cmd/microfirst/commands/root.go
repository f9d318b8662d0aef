package commands

import (
	"github.com/spf13/cobra"

	"github.com/Devam42/Microfirst/cmd/microfirst/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "microfirst",
	Short: "Microbot device runtime and clip tooling",
	Long: `microfirst - the Microbot voice companion runtime.

The device plays expression clips from removable storage and runs a
hold-to-talk voice round trip against a processing server over a
shared half-duplex audio bus.

Commands:
  run        Run the device loop with loopback peripherals
  clips      Expression clip tooling (ls, info, sync)
  version    Show version information

Configuration lives in a single YAML file:
  macOS:   ~/Library/Application Support/microfirst/config.yaml
  Linux:   ~/.config/microfirst/config.yaml

Examples:
  # Run the device against a local test server
  microfirst run --server 127.0.0.1:5000 --clips ./expressions

  # Inspect a clip
  microfirst clips info expressions/happy.bin

  # Pull the clip library from S3
  microfirst clips sync`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: OS config dir)")
}

// IsVerbose reports whether --verbose was set.
func IsVerbose() bool {
	return verbose
}

// loadConfig loads the device configuration honoring --config.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
