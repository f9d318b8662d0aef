package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Devam42/Microfirst/cmd/microfirst/internal/build"
	"github.com/Devam42/Microfirst/cmd/microfirst/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(build.String())
		if IsVerbose() {
			fmt.Printf("  go:     %s\n", runtime.Version())
			if path, err := config.DefaultPath(); err == nil {
				fmt.Printf("  config: %s\n", path)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
