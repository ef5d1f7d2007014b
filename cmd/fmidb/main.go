package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	output     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "fmidb",
		Short:        "fmidb - FMI metadata database access",
		Long:         "Query the radon, neons, CLDB and verif metadata databases through pooled, caching repositories",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(
		queryCmd(),
		execCmd(),
		procCmd(),
		producerCmd(),
		geometryCmd(),
		stationCmd(),
		stationsCmd(),
		latestCmd(),
		serveCmd(),
		stressCmd(),
		cacheCmd(),
		backendsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
