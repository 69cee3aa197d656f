// Command cmap is the CLI harness for the combinatorial-map core: it
// validates and inspects serialized maps, runs a small concurrent sew/
// relaxation benchmark, and manages a disk-backed snapshot cache. None of
// this logic lives in pkg/cmap itself — the core library performs no I/O.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/cmap/pkg/config"
	"github.com/cuemby/cmap/pkg/log"
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool
	cfg      config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "cmap",
	Short:   "Inspect, validate, and benchmark combinatorial maps",
	Version: "0.1.0",
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON logs instead of console-formatted")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(cacheCmd)
}

func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cmap: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded
	if logLevel != "" {
		cfg.LogLevel = log.Level(logLevel)
	}
	if logJSON {
		cfg.LogJSON = true
	}
}

func initLogging() {
	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
}
