package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"pce/config"
)

var (
	configPath string
	cfg        *config.Config

	rootCmd = &cobra.Command{
		Use:   "pce",
		Short: "Path computation engine for ROADM/WDM/OTN networks",
		Long: `pce computes wavelength-continuous paths between transponders
over an optical topology, for single requests, batches or as an etcd worker.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading configuration failed: %w", err)
			}
			cfg = loaded
			return setupLogging(cfg.Log)
		},
	}
)

func setupLogging(c config.LogConfig) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create log dir %s: %w", c.Dir, err)
	}
	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(c.Dir, c.File),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}

	// stdout carries compute and batch output
	log.SetOutput(io.MultiWriter(os.Stderr, fileLogger))
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	log.SetLevel(level)

	log.Debugf("Logging initialized: file=%s, level=%s", fileLogger.Filename, level)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to pce_config.toml")
	rootCmd.AddCommand(computeCmd, batchCmd, submitCmd, serveCmd, feasibilityStubCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Errorf("pce: %v", err)
		os.Exit(1)
	}
}
