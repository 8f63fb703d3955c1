package main

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/regdetect/adaptive"
	"github.com/hazyhaar/regdetect/formdetect"
	"github.com/hazyhaar/regdetect/internal/config"
	"github.com/hazyhaar/regdetect/kvstore"
)

// app holds what every subcommand shares once the root has run.
type app struct {
	cfgPath  string
	logLevel string
	envFiles []string
	noColor  bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "regdetect",
		Short:         "Detect US government business-registration forms",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "path to regdetect.yaml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", []string{".env"}, ".env files to load (missing ones are ignored)")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newDetectCmd(a), newWatchCmd(a), newMCPCmd(a), newHistoryCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(a.cfgPath, a.envFiles...)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		if _, err := config.ParseLevel(a.logLevel); err != nil {
			return err
		}
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(a.logger)
	if a.noColor {
		color.NoColor = true
	}
	return nil
}

// openHistory opens the configured store and the adaptive history over it.
// The returned close function releases the store.
func (a *app) openHistory() (adaptive.History, func() error, error) {
	if a.cfg.Adaptive.Mode == "off" {
		return adaptive.Nop{}, func() error { return nil }, nil
	}
	kv, err := kvstore.Open(a.cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	return adaptive.FromConfig(a.cfg.Adaptive, kv, a.logger), kv.Close, nil
}

func (a *app) engine(history formdetect.HistoryAdvisor) (*formdetect.Engine, error) {
	return formdetect.FromConfig(a.cfg, history, a.logger)
}
