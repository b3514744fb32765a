package main

import (
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/druarnfield/unmdx"
	"github.com/druarnfield/unmdx/emit/explain"
	"github.com/druarnfield/unmdx/internal/linter"
)

// loadConfigWithDir loads the nearest .unmdx.yaml/.unmdx.json walking up
// from dir, falling back to defaults if none is found.
func loadConfigWithDir(dir string) *unmdx.Config {
	cfg, err := unmdx.LoadConfig(dir)
	if err != nil {
		return unmdx.DefaultConfig()
	}
	return cfg
}

// applyCommonFlags layers CLI flags on top of cfg, giving flags precedence
// over whatever was loaded from a config file.
func applyCommonFlags(cfg *unmdx.Config, cmd *cli.Command) {
	if cmd.IsSet("optimization-level") {
		cfg.Linter.OptimizationLevel = linter.Level(cmd.String("optimization-level"))
	}
	if cmd.IsSet("use-linter") && !cmd.Bool("use-linter") {
		cfg.Linter.OptimizationLevel = linter.LevelNone
	}
	if cmd.IsSet("format") {
		cfg.Explanation.Format = explain.Format(cmd.String("format"))
	}
	if cmd.IsSet("detail") {
		cfg.Explanation.Detail = explain.Detail(cmd.String("detail"))
	}
	if cmd.IsSet("include-dax") {
		cfg.Explanation.IncludeDAXComparison = cmd.Bool("include-dax")
	}
	if cmd.IsSet("verbose") {
		cfg.Global.Debug = cmd.Bool("verbose")
	}
	if cfg.Global.Debug {
		if logger, err := zap.NewDevelopment(); err == nil {
			cfg.Logger = logger
		}
	}
}
