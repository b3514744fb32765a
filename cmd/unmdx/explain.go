package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/druarnfield/unmdx"
)

func explainCommand() *cli.Command {
	return &cli.Command{
		Name:      "explain",
		Usage:     "explain an MDX query's meaning",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write explanation to this file instead of stdout"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "sql|natural|json|markdown"},
			&cli.StringFlag{Name: "detail", Aliases: []string{"d"}, Usage: "minimal|standard|detailed"},
			&cli.BoolFlag{Name: "include-dax", Usage: "embed the DAX translation (markdown format)"},
			&cli.StringFlag{Name: "optimization-level", Usage: "none|conservative|moderate|aggressive"},
			&cli.BoolWithInverseFlag{Name: "use-linter", Usage: "run the linter before explaining", Value: true},
		},
		Action: runExplain,
	}
}

func runExplain(ctx context.Context, cmd *cli.Command) error {
	text, dir, err := readInput(cmd.Args().First())
	if err != nil {
		return usageError{err}
	}

	cfg := loadConfigWithDir(dir)
	applyCommonFlags(cfg, cmd)

	q, bag := unmdx.ParseMDX(text, cfg)
	if cmd.Bool("use-linter") {
		optimized, optimizeBag := unmdx.OptimizeIR(q, cfg)
		q = optimized
		bag.Merge(optimizeBag)
	}

	explanation, explainBag := unmdx.ExplainIR(q, cfg)
	bag.Merge(explainBag)
	printDiagnostics(os.Stderr, bag)

	if err := writeOutput(cmd.String("output"), explanation); err != nil {
		return err
	}

	if bag.HasErrors() {
		return errPipelineHadErrors
	}
	return nil
}
