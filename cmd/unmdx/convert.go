package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/druarnfield/unmdx"
)

var errPipelineHadErrors = errors.New("conversion produced one or more errors")

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "convert an MDX query to DAX",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write DAX to this file instead of stdout"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
			&cli.StringFlag{Name: "optimization-level", Usage: "none|conservative|moderate|aggressive"},
			&cli.BoolWithInverseFlag{Name: "use-linter", Usage: "run the linter before emitting DAX", Value: true},
		},
		Action: runConvert,
	}
}

func runConvert(ctx context.Context, cmd *cli.Command) error {
	text, dir, err := readInput(cmd.Args().First())
	if err != nil {
		return usageError{err}
	}

	cfg := loadConfigWithDir(dir)
	applyCommonFlags(cfg, cmd)

	var result *unmdx.Result
	if cmd.Bool("use-linter") {
		result = unmdx.MDXToDAX(text, cfg)
	} else {
		q, bag := unmdx.ParseMDX(text, cfg)
		daxText, generateBag := unmdx.GenerateDAX(q, cfg)
		bag.Merge(generateBag)
		result = &unmdx.Result{DAX: daxText, IR: q, Diagnostics: bag}
	}
	printDiagnostics(os.Stderr, result.Diagnostics)

	if err := writeOutput(cmd.String("output"), result.DAX); err != nil {
		return err
	}

	if result.Diagnostics.HasErrors() {
		return errPipelineHadErrors
	}
	return nil
}

// readInput reads MDX text from path, or stdin when path is empty or "-".
// It also returns the directory to start config discovery from.
func readInput(path string) (text string, configDir string, err error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		wd, _ := os.Getwd()
		return string(data), wd, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), filepath.Dir(path), nil
}

func writeOutput(path, content string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprint(os.Stdout, content)
		return err
	}
	return os.WriteFile(filepath.Clean(path), []byte(content), 0o644) //nolint:gosec
}
