package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/redhatinsights/envconfig/internal/conf"
	"github.com/redhatinsights/envconfig/internal/l10n"
	"github.com/redhatinsights/envconfig/internal/logging"
	"github.com/redhatinsights/envconfig/internal/reconcile"
	"github.com/redhatinsights/envconfig/internal/source"
)

const (
	environmentFlag = "environment"
	configPathFlag  = "config-path"
	verboseFlag     = "verbose"
)

// settings resolved in beforeAction.
var settings conf.Config

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		// Runtime failures are already logged by mainAction.
		var exitErr cli.ExitCoder
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:            "envconfig",
		Usage:           l10n.T("update configuration files of the current host from the bundled templates"),
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     environmentFlag,
				Aliases:  []string{"env"},
				Usage:    l10n.T("Environment catalog name to use overriding property files from"),
				Required: true,
			},
			&cli.StringFlag{
				Name:     configPathFlag,
				Aliases:  []string{"cp"},
				Usage:    l10n.T("Config path, where destination property files reside"),
				Required: true,
			},
			&cli.BoolFlag{
				Name:    verboseFlag,
				Aliases: []string{"v"},
				Usage:   l10n.T("Prints detailed messages"),
			},
		},
		Before: beforeAction,
		Action: mainAction,
		// Errors are reported once, by main.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// beforeAction loads envconfig's own settings and sets up logging.
func beforeAction(c *cli.Context) error {
	config, err := conf.DefaultSource().Read()
	if err != nil {
		return fmt.Errorf("%s: %w", l10n.T("cannot read envconfig settings"), err)
	}
	if c.Bool(verboseFlag) {
		config.LogLevel = slog.LevelDebug
	}
	logging.Setup(config.LogLevel)
	settings = config
	return nil
}

func mainAction(c *cli.Context) error {
	environment := c.String(environmentFlag)
	configPath := c.String(configPathFlag)

	bundle, err := source.Open(settings.Bundle, settings.TempDir)
	if err != nil {
		slog.Error("cannot perform config update", "error", err, "bundle", settings.Bundle)
		return cli.Exit("", 1)
	}
	defer func() {
		if err := bundle.Cleanup(); err != nil {
			slog.Warn("failed to clean up source files", "error", err)
		}
	}()

	var provider source.Provider = bundle
	if !c.Bool(verboseFlag) && term.IsTerminal(int(os.Stderr.Fd())) {
		provider = &progressProvider{Provider: bundle, suffix: l10n.T(" Preparing configuration bundle...")}
	}

	result, err := reconcile.New(provider).ReconcileEnvironment(environment, configPath)
	if err != nil {
		slog.Error("cannot perform config update", "error", err, "environment", environment, "path", configPath)
		if errors.Is(err, reconcile.ErrInvalidArgument) || errors.Is(err, reconcile.ErrInvalidState) {
			_ = cli.ShowAppHelp(c)
		}
		return cli.Exit("", 1)
	}

	n := countFiles(result)
	fmt.Fprintln(c.App.Writer, l10n.TN("%d configuration file updated", "%d configuration files updated", uint32(n), n))
	return nil
}

// countFiles returns the number of distinct destination files written.
func countFiles(result reconcile.Result) int {
	files := make(map[string]bool)
	for _, f := range result.Seeded {
		files[f] = true
	}
	for _, f := range result.Merged {
		files[f] = true
	}
	return len(files)
}

// progressProvider shows a spinner on stderr while the source files are
// being prepared.
type progressProvider struct {
	source.Provider
	suffix string
}

func (p *progressProvider) PrepareSourceFiles() (string, error) {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = p.suffix
	s.Start()
	defer s.Stop()

	return p.Provider.PrepareSourceFiles()
}
