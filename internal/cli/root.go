// Package cli implements the witdeps command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/wippyai/witdeps/bindings"
	"github.com/wippyai/witdeps/component"
	"github.com/wippyai/witdeps/compose"
	"github.com/wippyai/witdeps/config"
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/fetch"
	"github.com/wippyai/witdeps/manifest"
	"github.com/wippyai/witdeps/pipeline"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RootOptions holds global flags and the state shared by subcommands.
type RootOptions struct {
	Verbose  bool
	Manifest string

	// Interactive reports whether prompts may be shown. Tests leave it false.
	Interactive func() bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand creates the witdeps command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Interactive: stdinIsTerminal})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "witdeps",
		Short: "Compose Wasm component dependencies into an application",
		Long: `witdeps imports interfaces exported by other Wasm components into a
component of a spin.toml application. It records the dependency in the
manifest, merges the interfaces into .wit/components/<id>/deps.wit and
generates bindings for the component's language.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Manifest, "manifest", "", "path to spin.toml (default: search upwards)")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewBindingsCommand(opts))
	return cmd
}

func (o *RootOptions) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	o.cfg = cfg

	logger, err := newLogger(o.Verbose, cfg.LogLevel)
	if err != nil {
		return err
	}
	o.logger = logger
	component.SetLogger(logger.Named("component"))
	compose.SetLogger(logger.Named("compose"))
	manifest.SetLogger(logger.Named("manifest"))
	fetch.SetLogger(logger.Named("fetch"))
	bindings.SetLogger(logger.Named("bindings"))
	pipeline.SetLogger(logger.Named("pipeline"))
	return nil
}

func newLogger(verbose bool, level string) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Name(level).
			Detail("unknown log level").
			Cause(err).
			Build()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	return zc.Build()
}

// manifestPath resolves --manifest, or searches from the working directory.
func (o *RootOptions) manifestPath() (string, error) {
	if o.Manifest != "" {
		return o.Manifest, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.IO("getwd", ".", err)
	}
	return manifest.Find(wd)
}

func (o *RootOptions) projector() *bindings.Projector {
	p := bindings.NewProjector()
	if o.cfg != nil {
		p.Known = o.cfg.Known
	}
	return p
}

func (o *RootOptions) interactive() bool {
	return o.Interactive != nil && o.Interactive()
}
