package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wippyai/witdeps/bindings"
	"github.com/wippyai/witdeps/component"
	"github.com/wippyai/witdeps/fetch"
	"github.com/wippyai/witdeps/pipeline"
)

// AddOptions holds the flags shared by the add subcommands.
type AddOptions struct {
	Component  string
	Interfaces []string
	All        bool
	NoBindings bool
	Lang       string
}

// NewAddCommand creates the add command and its source subcommands.
func NewAddCommand(root *RootOptions) *cobra.Command {
	opts := &AddOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Import interfaces of a component into one of the application's components",
	}

	cmd.PersistentFlags().StringVarP(&opts.Component, "component", "c", "", "target component id")
	cmd.PersistentFlags().StringArrayVarP(&opts.Interfaces, "interface", "i", nil, "interface or package to import (repeatable)")
	cmd.PersistentFlags().BoolVar(&opts.All, "all", false, "import every exported interface")
	cmd.PersistentFlags().BoolVar(&opts.NoBindings, "no-bindings", false, "skip binding generation")
	cmd.PersistentFlags().StringVar(&opts.Lang, "lang", "", "binding language (rust|ts|go); detected when empty")

	cmd.AddCommand(newAddLocalCommand(root, opts))
	cmd.AddCommand(newAddHTTPCommand(root, opts))
	cmd.AddCommand(newAddRegistryCommand(root, opts))
	return cmd
}

func newAddLocalCommand(root *RootOptions, opts *AddOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "local <path>",
		Short: "Add a component from a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, root, opts, fetch.Local{Path: args[0]})
		},
	}
}

func newAddHTTPCommand(root *RootOptions, opts *AddOptions) *cobra.Command {
	var digest string
	cmd := &cobra.Command{
		Use:   "http <url>",
		Short: "Add a component downloaded over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := root.cfg.Cache()
			if err != nil {
				return err
			}
			return runAdd(cmd, root, opts, fetch.HTTP{Cache: cache, URL: args[0], Digest: digest})
		},
	}
	cmd.Flags().StringVar(&digest, "digest", "", "expected sha256 digest of the component")
	_ = cmd.MarkFlagRequired("digest")
	return cmd
}

func newAddRegistryCommand(root *RootOptions, opts *AddOptions) *cobra.Command {
	var version, registry string
	cmd := &cobra.Command{
		Use:   "registry <namespace:name>",
		Short: "Add a component published to a registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := root.cfg.Cache()
			if err != nil {
				return err
			}
			return runAdd(cmd, root, opts, fetch.Registry{
				Cache:      cache,
				Package:    args[0],
				Constraint: version,
				Registry:   registry,
				Default:    root.cfg.Registry,
			})
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version requirement, such as ^1.2")
	cmd.Flags().StringVar(&registry, "registry", "", "registry host (default from WITDEPS_REGISTRY)")
	return cmd
}

func (o *AddOptions) selector(interactive bool) pipeline.Selector {
	scripted := pipeline.Scripted{ComponentID: o.Component, Names: o.Interfaces, All: o.All}
	if interactive && !o.All && len(o.Interfaces) == 0 {
		return &Prompt{ComponentID: o.Component}
	}
	return scripted
}

func runAdd(cmd *cobra.Command, root *RootOptions, opts *AddOptions, src fetch.Source) error {
	eco, err := parseLang(opts.Lang)
	if err != nil {
		return err
	}
	path, err := root.manifestPath()
	if err != nil {
		return err
	}

	add := pipeline.AddOptions{
		Source:       src,
		Selector:     opts.selector(root.interactive()),
		Decode:       pipeline.Decoder(component.Options{ValidateCoreModules: root.cfg.ValidateCore}),
		Ecosystem:    eco,
		ManifestPath: path,
	}
	if !opts.NoBindings {
		add.Projector = root.projector()
	}

	res, err := pipeline.Add(cmd.Context(), add)
	if res != nil {
		printAdd(cmd.OutOrStdout(), res)
	}
	return err
}

func parseLang(lang string) (bindings.Ecosystem, error) {
	if lang == "" {
		return "", nil
	}
	return bindings.ParseEcosystem(lang)
}

func printAdd(w io.Writer, res *pipeline.AddResult) {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("added"), nameStyle.Render(res.Selection.String()))
	fmt.Fprintf(w, "  component  %s\n", res.Component)
	fmt.Fprintf(w, "  descriptor %s\n", res.Descriptor)
	fmt.Fprintf(w, "  imports    %s\n", strings.Join(res.Imports, ", "))
	if res.Bindings != nil {
		printBindings(w, res.Component, res.Bindings)
	}
}
