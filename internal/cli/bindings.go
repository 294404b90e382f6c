package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/wippyai/witdeps/bindings"
	"github.com/wippyai/witdeps/pipeline"
)

// NewBindingsCommand creates the bindings command, which regenerates
// bindings from the persisted dependency descriptors.
func NewBindingsCommand(root *RootOptions) *cobra.Command {
	var id, lang string
	cmd := &cobra.Command{
		Use:   "bindings",
		Short: "Regenerate bindings for components with dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eco, err := parseLang(lang)
			if err != nil {
				return err
			}
			path, err := root.manifestPath()
			if err != nil {
				return err
			}
			results, err := pipeline.Bindings(cmd.Context(), pipeline.BindingsOptions{
				Projector:    root.projector(),
				Component:    id,
				Ecosystem:    eco,
				ManifestPath: path,
			})
			for _, res := range results {
				printBindings(cmd.OutOrStdout(), "", res)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&id, "component", "c", "", "component id (default: every component with dependencies)")
	cmd.Flags().StringVar(&lang, "lang", "", "binding language (rust|ts|go); detected when empty")
	return cmd
}

func printBindings(w io.Writer, id string, res *bindings.Result) {
	label := string(res.Ecosystem) + " bindings"
	if id != "" {
		label += " for " + id
	}
	fmt.Fprintln(w, titleStyle.Render(label))
	for _, f := range res.Files {
		fmt.Fprintf(w, "  %s\n", pathStyle.Render(f))
	}
}
