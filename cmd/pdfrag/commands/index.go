package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "index <file.pdf>",
		Short: "Build the index for a PDF and print what went into it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := buildService(ctx, g.cfg, false)
			if err != nil {
				return err
			}
			built, err := svc.Index(ctx, args[0])
			if err != nil {
				return fmt.Errorf("indexing %s: %w", args[0], err)
			}
			defer built.Close()

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(struct {
					File     string `json:"file"`
					Stats    any    `json:"stats"`
					Overview string `json:"overview"`
				}{args[0], built.Stats, built.Overview}, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling JSON: %w", err)
				}
				fmt.Fprintf(out, "%s\n", data)
				return nil
			}
			s := built.Stats
			fmt.Fprintf(out, "Pages:          %d\n", s.Pages)
			fmt.Fprintf(out, "Text chunks:    %d\n", s.TextChunks)
			fmt.Fprintf(out, "Images:         %d\n", s.Images)
			fmt.Fprintf(out, "Skipped images: %d\n", s.SkippedImages)
			fmt.Fprintf(out, "Skipped chunks: %d\n", s.SkippedChunks)
			if built.Overview != "" {
				fmt.Fprintf(out, "\n%s\n", built.Overview)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print stats as JSON")
	return cmd
}
