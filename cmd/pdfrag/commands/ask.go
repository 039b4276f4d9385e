package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pdfrag/internal/assembler"
)

type askSource struct {
	Kind    string  `json:"kind"`
	Page    int     `json:"page"`
	Content string  `json:"content"`
	ImageID string  `json:"image_id,omitempty"`
	Score   float64 `json:"score"`
}

func newAskCmd(g *globals) *cobra.Command {
	var (
		topK   int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ask <file.pdf> <question>",
		Short: "Answer one question about a PDF",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if topK < 0 {
				return fmt.Errorf("--top-k must not be negative, got %d", topK)
			}
			ctx := cmd.Context()
			svc, err := buildService(ctx, g.cfg, true)
			if err != nil {
				return err
			}
			built, err := svc.Index(ctx, args[0])
			if err != nil {
				return fmt.Errorf("indexing %s: %w", args[0], err)
			}
			defer built.Close()

			ans, err := svc.Answer(ctx, built, args[1], topK)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				sources := make([]askSource, 0, len(ans.Sources))
				for _, r := range ans.Sources {
					sources = append(sources, askSource{
						Kind: r.Record.Kind.String(), Page: r.Record.Page,
						Content: r.Record.Content, ImageID: r.Record.ImageID, Score: r.Score,
					})
				}
				data, err := json.MarshalIndent(struct {
					Question string      `json:"question"`
					Answer   string      `json:"answer"`
					Sources  []askSource `json:"sources"`
				}{ans.Question, ans.Text, sources}, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling JSON: %w", err)
				}
				fmt.Fprintf(out, "%s\n", data)
				return nil
			}

			fmt.Fprintf(out, "%s\n\nSources:\n", ans.Text)
			for _, line := range assembler.Summarize(ans.Sources) {
				fmt.Fprintf(out, "  - %s\n", line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of records to retrieve (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")
	return cmd
}
