package commands

import (
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pdfrag/internal/tui"
)

func newChatCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <file.pdf>",
		Short: "Index a PDF and chat with it in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := buildService(ctx, g.cfg, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Indexing %s...\n", args[0])
			built, err := svc.Index(ctx, args[0])
			if err != nil {
				return fmt.Errorf("indexing %s: %w", args[0], err)
			}
			defer built.Close()

			m := tui.New(documentChat{svc: svc, built: built}, filepath.Base(args[0]), built.Overview)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
}
