package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/intervu-client/pkg/markdown"
)

func newRenderCmd(_ *app) *cobra.Command {
	var css bool

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render markdown to sanitized HTML",
		Long:  "Render markdown from file, or stdin when no file is given, the way answers are shown in the app.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if css {
				return markdown.WriteStyleSheet(out)
			}

			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			src, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read markdown: %w", err)
			}
			_, err = out.Write(markdown.RenderBytes(src))
			return err
		},
	}

	cmd.Flags().BoolVar(&css, "css", false, "print the code highlighting stylesheet instead")
	return cmd
}
