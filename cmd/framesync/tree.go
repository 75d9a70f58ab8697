package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/browserkit/framesync/common"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newTreeCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the target's current frame tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), root.opts.Timeout)
			defer cancel()

			conn, fm, err := root.connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			main := fm.MainFrame()
			if main == nil {
				return fmt.Errorf("target has no main frame")
			}
			printFrame(cmd, main, 0)
			return nil
		},
	}
}

func printFrame(cmd *cobra.Command, frame *common.Frame, depth int) {
	bold := color.New(color.Bold).SprintFunc()
	name := frame.Name()
	if name == "" {
		name = "-"
	}
	cmd.Printf("%s%s %s (name:%s origin:%s mime:%s)\n",
		strings.Repeat("  ", depth), bold(frame.ID()), frame.URL(),
		name, frame.SecurityOrigin(), frame.MimeType())
	for _, child := range frame.ChildFrames() {
		printFrame(cmd, child, depth+1)
	}
}
