package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newEvalCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression in the target's main frame",
		Args:  cobra.ExactArgs(1),
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
			res, err := main.Evaluate(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}
			cmd.Println(string(out))
			return nil
		},
	}
}
