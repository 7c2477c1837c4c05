package main

import (
	"encoding/json"
	"strings"

	"github.com/smallbiznis/replyflow/internal/compiler"
	"github.com/smallbiznis/replyflow/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCompileCmd() *cobra.Command {
	var pro bool

	cmd := &cobra.Command{
		Use:   "compile <prompt>",
		Short: "Print the automation a prompt compiles to, without saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(args[0])

			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			c := compiler.New(compiler.Params{Config: config.Load(), Log: log})
			spec := c.Compile(cmd.Context(), prompt, pro)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(spec)
		},
	}
	cmd.Flags().BoolVar(&pro, "pro", false, "compile as a PRO user (allows SMARTAI listeners)")
	return cmd
}
