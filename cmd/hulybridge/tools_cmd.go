package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pkt.systems/hulybridge/mcp"
)

func newToolsCommand() *cobra.Command {
	var readOnly bool
	var maxContent string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the MCP tools/list response as JSON without contacting the platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mcp.Config{ReadOnly: readOnly}
			if maxContent != "" {
				size, err := humanize.ParseBytes(maxContent)
				if err != nil {
					return fmt.Errorf("parse --max-content: %w", err)
				}
				cfg.MaxContentBytes = int64(size)
			}
			out, err := mcp.BuildToolsListResponseJSON(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "list only the read-only tool set")
	cmd.Flags().StringVar(&maxContent, "max-content", "", "content size limit rendered into tool descriptions")
	return cmd
}
