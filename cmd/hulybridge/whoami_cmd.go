package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/hulybridge"
	"pkt.systems/hulybridge/client"
)

type whoamiOutput struct {
	BaseURL   string `yaml:"base-url"`
	Accounts  string `yaml:"accounts-url"`
	Endpoint  string `yaml:"endpoint"`
	Workspace string `yaml:"workspace"`
	Account   string `yaml:"account"`
	FilesURL  string `yaml:"files-url,omitempty"`
	UploadURL string `yaml:"upload-url,omitempty"`
}

func newWhoamiCommand(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Authenticate against the platform and print the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, logger, err := env.load()
			if err != nil {
				return err
			}
			cli, err := hulybridge.NewClient(cfg, logger)
			if err != nil {
				return err
			}
			defer cli.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTPTimeout)
			defer cancel()
			if err := cli.EnsureAuthenticated(ctx); err != nil {
				return fmt.Errorf("whoami (%s): %w", client.ErrorCode(err), err)
			}
			info := cli.Session()
			data, err := yaml.Marshal(whoamiOutput{
				BaseURL:   info.BaseURL,
				Accounts:  info.AccountsURL,
				Endpoint:  info.Endpoint,
				Workspace: info.Workspace,
				Account:   string(info.Account),
				FilesURL:  info.FilesURL,
				UploadURL: info.UploadURL,
			})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
