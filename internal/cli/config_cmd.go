package cli

import (
	"github.com/daryltucker/todo-prober/internal/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	f := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration after file, env and flag overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, f)
			if err != nil {
				return err
			}

			shown := *cfg
			shown.Credentials.Password = output.Redact(cfg.Credentials.Password)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&shown); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	f.addTarget(cmd)
	f.addRateLimit(cmd)
	return cmd
}
