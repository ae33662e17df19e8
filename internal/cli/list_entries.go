/*
PURPOSE:
  Defines the 'list-entries' subcommand.
  Helps debug connectivity and credentials before a full run.

REQUIREMENTS:
  User-specified:
  - List the task entries visible to the configured account.

  Implementation-discovered:
  - Useful validation step before full run: exercises login and bearer auth only.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Login(), Client.Get()

ERROR HANDLING:
  - Returns error if login fails or the list call is rejected.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  todo-prober list-entries --base-url ...

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/client.go

MAINTENANCE:
  - None.
*/

package cli

import (
	"fmt"

	"github.com/daryltucker/todo-prober/internal/engine"
	"github.com/daryltucker/todo-prober/internal/model"
	"github.com/spf13/cobra"
)

func newListEntriesCmd(root *rootOptions) *cobra.Command {
	f := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "list-entries",
		Short: "Log in and list the task entries on the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, f)
			if err != nil {
				return err
			}

			client, err := engine.Login(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			resp, err := client.Get(cmd.Context(), engine.EntriesPath, nil)
			if err != nil {
				return err
			}
			if resp.StatusCode != 200 {
				return fmt.Errorf("list entries: status %d: %s", resp.StatusCode, string(resp.Body))
			}

			var entries []model.TaskEntry
			if err := resp.Decode(&entries); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Querying %s...\n", cfg.BaseURL)
			for _, e := range entries {
				fmt.Fprintf(out, "- %s [%s] %s\n", e.ID, e.Status, e.Title)
			}
			fmt.Fprintf(out, "%d entries\n", len(entries))
			return nil
		},
	}

	f.addTarget(cmd)
	return cmd
}
