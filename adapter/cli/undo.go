package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/diaguru/diaguru/internal/app"
	"github.com/diaguru/diaguru/internal/scheduling/application/commands"
	"github.com/diaguru/diaguru/pkg/config"
)

func newUndoCommand() *cobra.Command {
	var (
		userFlag string
		tzOffset int
	)
	cmd := &cobra.Command{
		Use:   "undo <plan-id>",
		Short: "Revert every action of a scheduling run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid plan id: %w", err)
			}
			userID, err := uuid.Parse(userFlag)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			container, err := app.NewContainer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer container.Close()

			result, err := container.Undo.Handle(cmd.Context(), commands.UndoPlanCommand{
				PlanID:           planID,
				UserID:           userID,
				UTCOffsetMinutes: tzOffset,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "undone plan %s, reverted %d capture(s)\n",
				result.Plan.ID(), len(result.RevertedCaptures))
			return nil
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "user id (required)")
	cmd.Flags().IntVar(&tzOffset, "utc-offset", 0, "UTC offset in minutes")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
