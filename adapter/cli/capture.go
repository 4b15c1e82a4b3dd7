package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/diaguru/diaguru/internal/app"
	"github.com/diaguru/diaguru/internal/scheduling/application/commands"
	"github.com/diaguru/diaguru/pkg/config"
)

func newCaptureCommand() *cobra.Command {
	var (
		userFlag   string
		tzOffset   int
		timezone   string
	)
	cmd := &cobra.Command{
		Use:   "capture [text...]",
		Short: "Ingest a task from natural language",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			capture, err := container.Ingest.Handle(cmd.Context(), commands.IngestCaptureCommand{
				UserID:           userID,
				Content:          strings.Join(args, " "),
				Timezone:         timezone,
				UTCOffsetMinutes: tzOffset,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "captured %s kind=%s constraint=%s\n",
				capture.ID(), capture.Kind, capture.ConstraintType)
			return nil
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "user id (required)")
	cmd.Flags().IntVar(&tzOffset, "utc-offset", 0, "UTC offset in minutes")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone name for extraction")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
