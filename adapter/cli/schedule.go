package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/diaguru/diaguru/internal/app"
	"github.com/diaguru/diaguru/internal/scheduling/application/commands"
	"github.com/diaguru/diaguru/pkg/config"
)

func newScheduleCommand() *cobra.Command {
	var (
		userFlag   string
		tzOffset   int
		reschedule bool
		complete   bool
		overlap    bool
	)
	cmd := &cobra.Command{
		Use:   "schedule <capture-id>",
		Short: "Place a capture on the calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			captureID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid capture id: %w", err)
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

			intent := commands.IntentSchedule
			if reschedule {
				intent = commands.IntentReschedule
			}
			if complete {
				intent = commands.IntentComplete
			}

			result, err := container.Schedule.Handle(cmd.Context(), commands.ScheduleCaptureCommand{
				CaptureID:        captureID,
				UserID:           userID,
				Intent:           intent,
				UTCOffsetMinutes: tzOffset,
				AllowOverlap:     overlap,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Decision != nil {
				fmt.Fprintf(out, "decision required: %s\n%s\n", result.Decision.Code, result.Decision.Message)
				return nil
			}
			c := result.Capture
			if c.PlannedStart != nil && c.PlannedEnd != nil {
				fmt.Fprintf(out, "%s %s -> %s", c.Status, c.PlannedStart.Format("2006-01-02 15:04"), c.PlannedEnd.Format("15:04"))
				if result.Plan != nil {
					fmt.Fprintf(out, " (plan %s, %s)", result.Plan.ID(), result.Plan.Summary)
				}
				fmt.Fprintln(out)
			} else {
				fmt.Fprintf(out, "%s\n", c.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "user id (required)")
	cmd.Flags().IntVar(&tzOffset, "utc-offset", 0, "UTC offset in minutes")
	cmd.Flags().BoolVar(&reschedule, "reschedule", false, "move an already scheduled capture")
	cmd.Flags().BoolVar(&complete, "complete", false, "mark the capture completed")
	cmd.Flags().BoolVar(&overlap, "overlap", false, "allow the placement to share time with soft events")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
