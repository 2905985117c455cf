package cli

import (
	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/usecase"
	"github.com/spf13/cobra"
)

func newAlertsCmd(getApp func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List price alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp()
			if err := signIn(cmd, app); err != nil {
				return err
			}
			output := NewOutput(cmd)

			alerts := app.Alerts.Alerts()
			if active, _ := cmd.Flags().GetBool("active"); active {
				alerts = app.Alerts.ActiveAlerts()
			}
			if output.IsJSON() {
				return output.JSON(map[string]any{"alerts": alerts, "stats": app.Alerts.Stats()})
			}
			if err := app.Alerts.Err(); err != nil {
				output.Error("Alerts could not be loaded: %v", err)
			}
			if len(alerts) == 0 {
				output.Dim("No alerts")
				return nil
			}
			for _, a := range alerts {
				output.Printf("%-36s %-40s %12s -> %-12s %s\n",
					a.ID, truncate(a.ProductName, 40),
					usecase.FormatPrice(a.CurrentPrice), usecase.FormatPrice(a.TargetPrice), a.Status)
			}
			return nil
		},
	}
	cmd.Flags().Bool("active", false, "only active alerts")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count alerts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp()
			if err := signIn(cmd, app); err != nil {
				return err
			}
			output := NewOutput(cmd)
			stats := app.Alerts.Stats()
			if output.IsJSON() {
				return output.JSON(stats)
			}
			output.Printf("total %d  active %d  triggered %d  dismissed %d  expired %d\n",
				stats.Total, stats.Active, stats.Triggered, stats.Dismissed, stats.Expired)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "history <alert-id>",
		Short: "Show the event history of an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp()
			if err := signIn(cmd, app); err != nil {
				return err
			}
			output := NewOutput(cmd)
			history, err := app.Alerts.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(history)
			}
			for _, h := range history {
				output.Printf("%s  %-9s %s", h.Timestamp.Local().Format("2006-01-02 15:04"), h.EventType, h.Message)
				if h.PriceChange != nil && h.PriceChangePercentage != nil {
					output.Printf("  %s", usecase.FormatPriceChangeMessage(*h.PriceChange, *h.PriceChangePercentage))
				}
				output.Println()
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dismiss <alert-id>",
		Short: "Dismiss an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp()
			if err := signIn(cmd, app); err != nil {
				return err
			}
			if err := app.Alerts.Dismiss(cmd.Context(), args[0]); err != nil {
				return err
			}
			NewOutput(cmd).Success("Alert %s dismissed (product %s)", args[0], domain.AlertStatusDismissed.ProductStatus())
			return nil
		},
	})

	return cmd
}
