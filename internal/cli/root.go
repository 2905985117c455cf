package cli

import (
	"github.com/dealpop/dashboard/config"
	"github.com/dealpop/dashboard/internal/infrastructure/local"
	"github.com/dealpop/dashboard/internal/logging"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command. The app is built once the selected
// command runs, so version and help work without a config.
func NewRootCmd(version string) *cobra.Command {
	var app *App

	rootCmd := &cobra.Command{
		Use:   "dealpop",
		Short: "DealPop dashboard - price tracking and alerts",
		Long: `DealPop tracks product prices captured by the browser extension and
alerts you when they drop below your target.

It talks to the DealPop backend when one is configured and reachable, and
otherwise runs on a local store seeded with demo data.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Log.Level = "debug"
			}

			logger := logging.New(logging.Config{
				Level:      cfg.Log.Level,
				Console:    cfg.Log.Console,
				File:       cfg.Log.File,
				FilePath:   cfg.Log.Path,
				MaxSize:    cfg.Log.MaxSize,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAge:     cfg.Log.MaxAge,
			}, cmd.ErrOrStderr())

			app, err = NewApp(cfg, logger, version)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				app.Close()
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./config.yaml or ~/.config/dealpop/config.yaml)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("email", local.DemoUserEmail, "account email for commands that read user data")
	rootCmd.PersistentFlags().String("password", "demo", "account password")

	getApp := func() *App { return app }
	rootCmd.AddCommand(newVersionCmd(version))
	rootCmd.AddCommand(newServeCmd(getApp))
	rootCmd.AddCommand(newProductsCmd(getApp))
	rootCmd.AddCommand(newAlertsCmd(getApp))
	rootCmd.AddCommand(newProbeCmd(getApp))

	return rootCmd
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"version": version})
			}
			output.Printf("DealPop dashboard v%s\n", version)
			return nil
		},
	}
}

func newProbeCmd(getApp func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Show which backends are in use",
		Long:  "Probes the live backend once and reports whether data and identity calls use it or the local fallback.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp()
			output := NewOutput(cmd)
			data := app.Data.Decision(cmd.Context())
			identity := app.Identity.Decision(cmd.Context())

			if output.IsJSON() {
				return output.JSON(map[string]any{"data": data, "identity": identity})
			}
			for _, row := range []struct {
				name     string
				fallback bool
				reason   string
			}{
				{"data", data.UsingFallback, data.Reason},
				{"identity", identity.UsingFallback, identity.Reason},
			} {
				if row.fallback {
					output.Warning("%-9s fallback (%s)", row.name, row.reason)
				} else {
					output.Success("%-9s live", row.name)
				}
			}
			return nil
		},
	}
}

// signIn starts a session with the --email and --password flags
func signIn(cmd *cobra.Command, app *App) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	user, err := app.SignIn(cmd.Context(), email, password)
	if err != nil {
		return err
	}
	app.Logger.Debug().Str("user_id", user.ID).Msg("Signed in")
	return nil
}
