// Command forecastctl fetches and prints the forecast dashboard and manages
// the saved settings from a terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-display/internal/app"
	"github.com/kjstillabower/weather-forecast-display/internal/config"
	"github.com/kjstillabower/weather-forecast-display/internal/observability"
	"github.com/kjstillabower/weather-forecast-display/internal/render"
	"github.com/kjstillabower/weather-forecast-display/internal/validation"
)

// rootOptions holds the persistent flags of one command tree.
type rootOptions struct {
	configDir string
	verbose   bool
	asJSON    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "forecastctl",
		Short:         "Weather forecast dashboard",
		Long:          "Fetch the OpenWeatherMap forecast for a location and print the dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configDir, "config-dir", "c", "", "directory holding .env and config/ (default: working directory)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to stderr")
	rootCmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(showCmd(opts))
	rootCmd.AddCommand(settingsCmd(opts))
	return rootCmd
}

func showCmd(opts *rootOptions) *cobra.Command {
	var lat, lon string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the forecast dashboard",
		Long:  "Resolve a location (flags, saved preference, then configured default) and print its dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			coords, err := validation.ParseCoordinates(lat, lon)
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Service.Dashboard(ctx, coords, refresh)
				if err != nil {
					return fmt.Errorf("build dashboard: %w", err)
				}
				if opts.asJSON {
					return printJSON(cmd.OutOrStdout(), d)
				}
				return render.NewText().Render(cmd.OutOrStdout(), d)
			})
		},
	}
	cmd.Flags().StringVar(&lat, "lat", "", "latitude in decimal degrees")
	cmd.Flags().StringVar(&lon, "lon", "", "longitude in decimal degrees")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache and fetch upstream")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
	return cmd
}

func settingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show saved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Service.Settings(ctx)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return printJSON(cmd.OutOrStdout(), s)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "First launch: %t\n", s.FirstLaunch)
				fmt.Fprintf(out, "API key set:  %t\n", s.HasAPIKey)
				if s.HasLocation {
					fmt.Fprintf(out, "Location:     %s\n", s.CityName)
				} else {
					fmt.Fprintln(out, "Location:     none saved")
				}
				if !s.LastUpdate.IsZero() {
					fmt.Fprintf(out, "Last update:  %s\n", s.LastUpdate.Format("2006-01-02 15:04:05"))
				}
				fmt.Fprintf(out, "Data expired: %t\n", s.DataExpired)
				return nil
			})
		},
	}
	cmd.AddCommand(apiKeyCmd(opts))
	return cmd
}

func apiKeyCmd(opts *rootOptions) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "api-key <key>",
		Short: "Save the OpenWeatherMap API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := validation.ValidateAPIKey(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Service.SetAPIKey(ctx, key); err != nil {
					return err
				}
				if check {
					if err := a.Service.CheckAPIKey(ctx); err != nil {
						return fmt.Errorf("key saved but rejected upstream: %w", err)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "API key saved.")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "validate the key against the upstream API after saving")
	return cmd
}

// withApp loads configuration, wires the stack without publishing and runs fn
// until it returns or the process is interrupted.
func (o *rootOptions) withApp(parent context.Context, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := observability.NewConsoleLogger(o.verbose)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = observability.FlushTelemetry(context.Background(), logger) }()

	cfg, err := o.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := app.New(ctx, cfg, logger, app.Options{DisablePublish: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()
	return fn(ctx, a)
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configDir == "" {
		return config.Load()
	}
	return config.LoadFrom(o.configDir)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
