package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/parsonage-engine/api"
	"github.com/warp/parsonage-engine/property"
	"github.com/warp/parsonage-engine/sweep"
)

// =============================================================================
// SERVE
// =============================================================================

func serveCmd(opts *options) *cobra.Command {
	var port int
	var interval time.Duration
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sweep scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			scheduler := api.NewSweepScheduler(a.coord, a.log)
			scheduler.Interval = interval
			scheduler.Enabled = !noScheduler

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", port),
				Handler:      api.NewRouter(api.NewHandler(a.coord, a.log)),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("server starting", zap.Int("port", port))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			scheduler.Start()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-errCh:
				scheduler.Stop()
				return fmt.Errorf("server failed: %w", err)
			}

			a.log.Info("shutting down")
			scheduler.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			a.log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "Time between scheduled sweeps")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Serve the API without scheduled sweeps")
	return cmd
}

// =============================================================================
// ONE-SHOT COMMANDS
// =============================================================================

func sweepCmd(opts *options) *cobra.Command {
	var scopeName string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := sweep.ParseScope(scopeName)
			if err != nil {
				return err
			}
			a, err := open(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.coord.RunSweep(cmd.Context(), scope)
			if report != nil {
				if perr := printJSON(cmd, report); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&scopeName, "scope", "all", "payments, bookings or all")
	return cmd
}

func lateFeeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "late-fee [payment-id]",
		Short: "Assess the late fee on one payment now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			fee, err := a.coord.AssessLateFee(cmd.Context(), property.RecordID(args[0]))
			if err != nil {
				return err
			}
			if fee == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no late fee applies to %s\n", args[0])
				return nil
			}
			return printJSON(cmd, fee)
		},
	}
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status [record-id]",
		Short: "Print the derived status of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.coord.GetStatus(cmd.Context(), property.RecordID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
}

func seedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Replace the store's contents with the sample property",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := api.LoadSample(cmd.Context(), a.store, a.coord.Clock.Today(), a.settings.Config)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
