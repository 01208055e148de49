package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/nft-marketplace/client/internal/app"
	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/services"
	"github.com/spf13/cobra"
)

var (
	output  string
	verbose bool
)

var (
	okf    = color.New(color.FgGreen).SprintFunc()
	warnf  = color.New(color.FgYellow).SprintFunc()
	errorf = color.New(color.FgRed, color.Bold).SprintFunc()
	dimf   = color.New(color.Faint).SprintFunc()
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "marketctl",
		Short:         "NFT marketplace client",
		Long:          "marketctl connects a wallet to the marketplace, browses collections and uploads new ones.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newLayersCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newSwitchCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newCollectionsCmd())
	rootCmd.AddCommand(newListableCmd())
	rootCmd.AddCommand(newPriceCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newProgressCmd())
	rootCmd.AddCommand(newCreateCmd())

	return rootCmd
}

// withApp builds the client for one command and cancels it on Ctrl-C.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	level := "warn"
	if verbose {
		level = "debug"
	}
	log, err := app.NewLogger(level)
	if err != nil {
		return err
	}
	defer log.Sync()
	cfg.Validate(log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// requireSession restores the persisted session and fails without one.
func requireSession(ctx context.Context, a *app.App) error {
	sess, err := a.Sessions.Restore(ctx)
	if err != nil {
		return err
	}
	if !sess.Authenticated || sess.CurrentUserLayer == nil {
		return fmt.Errorf("%w: run 'marketctl login --layer <id>' first", services.ErrNotAuthenticated)
	}
	return nil
}

func jsonOutput() bool {
	return output == "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
