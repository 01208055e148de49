package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nft-marketplace/client/internal/app"
	"github.com/nft-marketplace/client/internal/events"
	"github.com/nft-marketplace/client/internal/services"
	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "create <manifest.yaml>",
		Short: "Create a collection from a manifest, pay for it and upload its files",
		Long: `Create a collection in one go from a YAML manifest:

  collection:
    name: Apes
    symbol: APE
    supply: 1000
  traits:
    traits_dir: ./traits
    metadata: ./metadata.json
  inscription:
    fee_rate: 12
    pay_from_wallet: true

Relative paths are resolved against the manifest's folder. Without
pay_from_wallet the order address is printed and the command waits for the
payment to be seen.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := services.LoadCollectionManifest(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				req, err := services.BuildUploadRequest(flow.Traits, "", "")
				if err != nil {
					return err
				}
				if err := services.ValidateUpload(req); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d trait files, %d metadata entries, %d one-of-ones\n",
					okf("✓"), flow.Collection.Name, len(req.TraitFiles), len(req.Metadata), len(req.OneOfOnes))
				return nil
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireSession(ctx, a); err != nil {
					return err
				}

				// the funding request is shown while Launch waits for the payment
				err := a.Bus.Subscribe(ctx, events.StreamClient, func(ev events.Event) {
					if ev.Type != events.EventOrderStatusChanged || flow.Inscription.PayFromWallet {
						return
					}
					if addr, ok := ev.Payload["fundingAddress"].(string); ok && addr != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "%s send %v to %s, waiting for the payment...\n",
							warnf("$"), ev.Payload["fundingAmount"], addr)
					}
				})
				if err != nil {
					return err
				}

				res, err := a.Creation.Launch(ctx, flow, progressPrinter(cmd))
				if res != nil {
					printLaunch(cmd, res)
				}
				if errors.Is(err, context.Canceled) && res != nil && res.Order != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s interrupted; order %s stays open\n", warnf("!"), res.Order.ID)
				}
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintln(cmd.OutOrStdout(), okf("Collection launched."))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only check the manifest and the local files")
	return cmd
}

func printLaunch(cmd *cobra.Command, res *services.LaunchResult) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	if res.Collection != nil {
		fmt.Fprintf(w, "  collection  %s\n", res.Collection.ID)
	}
	if res.Order != nil {
		fmt.Fprintf(w, "  order       %s (%s)\n", res.Order.ID, res.Order.Status)
		if res.ManualPayment {
			fmt.Fprintf(w, "  pay         %d to %s\n", res.Order.FundingAmount, res.Order.FundingAddress)
		}
	}
	if res.TxID != "" {
		fmt.Fprintf(w, "  txid        %s\n", res.TxID)
	}
	if res.Upload != nil && res.Upload.MintErr != nil {
		fmt.Fprintf(w, "  %s mint not triggered: %v\n", warnf("!"), res.Upload.MintErr)
	}
}
