package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/app"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/spf13/cobra"
)

func newCollectionsCmd() *cobra.Command {
	var q api.ListedCollectionsQuery

	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List the collections on sale on a layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if q.LayerID == "" {
					sess, err := a.Sessions.Restore(ctx)
					if err != nil {
						return err
					}
					q.LayerID = sess.SelectedLayerID
				}
				if q.LayerID == "" {
					return fmt.Errorf("--layer is required without a session")
				}

				collections, err := a.API.ListedCollections(ctx, q)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(cmd.OutOrStdout(), collections)
				}

				usd, priceErr := a.Prices.BTCUSD(ctx)
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tFLOOR\tVOLUME\tLISTED\tOWNERS")
				for _, c := range collections {
					floor := fmt.Sprintf("%g", c.FloorPrice)
					if priceErr == nil {
						floor += dimf(fmt.Sprintf(" ($%.2f)", c.FloorPrice*usd))
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%d\t%d\n", c.ID, c.Name, floor, c.Volume, c.ListedCount, c.OwnerCount)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&q.LayerID, "layer", "", "layer id (default: the selected layer)")
	cmd.Flags().StringVar(&q.Interval, "interval", "all", "volume interval: 1h|24h|7d|30d|all")
	cmd.Flags().StringVar(&q.OrderBy, "order-by", "volume", "sort field")
	cmd.Flags().StringVar(&q.OrderDirection, "order", "desc", "sort direction: asc|desc")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "page offset")
	return cmd
}

func newListableCmd() *cobra.Command {
	var (
		q          api.ListableQuery
		listedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "listable <collection-id>",
		Short: "List the collectibles of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if listedOnly {
				q.IsListed = &listedOnly
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.API.ListableCollectibles(ctx, args[0], q)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(cmd.OutOrStdout(), out)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPRICE")
				for _, c := range out.Collectibles {
					price := dimf("not listed")
					if c.Price != nil {
						price = fmt.Sprintf("%g", *c.Price)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Name, price)
				}
				fmt.Fprintf(tw, "\n%d collectibles, %d listed\n", out.TotalCount, out.ListCount)
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&q.UserID, "user", "", "only collectibles owned by this user")
	cmd.Flags().BoolVar(&listedOnly, "listed", false, "only listed collectibles")
	cmd.Flags().StringVar(&q.OrderBy, "order-by", "price", "sort field")
	cmd.Flags().StringVar(&q.OrderDirection, "order", "asc", "sort direction: asc|desc")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "page offset")
	return cmd
}

func newPriceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price [sats]",
		Short: "Show the BTC price, or convert an amount in sats to USD",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					var sats int64
					if _, err := fmt.Sscan(args[0], &sats); err != nil {
						return fmt.Errorf("invalid amount %q", args[0])
					}
					usd, err := a.Prices.SatsToUSD(ctx, sats)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d sats = $%.2f\n", sats, usd)
					return nil
				}
				usd, err := a.Prices.BTCUSD(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "1 BTC = $%.2f\n", usd)
				return nil
			})
		},
	}
}

func newProgressCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "progress <collection-id>",
		Short: "Show how far the inscription of a collection is",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireSession(ctx, a); err != nil {
					return err
				}
				userLayerID := a.Store.Snapshot().CurrentUserLayer.ID

				show := func(p models.InscriptionProgress) {
					fmt.Fprintf(cmd.OutOrStdout(), "inscribed %d/%d\n", p.Done, p.Total)
				}
				if !watch {
					p, err := a.Progress.Current(ctx, args[0], userLayerID)
					if err != nil {
						return err
					}
					if jsonOutput() {
						return printJSON(cmd.OutOrStdout(), p)
					}
					show(p)
					return nil
				}

				p, err := a.Progress.Watch(ctx, args[0], userLayerID, show)
				if err != nil {
					return err
				}
				if p.Finished() {
					fmt.Fprintln(cmd.OutOrStdout(), okf("Inscription finished."))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll until the inscription finishes")
	return cmd
}
