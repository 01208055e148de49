package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/nft-marketplace/client/internal/app"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/nft-marketplace/client/internal/services"
	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	var (
		collectionID string
		orderID      string
		in           models.TraitUploadInput
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload trait images, metadata and one-of-one editions to a collection",
		Long: `Upload a collection's files in batches.

Trait images are read from one folder per trait type; the file name without
extension is the trait value. Metadata is a JSON array of
{"name", "attributes": [{"trait_type", "value"}]} entries.

Examples:
  marketctl upload --collection <id> --traits ./traits --metadata ./metadata.json
  marketctl upload --collection <id> --one-of-one ./editions --order <order-id>
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if collectionID == "" {
				return fmt.Errorf("--collection is required")
			}
			if in.TraitsDir == "" && in.OneOfOneDir == "" {
				return fmt.Errorf("--traits or --one-of-one is required")
			}

			req, err := services.BuildUploadRequest(in, collectionID, orderID)
			if err != nil {
				return err
			}
			if err := services.ValidateUpload(req); err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireSession(ctx, a); err != nil {
					return err
				}
				req.OnProgress = progressPrinter(cmd)

				res, err := a.Uploads.Upload(ctx, req)
				fmt.Fprintln(cmd.OutOrStdout())

				var batchErr *services.BatchError
				if errors.As(err, &batchErr) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s batch %d failed, %d/%d items already uploaded\n",
						errorf("✗"), batchErr.Phase, batchErr.BatchIndex+1, res.Progress.Current, res.Progress.Total)
				}
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(cmd.OutOrStdout(), res)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s run %s: %d trait types, %d values, %d records, %d one-of-ones\n",
					okf("✓"), res.RunID, len(res.TraitTypes), len(res.TraitValues), res.Recursive, len(res.OneOfOnes))
				if res.MintErr != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s files uploaded but the mint was not triggered: %v\n", warnf("!"), res.MintErr)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&collectionID, "collection", "", "collection id")
	cmd.Flags().StringVar(&orderID, "order", "", "order id; triggers the mint after the upload")
	cmd.Flags().StringVar(&in.TraitsDir, "traits", "", "folder of trait type folders")
	cmd.Flags().StringVar(&in.MetadataPath, "metadata", "", "metadata JSON file")
	cmd.Flags().StringVar(&in.OneOfOneDir, "one-of-one", "", "folder of one-of-one edition images")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var (
		collectionID string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show past uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Runs == nil {
					return fmt.Errorf("upload history needs SESSION_BACKEND=sqlite")
				}
				runs, err := a.Runs.ListByCollection(ctx, collectionID, limit)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(cmd.OutOrStdout(), runs)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tCOLLECTION\tSTATUS\tDONE\tSTARTED")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
						r.ID, r.CollectionID, statusColor(r.Status), r.Done, r.Total, r.CreatedAt.Local().Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&collectionID, "collection", "", "only runs of this collection")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs")
	return cmd
}

func progressPrinter(cmd *cobra.Command) func(models.UploadProgress) {
	return func(p models.UploadProgress) {
		fmt.Fprintf(cmd.OutOrStdout(), "\r%-14s batch %-3d %d/%d", p.Phase, p.Batch+1, p.Current, p.Total)
	}
}

func statusColor(status string) string {
	switch status {
	case models.UploadStatusDone:
		return okf(status)
	case models.UploadStatusFailed:
		return errorf(status)
	case models.UploadStatusMintWarn:
		return warnf(status)
	default:
		return status
	}
}
