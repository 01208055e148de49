package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/nft-marketplace/client/internal/app"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/nft-marketplace/client/internal/services"
	"github.com/spf13/cobra"
)

func newLayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the supported layers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				layers, err := a.Layers.Refresh(ctx)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(cmd.OutOrStdout(), layers)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tTYPE\tNETWORK\tCHAIN\tWALLET")
				for _, l := range layers {
					detected := warnf("missing")
					if _, err := a.Wallets.Adapter(l.Kind); err == nil {
						detected = okf("ok")
					}
					chain := "-"
					if l.ChainID != 0 {
						chain = fmt.Sprint(l.ChainID)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", l.ID, l.Name, l.Kind, l.Network, chain, detected)
				}
				return tw.Flush()
			})
		},
	}
}

func newLoginCmd() *cobra.Command {
	var (
		layerID string
		link    bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Connect the wallet for a layer and sign in",
		Long: `Connect the wallet matching the layer, sign the server challenge and sign in.

With an existing session the layer is linked to the signed-in user instead.
If the address already belongs to another user you are asked before it is moved.

Examples:
  marketctl login --layer <layer-id>
  marketctl login --layer <layer-id> --link --yes
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if layerID == "" {
				return fmt.Errorf("--layer is required, see 'marketctl layers'")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Sessions.Restore(ctx); err != nil {
					return err
				}
				sess, err := a.Sessions.Connect(ctx, layerID, link)

				var conflict *services.LinkConflictError
				if errors.As(err, &conflict) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", warnf("!"), conflict.Error())
					if !yes && !confirm(cmd, "Move this address to your account? [y/N]: ") {
						fmt.Fprintln(cmd.OutOrStdout(), "Address left with its current owner.")
						return nil
					}
					sess, err = a.Sessions.ConfirmLinkToAnotherUser(ctx, conflict)
				}
				if err != nil {
					return err
				}
				return printSession(cmd, a.Sessions.State(), sess)
			})
		},
	}

	cmd.Flags().StringVar(&layerID, "layer", "", "layer id to connect")
	cmd.Flags().BoolVar(&link, "link", false, "link the layer to the signed-in user")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "move an address owned by another user without asking")
	return cmd
}

func newSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <layer-id>",
		Short: "Switch the active layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireSession(ctx, a); err != nil {
					return err
				}
				sess, err := a.Sessions.SwitchLayer(ctx, args[0])
				if err != nil {
					return err
				}
				return printSession(cmd, a.Sessions.State(), sess)
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the wallet session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := a.Sessions.Restore(ctx)
				if err != nil {
					return err
				}
				return printSession(cmd, a.Sessions.State(), sess)
			})
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Sessions.Disconnect(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okf("Signed out."))
				return nil
			})
		},
	}
}

func printSession(cmd *cobra.Command, state models.WalletState, sess models.Session) error {
	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), map[string]any{"phase": state.Phase(), "session": sess})
	}

	w := cmd.OutOrStdout()
	if !sess.Authenticated {
		fmt.Fprintf(w, "%s not signed in (%s)\n", warnf("●"), state.Phase())
		return nil
	}
	fmt.Fprintf(w, "%s signed in as %s\n", okf("●"), sess.User.ID)
	if sess.CurrentLayer != nil {
		fmt.Fprintf(w, "  layer    %s (%s, %s)\n", sess.CurrentLayer.Name, sess.CurrentLayer.Kind, sess.CurrentLayer.Network)
	}
	if sess.CurrentUserLayer != nil {
		fmt.Fprintf(w, "  address  %s\n", sess.CurrentUserLayer.Address)
	}
	if len(sess.UserLayerCache) > 1 {
		fmt.Fprintf(w, "  linked   %s\n", dimf(fmt.Sprintf("%d layers", len(sess.UserLayerCache))))
	}
	return nil
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	return strings.ToLower(strings.TrimSpace(answer)) == "y"
}
