package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"golang-cart-sync/configs"
	"golang-cart-sync/pkg/auth"
	"golang-cart-sync/pkg/cartsync"
	"golang-cart-sync/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

type clientFlags struct {
	server string
	token  string
	user   string
	wait   time.Duration
}

func newRootCmd() *cobra.Command {
	config := configs.LoadConfig()
	flags := &clientFlags{}

	root := &cobra.Command{
		Use:           "cartclient",
		Short:         "Inspect and change a cart over the realtime channel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.New(config.Log.Level, config.Log.Format)
		},
	}
	root.PersistentFlags().StringVar(&flags.server, "server", config.Client.ServerURL, "websocket URL of the cart server")
	root.PersistentFlags().StringVar(&flags.token, "token", config.Client.Token, "bearer token")
	root.PersistentFlags().StringVar(&flags.user, "user", "", "cart owner, defaults to the token's user")
	root.PersistentFlags().DurationVar(&flags.wait, "timeout", config.Client.AckTimeout, "how long to wait for the server")

	root.AddCommand(
		newWatchCmd(config, flags),
		newAddCmd(config, flags),
		newUpdateCmd(config, flags),
		newRemoveCmd(config, flags),
		newTokenCmd(config),
	)
	return root
}

func newWatchCmd(config *configs.Config, flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the cart every time it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			p, err := openSession(config, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeSession(p)

			unsubscribe := p.Subscribe(func(items []cartsync.CartLine) {
				printCart(out, items)
			})
			defer unsubscribe()

			<-ctx.Done()
			return nil
		},
	}
}

func newAddCmd(config *configs.Config, flags *clientFlags) *cobra.Command {
	var quantity int
	cmd := &cobra.Command{
		Use:   "add SERVICE_ID",
		Short: "Add a service to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, config, flags, func(ctx context.Context, p *cartsync.Provider) error {
				return p.AddToCartAndWait(ctx, args[0], quantity)
			})
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "q", cartsync.DefaultQuantity, "how many to add")
	return cmd
}

func newUpdateCmd(config *configs.Config, flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update SERVICE_ID QUANTITY",
		Short: "Set the quantity of a service; zero removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity %q: %w", args[1], err)
			}
			return runCommand(cmd, config, flags, func(ctx context.Context, p *cartsync.Provider) error {
				return p.UpdateQuantityAndWait(ctx, args[0], quantity)
			})
		},
	}
}

func newRemoveCmd(config *configs.Config, flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove SERVICE_ID",
		Short: "Remove a service from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, config, flags, func(ctx context.Context, p *cartsync.Provider) error {
				return p.RemoveFromCartAndWait(ctx, args[0])
			})
		},
	}
}

func newTokenCmd(config *configs.Config) *cobra.Command {
	var (
		role  string
		hours int
	)
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint a development token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewJWTManager(config.JWT.SecretKey, hours).GenerateToken(args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "token role")
	cmd.Flags().IntVar(&hours, "hours", config.JWT.ExpiryHours, "validity in hours")
	return cmd
}

// runCommand sends one acknowledged command and prints the resulting cart.
func runCommand(cmd *cobra.Command, config *configs.Config, flags *clientFlags, send func(context.Context, *cartsync.Provider) error) error {
	p, err := openSession(config, flags, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeSession(p)

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.wait)
	defer cancel()
	if err := send(ctx, p); err != nil {
		var rejected *cartsync.CommandError
		if errors.As(err, &rejected) {
			return fmt.Errorf("server rejected the command: %s", rejected.Message)
		}
		return err
	}

	printCart(cmd.OutOrStdout(), p.Cart())
	return nil
}

// openSession signs the token's user in over the process-wide transport.
// Server-side rejections are written to errOut as they arrive.
func openSession(config *configs.Config, flags *clientFlags, errOut io.Writer) (*cartsync.Provider, error) {
	userID := flags.user
	if userID == "" {
		userID = tokenUser(flags.token)
	}
	if userID == "" {
		return nil, errors.New("no user: pass --user or a token")
	}

	transport, err := cartsync.Init(flags.server, cartsync.Options{
		Token:          flags.token,
		ReconnectDelay: config.Client.ReconnectDelay,
		PongWait:       config.Client.PongWait,
	})
	if err != nil {
		return nil, err
	}

	p := cartsync.NewProvider(transport, cartsync.ProviderOptions{
		AckTimeout: flags.wait,
		OnError: func(message string) {
			fmt.Fprintf(errOut, "cart error: %s\n", message)
		},
	})
	p.SetUser(userID)
	return p, nil
}

func closeSession(p *cartsync.Provider) {
	p.Close()
	cartsync.Shutdown()
}

// tokenUser reads the user id from a token without verifying it; the
// server does the verification.
func tokenUser(token string) string {
	if token == "" {
		return ""
	}
	claims := &auth.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	return claims.UserID
}

func printCart(out io.Writer, items []cartsync.CartLine) {
	if len(items) == 0 {
		fmt.Fprintln(out, "cart is empty")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tNAME\tQTY\tPRICE")
	var total float64
	for _, line := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", line.ServiceID, line.Name, line.Quantity, line.Price)
		total += line.Price * float64(line.Quantity)
	}
	fmt.Fprintf(w, "\t\t\t%.2f\n", total)
	w.Flush()
}
