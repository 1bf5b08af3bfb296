package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rl1809/shop-dashboard/internal/adapter/handler"
)

type rootOptions struct {
	baseURL string
	timeout time.Duration
}

func (o *rootOptions) client() *resty.Client {
	return resty.New().
		SetBaseURL(o.baseURL).
		SetTimeout(o.timeout).
		SetHeader("Content-Type", "application/json")
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "cartctl",
		Short:         "Command line client for the cart HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("CARTCTL_URL", "http://localhost:8080"), "base URL of the HTTP API")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		newAddCommand(opts),
		newListCommand(opts),
		newGetCommand(opts),
		newTransitionCommand(opts),
	)
	return root
}

func newAddCommand(opts *rootOptions) *cobra.Command {
	var requestID string

	cmd := &cobra.Command{
		Use:   "add <user-id> <product-id>",
		Short: "Add one unit of a product to the user's cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				requestID = uuid.NewString()
			}
			var out handler.AddItemHTTPResponse
			resp, err := opts.client().R().
				SetContext(cmd.Context()).
				SetBody(handler.AddItemHTTPRequest{RequestID: requestID, UserID: args[0], ProductID: args[1]}).
				SetResult(&out).
				Post("/api/cart/items")
			if err := checkResponse(resp, err); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&requestID, "request-id", "", "idempotency key (random when empty)")
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var userID, listing string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions for a dashboard tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Transactions []handler.TransactionHTTPResponse `json:"transactions"`
			}
			resp, err := opts.client().R().
				SetContext(cmd.Context()).
				SetQueryParams(map[string]string{"user_id": userID, "listing": listing}).
				SetResult(&out).
				Get("/api/transactions")
			if err := checkResponse(resp, err); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out.Transactions)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only transactions of this user")
	cmd.Flags().StringVar(&listing, "listing", "all", "all, cancelled, completed or a status")
	return cmd
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <transaction-id>",
		Short: "Show one transaction with its total",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out handler.TransactionHTTPResponse
			resp, err := opts.client().R().
				SetContext(cmd.Context()).
				SetPathParam("id", args[0]).
				SetResult(&out).
				Get("/api/transactions/{id}")
			if err := checkResponse(resp, err); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newTransitionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <transaction-id> <status>",
		Short: "Move a transaction to pending, approved or rejected",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out handler.TransactionHTTPResponse
			resp, err := opts.client().R().
				SetContext(cmd.Context()).
				SetPathParam("id", args[0]).
				SetBody(handler.TransitionHTTPRequest{Status: args[1]}).
				SetResult(&out).
				Patch("/api/transactions/{id}/status")
			if err := checkResponse(resp, err); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		var body handler.ErrorHTTPResponse
		if jerr := json.Unmarshal(resp.Body(), &body); jerr == nil && body.Message != "" {
			return fmt.Errorf("%s: %s", resp.Status(), body.Message)
		}
		return fmt.Errorf("%s", resp.Status())
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
