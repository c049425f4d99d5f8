package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"storefront-cart/internal/model"
)

// cartItem mirrors a displayed item as served by cartd.
type cartItem struct {
	model.LineItem
	ConfirmedQuantity int  `json:"confirmed_quantity"`
	Pending           bool `json:"pending"`
	Updating          bool `json:"updating"`
}

type cartView struct {
	Owner    string       `json:"owner"`
	Items    []cartItem   `json:"items"`
	Totals   model.Totals `json:"totals"`
	SyncedAt time.Time    `json:"synced_at"`
}

type cartResponse struct {
	Key      string          `json:"key"`
	Cart     cartView        `json:"cart"`
	Messages []model.Message `json:"messages"`
}

type sessionResponse struct {
	UserID string       `json:"user_id"`
	Synced bool         `json:"synced"`
	Cart   cartResponse `json:"cart"`
}

// =============================================================================
// GET / SYNC
// =============================================================================

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the cart as currently displayed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp cartResponse
			if err := c.doRequest("GET", "/cart", nil, &resp); err != nil {
				return c.failure("Failed to get cart", err)
			}
			c.printCart(resp)
			return nil
		},
	}
}

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replace the displayed cart with the store's cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp cartResponse
			if err := c.doRequest("POST", "/cart/sync", nil, &resp); err != nil {
				return c.failure("Failed to sync cart", err)
			}
			c.printSuccess("Cart synced")
			c.printCart(resp)
			return nil
		},
	}
}

// =============================================================================
// ITEM COMMANDS
// =============================================================================

func (c *cli) addCmd() *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parsePositive("product-id", args[0])
			if err != nil {
				return err
			}

			var resp cartResponse
			body := map[string]int{"product_id": productID, "quantity": qty}
			if err := c.doRequest("POST", "/cart/items", body, &resp); err != nil {
				return c.failure("Failed to add item", err)
			}

			if c.quiet {
				fmt.Fprintln(c.out, resp.Key)
				return nil
			}
			c.printSuccess("Added product %d (key %s)", productID, resp.Key)
			c.printCart(resp)
			return nil
		},
	}
	cmd.Flags().IntVarP(&qty, "qty", "n", 1, "Quantity to add")
	return cmd
}

func (c *cli) setCmd() *cobra.Command {
	var productID int
	cmd := &cobra.Command{
		Use:   "set <key> <quantity>",
		Short: "Change an item's quantity (debounced)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parsePositive("quantity", args[1])
			if err != nil {
				return err
			}

			body := map[string]int{"quantity": qty}
			if productID > 0 {
				body["product_id"] = productID
			}

			var resp cartResponse
			if err := c.doRequest("PATCH", "/cart/items/"+url.PathEscape(args[0]), body, &resp); err != nil {
				return c.failure("Failed to set quantity", err)
			}
			c.printSuccess("Quantity change for %s scheduled", args[0])
			c.printCart(resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&productID, "product", 0, "Product ID (looked up from the key when omitted)")
	return cmd
}

func (c *cli) rmCmd() *cobra.Command {
	var productID int
	cmd := &cobra.Command{
		Use:     "rm <key>",
		Aliases: []string{"remove"},
		Short:   "Remove an item from the cart",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/cart/items/" + url.PathEscape(args[0])
			if productID > 0 {
				path += "?product_id=" + strconv.Itoa(productID)
			}

			var resp cartResponse
			if err := c.doRequest("DELETE", path, nil, &resp); err != nil {
				return c.failure("Failed to remove item", err)
			}
			c.printSuccess("Removed %s", args[0])
			c.printCart(resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&productID, "product", 0, "Product ID (looked up from the key when omitted)")
	return cmd
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func (c *cli) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <user-id>",
		Short: "Record a sign-in; the cart syncs once per new user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp sessionResponse
			if err := c.doRequest("PUT", "/session", map[string]string{"user_id": args[0]}, &resp); err != nil {
				return c.failure("Failed to sign in", err)
			}

			if c.quiet {
				fmt.Fprintln(c.out, resp.Synced)
				return nil
			}
			if resp.Synced {
				c.printSuccess("Signed in as %s, cart synced", resp.UserID)
			} else {
				c.printSuccess("Already signed in as %s", resp.UserID)
			}
			c.printCart(resp.Cart)
			return nil
		},
	}
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Record a sign-out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.doRequest("DELETE", "/session", nil, nil); err != nil {
				return c.failure("Failed to sign out", err)
			}
			c.printSuccess("Signed out")
			return nil
		},
	}
}

// =============================================================================
// RENDERING
// =============================================================================

// printCart renders items and totals. Quiet mode prints only the total.
func (c *cli) printCart(resp cartResponse) {
	if c.quiet {
		fmt.Fprintln(c.out, model.FormatCents(resp.Cart.Totals.Total))
		return
	}

	c.printMessages(resp.Messages)

	view := resp.Cart
	fmt.Fprintf(c.out, "  Owner: %s%s%s\n", c.colors.cyan, view.Owner, c.colors.reset)
	if len(view.Items) == 0 {
		fmt.Fprintf(c.out, "  %s(cart is empty)%s\n", c.colors.gray, c.colors.reset)
	}
	for _, item := range view.Items {
		state := ""
		switch {
		case item.Updating:
			state = c.colors.yellow + " [saving]" + c.colors.reset
		case item.Pending:
			state = c.colors.yellow + " [pending]" + c.colors.reset
		}
		fmt.Fprintf(c.out, "  - %s%s%s  x%d  %s%s\n",
			c.colors.bold, item.Key, c.colors.reset,
			item.Quantity, formatCents(item.LineTotal()), state)
	}

	t := view.Totals
	fmt.Fprintf(c.out, "  Subtotal: %s  Tax: %s  Shipping: %s\n",
		formatCents(t.Subtotal), formatCents(t.Tax), formatCents(t.Shipping))
	fmt.Fprintf(c.out, "  Total: %s%s%s\n", c.colors.green, formatCents(t.Total), c.colors.reset)
}

func parsePositive(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return n, nil
}
