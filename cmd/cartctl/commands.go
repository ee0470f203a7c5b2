package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"storefront/internal/cartclient"
	"storefront/internal/models"

	"github.com/spf13/cobra"
)

// withClient opens the mirror, builds a client and closes the mirror afterwards
func withClient(opts *rootOptions, fn func(*cartclient.Client) error) error {
	mirror, err := cartclient.OpenMirror(opts.mirrorPath)
	if err != nil {
		return err
	}
	defer mirror.Close()

	client, err := cartclient.New(opts.apiURL, mirror, nil)
	if err != nil {
		return err
	}
	return fn(client)
}

func showCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(c *cartclient.Client) error {
				res, err := c.Load(cmd.Context())
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func addCmd(opts *rootOptions) *cobra.Command {
	var (
		product models.Product
		size    string
		qty     int
	)

	cmd := &cobra.Command{
		Use:   "add [product-id]",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			product.ID = args[0]
			return withClient(opts, func(c *cartclient.Client) error {
				res, err := c.Add(cmd.Context(), product, size, qty)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&product.Name, "name", "", "Product name")
	cmd.Flags().Float64Var(&product.Price, "price", 0, "Unit price")
	cmd.Flags().StringVar(&product.Image, "image", "", "Product image path or URL")
	cmd.Flags().BoolVar(&product.InStock, "in-stock", true, "Whether the product is in stock")
	cmd.Flags().StringVarP(&size, "size", "s", "", "Size")
	cmd.Flags().IntVarP(&qty, "quantity", "q", 1, "Quantity (1-10)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("size")

	return cmd
}

func updateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update [product-id] [size] [quantity]",
		Short: "Set the quantity of a cart line",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("quantity must be an integer: %w", err)
			}
			return withClient(opts, func(c *cartclient.Client) error {
				res, err := c.Update(cmd.Context(), args[0], args[1], qty)
				if err != nil {
					return err
				}
				if !res.Applied {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching line in cart.")
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func removeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [product-id] [size]",
		Short: "Remove a cart line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(c *cartclient.Client) error {
				res, err := c.Remove(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func clearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(c *cartclient.Client) error {
				res, err := c.Clear(cmd.Context())
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func sessionCmd(opts *rootOptions) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Print (or reset) the persisted cart session id",
		RunE: func(cmd *cobra.Command, args []string) error {
			mirror, err := cartclient.OpenMirror(opts.mirrorPath)
			if err != nil {
				return err
			}
			defer mirror.Close()

			if reset {
				if err := mirror.ResetSession(); err != nil {
					return err
				}
			}
			id, err := mirror.SessionID()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Start a new session")
	return cmd
}

func printResult(w io.Writer, res *cartclient.Result) {
	if res.Source == cartclient.SourceCached {
		fmt.Fprintln(w, "Server unavailable: showing the local copy. Changes will not reach the server.")
	}
	if res.DiscardedLocalEdits {
		fmt.Fprintln(w, "Offline changes were discarded; the server cart is shown.")
	}

	fmt.Fprintf(w, "Cart %s (%s)\n", res.Cart.SessionID, res.Source)
	fmt.Fprintln(w, strings.Repeat("=", 40))
	if len(res.Cart.Items) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for _, item := range res.Cart.Items {
		fmt.Fprintf(w, "  %-4s %-24s %-4s x%-2d %8.2f\n", item.ProductID, item.Name, item.Size, item.Quantity, item.Price)
	}
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "  %d item(s)  total %.2f\n", res.Cart.ItemCount, res.Cart.Total)
}
