package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jrsteele09/go-market-client/client"
	"github.com/jrsteele09/go-market-client/internal/utils"
	"github.com/jrsteele09/go-market-client/pager"
	"github.com/jrsteele09/go-market-client/products"
	"github.com/spf13/cobra"
)

var (
	pages        int
	minPrice     float64
	maxPrice     float64
	sortBy       string
	order        string
	title        string
	description  string
	price        float64
	locationName string
	latitude     float64
	longitude    float64
	images       []string
)

var productsCmd = &cobra.Command{
	Use:     "products",
	Aliases: []string{"product"},
	Short:   "Browse and manage listings",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := requireSession(app); err != nil {
				return err
			}
			view, err := app.Products.SetFilter(ctx, productFilter())
			if err != nil {
				return err
			}
			for view.Page < pages && view.HasNextPage {
				if view, err = app.Products.LoadMore(ctx); err != nil {
					return err
				}
			}
			return renderProducts(cmd.OutOrStdout(), productListView{Items: view.Items, Page: view.Page, HasNextPage: view.HasNextPage})
		})
	},
}

var productsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search products by text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := requireSession(app); err != nil {
				return err
			}
			view, err := app.Products.SearchNow(ctx, args[0])
			if err != nil {
				return err
			}
			return renderProducts(cmd.OutOrStdout(), productListView{Items: view.Items})
		})
	},
}

var productsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := requireSession(app); err != nil {
				return err
			}
			p, err := app.Product(ctx, args[0])
			if err != nil {
				return err
			}
			return renderProduct(cmd.OutOrStdout(), p)
		})
	},
}

var productsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := requireSession(app); err != nil {
				return err
			}
			draft := products.Draft{
				Title:       title,
				Description: description,
				Price:       price,
				Location:    products.Location{Name: locationName, Latitude: latitude, Longitude: longitude},
				Images:      uploads(images),
			}
			p, err := app.Mutations.CreateProduct(ctx, draft)
			if err != nil {
				return err
			}
			return renderProduct(cmd.OutOrStdout(), p)
		})
	},
}

var productsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a listing; only the given flags are changed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := requireSession(app); err != nil {
				return err
			}
			p, err := app.Mutations.UpdateProduct(ctx, args[0], productPatch(cmd))
			if err != nil {
				return err
			}
			return renderProduct(cmd.OutOrStdout(), p)
		})
	},
}

var productsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := requireSession(app); err != nil {
				return err
			}
			msg, err := app.Mutations.DeleteProduct(ctx, args[0])
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "Product deleted"
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		})
	},
}

func productFilter() pager.Filter {
	f := pager.Filter{SortBy: sortBy, Order: order, Extra: map[string]string{}}
	if minPrice > 0 {
		f.Extra[client.FilterMinPrice] = strconv.FormatFloat(minPrice, 'f', -1, 64)
	}
	if maxPrice > 0 {
		f.Extra[client.FilterMaxPrice] = strconv.FormatFloat(maxPrice, 'f', -1, 64)
	}
	return f
}

func productPatch(cmd *cobra.Command) products.Patch {
	flags := cmd.Flags()
	var patch products.Patch
	if flags.Changed("title") {
		patch.Title = utils.Ptr(title)
	}
	if flags.Changed("description") {
		patch.Description = utils.Ptr(description)
	}
	if flags.Changed("price") {
		patch.Price = utils.Ptr(price)
	}
	if flags.Changed("location") || flags.Changed("lat") || flags.Changed("lng") {
		patch.Location = &products.Location{Name: locationName, Latitude: latitude, Longitude: longitude}
	}
	patch.Images = uploads(images)
	return patch
}

func uploads(paths []string) []products.Upload {
	var out []products.Upload
	for _, p := range paths {
		out = append(out, products.Upload{Path: p})
	}
	return out
}

func init() {
	productsListCmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	productsListCmd.Flags().Float64Var(&minPrice, "min-price", 0, "minimum price")
	productsListCmd.Flags().Float64Var(&maxPrice, "max-price", 0, "maximum price")
	productsListCmd.Flags().StringVar(&sortBy, "sort-by", "", "sort field (createdAt, price)")
	productsListCmd.Flags().StringVar(&order, "order", "", "sort order (asc, desc)")

	for _, c := range []*cobra.Command{productsCreateCmd, productsUpdateCmd} {
		c.Flags().StringVar(&title, "title", "", "title")
		c.Flags().StringVar(&description, "description", "", "description")
		c.Flags().Float64Var(&price, "price", 0, "price")
		c.Flags().StringVar(&locationName, "location", "", "location name")
		c.Flags().Float64Var(&latitude, "lat", 0, "location latitude")
		c.Flags().Float64Var(&longitude, "lng", 0, "location longitude")
		c.Flags().StringSliceVar(&images, "image", nil, "image file (repeatable)")
	}
	for _, name := range []string{"title", "description", "price", "location", "image"} {
		_ = productsCreateCmd.MarkFlagRequired(name)
	}

	productsCmd.AddCommand(productsListCmd, productsSearchCmd, productsShowCmd, productsCreateCmd, productsUpdateCmd, productsDeleteCmd)
	rootCmd.AddCommand(productsCmd)
}
