package cmd

import (
	"context"

	"github.com/jrsteele09/go-market-client/client"
	"github.com/spf13/cobra"
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Read the news feed",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := requireSession(app); err != nil {
				return err
			}
			view, err := app.Posts.Read(ctx)
			if err != nil {
				return err
			}
			for view.Page < pages && view.HasNextPage {
				if view, err = app.Posts.LoadMore(ctx); err != nil {
					return err
				}
			}
			return renderPosts(cmd.OutOrStdout(), postListView{Items: view.Items, Page: view.Page, HasNextPage: view.HasNextPage})
		})
	},
}

func init() {
	postsListCmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	postsCmd.AddCommand(postsListCmd)
	rootCmd.AddCommand(postsCmd)
}
