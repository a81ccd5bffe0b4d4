package cmd

import (
	"context"

	"github.com/jrsteele09/go-market-client/apierror"
	"github.com/jrsteele09/go-market-client/client"
	"github.com/jrsteele09/go-market-client/internal/utils"
	"github.com/jrsteele09/go-market-client/products"
	"github.com/jrsteele09/go-market-client/users"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update a user profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show [user-id]",
	Short: "Show your profile, or another user's",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := requireSession(app); err != nil {
				return err
			}
			var (
				p   *users.Profile
				err error
			)
			if len(args) == 1 {
				if p, err = app.Profiles.ProfileByID(ctx, args[0]); err != nil {
					return apierror.Translate(err)
				}
			} else if p, err = app.Profile(ctx); err != nil {
				return err
			}
			return renderProfile(cmd.OutOrStdout(), p)
		})
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update your profile; only the given flags are changed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := requireSession(app); err != nil {
				return err
			}
			var patch users.ProfilePatch
			if cmd.Flags().Changed("first-name") {
				patch.FirstName = utils.Ptr(firstName)
			}
			if cmd.Flags().Changed("last-name") {
				patch.LastName = utils.Ptr(lastName)
			}
			if imagePath != "" {
				patch.ProfileImage = &products.Upload{Path: imagePath}
			}
			p, err := app.Mutations.UpdateProfile(ctx, patch)
			if err != nil {
				return err
			}
			return renderProfile(cmd.OutOrStdout(), p)
		})
	},
}

func init() {
	profileUpdateCmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	profileUpdateCmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	profileUpdateCmd.Flags().StringVar(&imagePath, "image", "", "profile image file")

	profileCmd.AddCommand(profileShowCmd, profileUpdateCmd)
	rootCmd.AddCommand(profileCmd)
}
