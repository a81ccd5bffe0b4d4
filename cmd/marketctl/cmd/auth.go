package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-market-client/client"
	"github.com/jrsteele09/go-market-client/products"
	"github.com/jrsteele09/go-market-client/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	email     string
	password  string
	firstName string
	lastName  string
	imagePath string
	otpCode   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			return renderSession(cmd.OutOrStdout(), app.Session.Snapshot(), time.Now())
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if app.Session.IsAuthenticated() {
				return errors.New("already logged in, run marketctl logout first")
			}
			err := app.Session.Login(ctx, email, password)
			if renderErr := renderSession(cmd.OutOrStdout(), app.Session.Snapshot(), time.Now()); renderErr != nil {
				return renderErr
			}
			return err
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and send a verification code",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			in := session.RegisterInput{
				FirstName: firstName,
				LastName:  lastName,
				Email:     email,
				Password:  password,
			}
			if imagePath != "" {
				in.ProfileImage = &products.Upload{Path: imagePath}
			}
			if err := app.Session.Register(ctx, in); err != nil {
				return err
			}
			return renderSession(cmd.OutOrStdout(), app.Session.Snapshot(), time.Now())
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify an email address with the code that was sent to it",
	Long: `Verify an email address with the one-time code sent to it.

With --password the account is logged in once verified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := app.Session.ResumeVerification(email, password); err != nil {
				return err
			}
			err := app.Session.SubmitOTP(ctx, otpCode)
			if renderErr := renderSession(cmd.OutOrStdout(), app.Session.Snapshot(), time.Now()); renderErr != nil {
				return renderErr
			}
			return err
		})
	},
}

var resendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Send a new verification code",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := app.Session.ResumeVerification(email, ""); err != nil {
				return err
			}
			sent, err := app.Session.Resend(ctx)
			if err != nil {
				return err
			}
			if !sent {
				fmt.Fprintln(cmd.OutOrStdout(), "A code was sent recently, try again later.")
				return nil
			}
			return renderSession(cmd.OutOrStdout(), app.Session.Snapshot(), time.Now())
		})
	},
}

var forgotPasswordCmd = &cobra.Command{
	Use:   "forgot-password",
	Short: "Request a password reset email",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if err := app.ForgotPassword(ctx, email); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password reset instructions sent to %s\n", email)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *client.App) error {
			if !app.Session.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
				return nil
			}
			if err := app.Session.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&email, "email", "", "account email")
	loginCmd.Flags().StringVar(&password, "password", "", "account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	registerCmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	registerCmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	registerCmd.Flags().StringVar(&email, "email", "", "account email")
	registerCmd.Flags().StringVar(&password, "password", "", "account password (at least 8 characters)")
	registerCmd.Flags().StringVar(&imagePath, "image", "", "profile image file")
	for _, name := range []string{"first-name", "last-name", "email", "password"} {
		_ = registerCmd.MarkFlagRequired(name)
	}

	verifyCmd.Flags().StringVar(&email, "email", "", "account email")
	verifyCmd.Flags().StringVar(&otpCode, "code", "", "verification code")
	verifyCmd.Flags().StringVar(&password, "password", "", "log in after verifying")
	_ = verifyCmd.MarkFlagRequired("email")
	_ = verifyCmd.MarkFlagRequired("code")

	resendCmd.Flags().StringVar(&email, "email", "", "account email")
	_ = resendCmd.MarkFlagRequired("email")

	forgotPasswordCmd.Flags().StringVar(&email, "email", "", "account email")
	_ = forgotPasswordCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(statusCmd, loginCmd, registerCmd, verifyCmd, resendCmd, forgotPasswordCmd, logoutCmd)
}
