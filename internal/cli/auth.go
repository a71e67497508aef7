package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
	"investdesk/internal/session"
)

// addAuthCommands adds sign-in and account recovery commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app, false))
	rootCmd.AddCommand(newLoginCmd(app, true))
	rootCmd.AddCommand(newLogoutCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newRegisterCmd(app))
	rootCmd.AddCommand(newVerifyEmailCmd(app))
	rootCmd.AddCommand(newResendVerificationCmd(app))
	rootCmd.AddCommand(newForgotPasswordCmd(app))
	rootCmd.AddCommand(newResetPasswordCmd(app))
}

// prompter reads answers from the command's stdin. Input is echoed.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.ErrOrStderr()}
}

func (p *prompter) ask(label string) string {
	fmt.Fprintf(p.out, "%s: ", label)
	line, _ := p.in.ReadString('\n')
	return strings.TrimSpace(line)
}

// value returns flag if set, otherwise asks.
func (p *prompter) value(cmd *cobra.Command, flag, label string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	return p.ask(label)
}

func newLoginCmd(app *App, admin bool) *cobra.Command {
	use, short := "login", "Log in to your account"
	if admin {
		use, short = "admin-login", "Log in to the back office (admin accounts only)"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: `Log in with email and password.

When two-factor authentication is enabled the server asks for a code. It is
read from --code, generated from --totp-secret, or prompted for.`,
		Example: `  investdesk login --email jane@example.com
  investdesk login --email jane@example.com --totp-secret JBSWY3DPEHPK3PXP
  investdesk admin-login --email ops@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.Open(ctx); err != nil {
				return err
			}
			p := newPrompter(cmd)

			email := p.value(cmd, "email", "Email")
			password := p.value(cmd, "password", "Password")

			login := app.Session.Login
			if admin {
				login = app.Session.AdminLogin
			}
			result, err := login(ctx, email, password)
			if err != nil {
				return loginFailed(output, err)
			}

			if result.State == session.StatePending2FA {
				result, err = completeTwoFactor(ctx, cmd, app.Session, p, output)
				if err != nil {
					app.Session.CancelPending()
					return loginFailed(output, err)
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"state": result.State,
					"user":  result.User,
					"route": result.Route,
				})
			}
			output.Success("✓ Logged in as %s", result.User.DisplayName())
			if result.User.Role.IsAdmin() {
				output.Dim("Role: admin")
			}
			return nil
		},
	}

	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password (prompted when omitted)")
	cmd.Flags().String("code", "", "six-digit 2FA code")
	cmd.Flags().String("totp-secret", "", "base32 TOTP secret used to generate the 2FA code")
	return cmd
}

// maxCodeAttempts bounds how often a prompted 2FA code is asked for.
const maxCodeAttempts = 3

// completeTwoFactor submits the pending login's code. A code typed at the
// prompt that the server rejects is asked for again while the login is still
// pending; codes from flags get one try.
func completeTwoFactor(ctx context.Context, cmd *cobra.Command, ctrl *session.Controller, p *prompter, output *Output) (*session.LoginResult, error) {
	prompted := !cmd.Flags().Changed("code") && !cmd.Flags().Changed("totp-secret")
	for attempt := 1; ; attempt++ {
		code, err := twoFactorCode(cmd, p)
		if err != nil {
			return nil, err
		}
		result, err := ctrl.Submit2FA(ctx, code)
		if err == nil {
			return result, nil
		}
		if !prompted || code == "" || attempt >= maxCodeAttempts || !retryableCode(err) {
			return nil, err
		}
		if state, _ := ctrl.State(ctx); state != session.StatePending2FA {
			return nil, err
		}
		output.Warning(apperrors.UserMessage(err, "Invalid 2FA code."))
	}
}

func retryableCode(err error) bool {
	var verr *apperrors.ValidationError
	return apperrors.Is(err, apperrors.ErrInvalid2FA) || apperrors.As(err, &verr)
}

func twoFactorCode(cmd *cobra.Command, p *prompter) (string, error) {
	if code, _ := cmd.Flags().GetString("code"); code != "" {
		return code, nil
	}
	if secret, _ := cmd.Flags().GetString("totp-secret"); secret != "" {
		code, err := totp.GenerateCode(secret, time.Now())
		if err != nil {
			return "", apperrors.NewValidationError("totp-secret", "", "TOTP secret is not valid base32.")
		}
		return code, nil
	}
	return p.ask("2FA code"), nil
}

// loginFailed prints where a refused login leads, then returns the error.
func loginFailed(output *Output, err error) error {
	if next, ok := session.LoginRedirect(err); ok && !output.IsJSON() {
		output.Warning(apperrors.UserMessage(err, "Login failed."))
		switch next.Route {
		case session.RouteVerifyEmail:
			output.Info("Next: investdesk verify-email")
		case session.RoutePendingApproval:
			output.Info("An admin has to approve the account before you can log in.")
		}
	}
	return err
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.Open(ctx); err != nil {
				return err
			}
			route, err := app.Session.Logout(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"route": route})
			}
			output.Success("✓ Logged out")
			if route == session.RouteAdminLogin {
				output.Dim("Use 'investdesk admin-login' to sign in again.")
			}
			return nil
		},
	}
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.Open(ctx); err != nil {
				return err
			}
			return showStatus(ctx, app, output)
		},
	}
}

func showStatus(ctx context.Context, app *App, output *Output) error {
	state, err := app.Session.State(ctx)
	if err != nil {
		return err
	}
	role, _, err := app.Tokens.Role(ctx)
	if err != nil {
		return err
	}
	imp, err := app.Tokens.Impersonation(ctx)
	if err != nil {
		return err
	}

	if output.IsJSON() {
		status := map[string]interface{}{
			"state": state,
			"role":  role,
			"api":   app.Config.API.BaseURL,
		}
		if imp != nil {
			status["impersonating"] = imp.ImpersonatedUser
		}
		return output.JSON(status)
	}

	switch state {
	case session.StateAnonymous:
		output.Warning("Not logged in")
		output.Dim("Use 'investdesk login' to sign in.")
		return nil
	case session.StateImpersonating:
		output.Success("✓ Logged in as admin")
		output.Printf("  Acting as: %s\n", output.Tint(toneAccent, imp.ImpersonatedUser.DisplayName()))
		output.Dim("Use 'investdesk admin restore' to return to your admin session.")
	default:
		output.Success("✓ Logged in")
		output.Printf("  Role:      %s\n", OrDash(string(role)))
	}
	output.Printf("  Server:    %s\n", app.Config.API.BaseURL)
	return nil
}

func newRegisterCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		Long: `Create a new account. Missing fields are prompted for.
The account must be verified by email before it can log in.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.Open(ctx); err != nil {
				return err
			}
			p := newPrompter(cmd)

			form := session.Registration{
				RegisterRequest: models.RegisterRequest{
					FirstName: p.value(cmd, "first-name", "First name"),
					LastName:  p.value(cmd, "last-name", "Last name"),
					Email:     p.value(cmd, "email", "Email"),
					Phone:     p.value(cmd, "phone", "Phone"),
					Country:   p.value(cmd, "country", "Country"),
					Currency:  strings.ToUpper(p.value(cmd, "currency", "Currency")),
				},
			}
			form.Password = p.value(cmd, "password", "Password")
			form.ConfirmPassword = p.value(cmd, "password", "Confirm password")

			resp, err := app.Session.Register(ctx, form)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(resp)
			}
			output.Success("✓ %s", OrDash(resp.Message))
			output.Info("Next: investdesk verify-email --email %s", form.Email)
			return nil
		},
	}

	cmd.Flags().String("first-name", "", "first name")
	cmd.Flags().String("last-name", "", "last name")
	cmd.Flags().String("email", "", "email")
	cmd.Flags().String("phone", "", "phone number")
	cmd.Flags().String("country", "", "country")
	cmd.Flags().String("currency", "", "account currency (USD, EUR, ...)")
	cmd.Flags().String("password", "", "password")
	return cmd
}

func newVerifyEmailCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-email",
		Short: "Verify your email with the code you were sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			if err := app.Open(ctx); err != nil {
				return err
			}
			p := newPrompter(cmd)
			resp, err := app.Session.VerifyEmail(ctx, p.value(cmd, "email", "Email"), p.value(cmd, "code", "Verification code"))
			if err != nil {
				return err
			}
			return printMessage(NewOutput(cmd), resp, "Email verified.")
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("code", "", "six-digit verification code")
	return cmd
}

func newResendVerificationCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resend-verification",
		Short: "Send a new verification code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			if err := app.Open(ctx); err != nil {
				return err
			}
			resp, err := app.Session.ResendVerification(ctx, newPrompter(cmd).value(cmd, "email", "Email"))
			if err != nil {
				return err
			}
			return printMessage(NewOutput(cmd), resp, "Verification code sent.")
		},
	}
	cmd.Flags().String("email", "", "account email")
	return cmd
}

func newForgotPasswordCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			if err := app.Open(ctx); err != nil {
				return err
			}
			resp, err := app.Session.ForgotPassword(ctx, newPrompter(cmd).value(cmd, "email", "Email"))
			if err != nil {
				return err
			}
			return printMessage(NewOutput(cmd), resp, "Check your email for a reset link.")
		},
	}
	cmd.Flags().String("email", "", "account email")
	return cmd
}

func newResetPasswordCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-password <token>",
		Short: "Set a new password using the token from the reset link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			if err := app.Open(ctx); err != nil {
				return err
			}
			token := args[0]
			if err := app.Session.ValidateResetToken(ctx, token); err != nil {
				return err
			}

			p := newPrompter(cmd)
			password := p.value(cmd, "password", "New password")
			confirm := p.value(cmd, "password", "Confirm password")
			resp, err := app.Session.ResetPassword(ctx, token, password, confirm)
			if err != nil {
				return err
			}
			return printMessage(NewOutput(cmd), resp, "Password updated. You can now log in.")
		},
	}
	cmd.Flags().String("password", "", "new password")
	return cmd
}

func printMessage(output *Output, resp *models.MessageResponse, fallback string) error {
	if output.IsJSON() {
		return output.JSON(resp)
	}
	msg := fallback
	if resp != nil && resp.Message != "" {
		msg = resp.Message
	}
	output.Success("✓ %s", msg)
	return nil
}
