package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"investdesk/internal/api"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
	"investdesk/pkg/utils"
)

// addAdminCommands adds the back office commands.
func addAdminCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Back office: users, transfers, deposit addresses",
		Long: `Back office commands. They need an admin login and keep working while
you act as another user; they always run with your admin credential.`,
	}

	cmd.AddCommand(newAdminUsersCmd(app))
	cmd.AddCommand(newImpersonateCmd(app))
	cmd.AddCommand(newRestoreCmd(app))
	cmd.AddCommand(newTransfersCmd(app, "deposits"))
	cmd.AddCommand(newTransfersCmd(app, "withdrawals"))
	cmd.AddCommand(newAdjustCmd(app, true))
	cmd.AddCommand(newAdjustCmd(app, false))
	cmd.AddCommand(newClearDepositsCmd(app))
	cmd.AddCommand(newAdminAddressesCmd(app))
	cmd.AddCommand(newSetAddressesCmd(app))

	rootCmd.AddCommand(cmd)
}

// requireAdmin checks the stored primary credential, not the effective one.
func (a *App) requireAdmin(ctx context.Context) error {
	if err := a.signedIn(ctx); err != nil {
		return err
	}
	primary, ok, err := a.Tokens.Primary(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrNotAuthenticated
	}
	if !primary.Role.IsAdmin() {
		return apperrors.ErrNotAdmin
	}
	return nil
}

// confirmed reports whether --yes was given or the user typed y.
func confirmed(cmd *cobra.Command, question string) bool {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true
	}
	answer := newPrompter(cmd).ask(question + " [y/N]")
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}

func newAdminUsersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.requireAdmin(ctx); err != nil {
				return err
			}
			users, err := app.Client.Users(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(users)
			}
			table := NewTable(output, "ID", "NAME", "EMAIL", "COUNTRY", "CURRENCY", "ROLE")
			for _, u := range users {
				role := string(u.Role)
				if u.Role.IsAdmin() {
					role = output.Tint(toneAccent, role)
				}
				table.AddRow(u.ID.String(), TruncateString(strings.TrimSpace(u.FirstName+" "+u.LastName), 24),
					u.Email, OrDash(u.Country), OrDash(u.Currency), OrDash(role))
			}
			table.Render()
			output.Dim("%d accounts", len(users))
			return nil
		},
	}

	update := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Edit another account's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			if err := app.requireAdmin(ctx); err != nil {
				return err
			}
			var p models.Profile
			p.FirstName, _ = cmd.Flags().GetString("first-name")
			p.LastName, _ = cmd.Flags().GetString("last-name")
			p.Email, _ = cmd.Flags().GetString("email")
			p.Phone, _ = cmd.Flags().GetString("phone")
			p.Country, _ = cmd.Flags().GetString("country")
			currency, _ := cmd.Flags().GetString("currency")
			p.Currency = strings.ToUpper(currency)
			if p == (models.Profile{}) {
				NewOutput(cmd).Warning("Nothing to update")
				return nil
			}
			if err := app.Client.UpdateUser(ctx, models.ID(args[0]), p); err != nil {
				return err
			}
			NewOutput(cmd).Success("✓ User %s updated", args[0])
			return nil
		},
	}
	update.Flags().String("first-name", "", "first name")
	update.Flags().String("last-name", "", "last name")
	update.Flags().String("email", "", "email")
	update.Flags().String("phone", "", "phone number")
	update.Flags().String("country", "", "country")
	update.Flags().String("currency", "", "account currency")
	cmd.AddCommand(update)

	del := &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			if err := app.requireAdmin(ctx); err != nil {
				return err
			}
			if !confirmed(cmd, "Delete user "+args[0]+"?") {
				NewOutput(cmd).Dim("Cancelled")
				return nil
			}
			if err := app.Client.DeleteUser(ctx, models.ID(args[0])); err != nil {
				return err
			}
			NewOutput(cmd).Success("✓ User %s deleted", args[0])
			return nil
		},
	}
	del.Flags().Bool("yes", false, "do not ask for confirmation")
	cmd.AddCommand(del)

	return cmd
}

func newImpersonateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "impersonate <user-id>",
		Short: "Act as another user",
		Long: `Sign in as another user without their password. Your admin session is
kept and comes back with 'investdesk admin restore'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.Open(ctx); err != nil {
				return err
			}
			user, err := app.Session.StartImpersonation(ctx, models.ID(args[0]))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(user)
			}
			output.Success("✓ Now acting as %s", user.DisplayName())
			output.Dim("Use 'investdesk admin restore' to return to your admin session.")
			return nil
		},
	}
}

func newRestoreCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Return to your admin session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.Open(ctx); err != nil {
				return err
			}
			if err := app.Session.EndImpersonation(ctx); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"state": "authenticated"})
			}
			output.Success("✓ Back to your admin session")
			return nil
		},
	}
}

// newTransfersCmd lists deposits or withdrawals and reviews them.
func newTransfersCmd(app *App, kind string) *cobra.Command {
	approve, decline := (*api.Client).ApproveDeposit, (*api.Client).DeclineDeposit
	if kind == "withdrawals" {
		approve, decline = (*api.Client).ApproveWithdrawal, (*api.Client).DeclineWithdrawal
	}

	cmd := &cobra.Command{
		Use:   kind,
		Short: "List " + kind,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.requireAdmin(ctx); err != nil {
				return err
			}
			fetch := app.Client.Deposits
			if kind == "withdrawals" {
				fetch = app.Client.Withdrawals
			}
			records, err := fetch(ctx)
			if err != nil {
				return err
			}
			if status, _ := cmd.Flags().GetString("status"); status != "" {
				filtered := records[:0]
				for _, r := range records {
					if strings.EqualFold(r.Status, status) {
						filtered = append(filtered, r)
					}
				}
				records = filtered
			}
			return showTransfers(output, records)
		},
	}
	cmd.Flags().String("status", "", "only show this status (pending, approved, declined)")

	review := func(verb string, call func(*api.Client, context.Context, models.ID) error) *cobra.Command {
		return &cobra.Command{
			Use:   verb + " <id>",
			Short: strings.ToUpper(verb[:1]) + verb[1:] + " a pending " + strings.TrimSuffix(kind, "s"),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := contextFor(cmd)
				if err := app.requireAdmin(ctx); err != nil {
					return err
				}
				if err := call(app.Client, ctx, models.ID(args[0])); err != nil {
					return err
				}
				NewOutput(cmd).Success("✓ %s %s %sd", strings.TrimSuffix(kind, "s"), args[0], verb)
				return nil
			},
		}
	}
	cmd.AddCommand(review("approve", approve))
	cmd.AddCommand(review("decline", decline))

	return cmd
}

func showTransfers(output *Output, records []models.TransferRecord) error {
	if output.IsJSON() {
		return output.JSON(records)
	}
	if len(records) == 0 {
		output.Dim("Nothing to review")
		return nil
	}
	table := NewTable(output, "ID", "USER", "AMOUNT", "TYPE", "STATUS", "CREATED")
	for _, r := range records {
		user := "-"
		if r.User != nil {
			user = r.User.Email
		}
		table.AddRow(r.ID.String(), user, utils.FormatMoney(r.Amount, r.Currency), string(r.Type),
			output.Status(r.Status), FormatDateTime(r.CreatedAt))
	}
	table.Render()
	return nil
}

// newAdjustCmd credits or debits a user's wallet.
func newAdjustCmd(app *App, credit bool) *cobra.Command {
	use, short, done := "deduct", "Remove funds from a user's wallet", "Deducted"
	if credit {
		use, short, done = "credit", "Add funds to a user's wallet", "Credited"
	}

	cmd := &cobra.Command{
		Use:     use + " <user-id> <amount>",
		Short:   short,
		Args:    cobra.ExactArgs(2),
		Example: "  investdesk admin " + use + " 42 250 --currency USD",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			amount, currency, kind, err := transferFlags(cmd, args[1])
			if err != nil {
				return err
			}
			if err := app.requireAdmin(ctx); err != nil {
				return err
			}

			req := models.AdminTransferRequest{UserID: models.ID(args[0]), Amount: amount, Currency: currency, Type: kind}
			adjust := app.Client.DeductUser
			if credit {
				adjust = app.Client.CreditUser
			}
			resp, err := adjust(ctx, req)
			if err != nil {
				return err
			}
			return printMessage(output, resp, done+" "+utils.FormatMoney(amount, currency)+".")
		},
	}
	cmd.Flags().String("currency", "USD", "currency or coin")
	cmd.Flags().String("type", "fiat", "fiat or crypto")
	return cmd
}

func newClearDepositsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-deposits",
		Short: "Delete the deposit history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			if err := app.requireAdmin(ctx); err != nil {
				return err
			}
			if !confirmed(cmd, "Delete every deposit record?") {
				NewOutput(cmd).Dim("Cancelled")
				return nil
			}
			if err := app.Client.ClearDeposits(ctx); err != nil {
				return err
			}
			NewOutput(cmd).Success("✓ Deposit history cleared")
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "do not ask for confirmation")
	return cmd
}

func newAdminAddressesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "addresses",
		Short: "Show the deposit addresses users see",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			if err := app.requireAdmin(ctx); err != nil {
				return err
			}
			addrs, err := app.Client.AdminCryptoAddresses(ctx)
			if err != nil {
				return err
			}
			return showAddresses(NewOutput(cmd), addrs)
		},
	}
}

func newSetAddressesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-addresses",
		Short: "Replace deposit addresses and QR images",
		Long: `Replace the deposit addresses. Coins without a flag keep their current
address. QR images must be PNG or JPEG and at most 5MB.`,
		Example: `  investdesk admin set-addresses --btc bc1q... --btc-qr btc.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			if err := app.requireAdmin(ctx); err != nil {
				return err
			}
			current, err := app.Client.AdminCryptoAddresses(ctx)
			if err != nil {
				return err
			}

			addrs := *current
			qr := make(map[string]api.Upload)
			for _, coin := range models.CryptoCurrencies {
				flag := strings.ToLower(coin)
				if v, _ := cmd.Flags().GetString(flag); v != "" {
					setCoinAddress(&addrs, coin, strings.TrimSpace(v))
				}
				if path, _ := cmd.Flags().GetString(flag + "-qr"); path != "" {
					data, err := os.ReadFile(path)
					if err != nil {
						return apperrors.Wrapf(err, "reading %s QR image", coin)
					}
					qr[coin] = api.Upload{Filename: filepath.Base(path), Data: data}
				}
			}

			resp, err := app.Client.UpdateCryptoAddresses(ctx, addrs, qr)
			if err != nil {
				return err
			}
			return printMessage(NewOutput(cmd), resp, "Deposit addresses updated.")
		},
	}
	for _, coin := range models.CryptoCurrencies {
		flag := strings.ToLower(coin)
		cmd.Flags().String(flag, "", coin+" deposit address")
		cmd.Flags().String(flag+"-qr", "", coin+" QR image file")
	}
	return cmd
}

func setCoinAddress(a *models.CryptoAddresses, coin, addr string) {
	switch coin {
	case "BTC":
		a.BTC = addr
	case "ETH":
		a.ETH = addr
	case "USDT":
		a.USDT = addr
	case "XRP":
		a.XRP = addr
	}
}

func newRecentSignalsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "signals",
		Short: "Show the latest call of every trader",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.signedIn(ctx); err != nil {
				return err
			}
			signals, err := app.Client.RecentSignals(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(signals)
			}
			table := NewTable(output, "TRADER", "ROI", "CALL", "SYMBOL", "PRICE", "TIME")
			for _, s := range signals {
				table.AddRow(s.Name, OrDash(string(s.ROI)), output.Side(s.Signal.Action), s.Signal.Symbol,
					OrDash(s.Signal.Price.String()), OrDash(string(s.Signal.Time)))
			}
			table.Render()
			return nil
		},
	}
}
