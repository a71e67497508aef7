package cli

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
	"investdesk/internal/security"
	"investdesk/pkg/utils"
)

// addAccountCommands adds wallet, profile and transfer commands.
func addAccountCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWalletCmd(app))
	rootCmd.AddCommand(newProfileCmd(app))
	rootCmd.AddCommand(newActivityCmd(app))
	rootCmd.AddCommand(newDepositCmd(app))
	rootCmd.AddCommand(newWithdrawCmd(app))
	rootCmd.AddCommand(newAddressesCmd(app))
	rootCmd.AddCommand(newRecentSignalsCmd(app))
}

func newWalletCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show wallet balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.signedIn(ctx); err != nil {
				return err
			}
			w, err := app.Client.Wallet(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(w)
			}
			output.Box("Wallet", walletLines(output, w))
			return nil
		},
	}
}

func walletLines(output *Output, w *models.Wallet) []string {
	return []string{
		"Balance:      " + output.Tint(toneStrong, utils.FormatMoney(w.Balance, w.Currency)),
		"Invested:     " + utils.FormatMoney(w.Invested, w.Currency),
		"Earnings:     " + output.FormatPnL(w.Earnings, w.Currency),
		"Withdrawn:    " + utils.FormatMoney(w.TotalWithdrawals, w.Currency),
	}
}

func newProfileCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.signedIn(ctx); err != nil {
				return err
			}
			p, err := app.Client.Profile(ctx)
			if err != nil {
				return err
			}
			return showProfile(output, p)
		},
	}

	update := &cobra.Command{
		Use:   "update",
		Short: "Update profile fields",
		Example: `  investdesk profile update --phone "+1 555 0100"
  investdesk profile update --first-name Jane --currency EUR`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.signedIn(ctx); err != nil {
				return err
			}
			p, err := app.Client.Profile(ctx)
			if err != nil {
				return err
			}

			changed := false
			set := func(flag string, field *string) {
				if cmd.Flags().Changed(flag) {
					*field, _ = cmd.Flags().GetString(flag)
					*field = strings.TrimSpace(*field)
					changed = true
				}
			}
			set("first-name", &p.FirstName)
			set("last-name", &p.LastName)
			set("phone", &p.Phone)
			set("country", &p.Country)
			set("currency", &p.Currency)
			if !changed {
				output.Warning("Nothing to update")
				return nil
			}

			if err := security.ValidateName("firstName", p.FirstName); err != nil {
				return err
			}
			if err := security.ValidateName("lastName", p.LastName); err != nil {
				return err
			}
			if err := security.ValidatePhone(p.Phone); err != nil {
				return err
			}
			p.Currency = strings.ToUpper(p.Currency)

			saved, err := app.Client.UpdateProfile(ctx, *p)
			if err != nil {
				return err
			}
			if !output.IsJSON() {
				output.Success("✓ Profile updated")
			}
			return showProfile(output, saved)
		},
	}
	update.Flags().String("first-name", "", "first name")
	update.Flags().String("last-name", "", "last name")
	update.Flags().String("phone", "", "phone number")
	update.Flags().String("country", "", "country")
	update.Flags().String("currency", "", "account currency")
	cmd.AddCommand(update)

	return cmd
}

func showProfile(output *Output, p *models.Profile) error {
	if output.IsJSON() {
		return output.JSON(p)
	}
	output.Box("Profile", []string{
		"Name:      " + OrDash(strings.TrimSpace(p.FirstName+" "+p.LastName)),
		"Email:     " + p.Email,
		"Phone:     " + OrDash(p.Phone),
		"Country:   " + OrDash(p.Country),
		"Currency:  " + OrDash(p.Currency),
	})
	return nil
}

func newActivityCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent account activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.signedIn(ctx); err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			items, err := app.Client.Activity(ctx, limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(items)
			}
			if len(items) == 0 {
				output.Dim("No recent activity")
				return nil
			}
			table := NewTable(output, "DATE", "TYPE", "AMOUNT", "STATUS")
			for _, a := range items {
				table.AddRow(OrDash(a.Date), a.Type, utils.FormatMoney(a.Amount, a.Currency), output.Status(a.Status))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("limit", 10, "number of entries")
	return cmd
}

// transferFlags reads the amount argument plus --currency and --type.
func transferFlags(cmd *cobra.Command, raw string) (decimal.Decimal, string, models.TransferType, error) {
	amount, err := parseAmount(raw)
	if err != nil {
		return decimal.Zero, "", "", err
	}
	currency, _ := cmd.Flags().GetString("currency")
	kind, _ := cmd.Flags().GetString("type")
	t := models.TransferType(strings.ToLower(kind))
	if t != models.TransferFiat && t != models.TransferCrypto {
		return decimal.Zero, "", "", apperrors.NewValidationError("type", kind, "Type must be fiat or crypto.")
	}
	return amount, strings.ToUpper(currency), t, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, apperrors.ErrInvalidAmount
	}
	if err := security.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func newDepositCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deposit <amount>",
		Short:   "Request a deposit",
		Args:    cobra.ExactArgs(1),
		Example: "  investdesk deposit 500 --currency BTC --type crypto",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			amount, currency, kind, err := transferFlags(cmd, args[0])
			if err != nil {
				return err
			}
			if err := app.signedIn(ctx); err != nil {
				return err
			}
			resp, err := app.Client.Deposit(ctx, models.DepositRequest{Amount: amount, Currency: currency, Type: kind})
			if err != nil {
				return err
			}
			return printMessage(NewOutput(cmd), resp, "Deposit request submitted.")
		},
	}
	cmd.Flags().String("currency", "USD", "currency or coin")
	cmd.Flags().String("type", "fiat", "fiat or crypto")
	return cmd
}

func newWithdrawCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "withdraw <amount>",
		Short:   "Request a withdrawal",
		Args:    cobra.ExactArgs(1),
		Example: "  investdesk withdraw 0.05 --currency BTC --type crypto --address bc1q...",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextFor(cmd)
			amount, currency, kind, err := transferFlags(cmd, args[0])
			if err != nil {
				return err
			}
			address, _ := cmd.Flags().GetString("address")
			if kind == models.TransferCrypto && strings.TrimSpace(address) == "" {
				return apperrors.NewValidationError("receiveAddress", "", "A receive address is required for crypto withdrawals.")
			}
			if err := app.signedIn(ctx); err != nil {
				return err
			}
			resp, err := app.Client.Withdraw(ctx, models.WithdrawRequest{
				Amount:         amount,
				Currency:       currency,
				Type:           kind,
				ReceiveAddress: strings.TrimSpace(address),
			})
			if err != nil {
				return err
			}
			return printMessage(NewOutput(cmd), resp, "Withdrawal request submitted.")
		},
	}
	cmd.Flags().String("currency", "USD", "currency or coin")
	cmd.Flags().String("type", "fiat", "fiat or crypto")
	cmd.Flags().String("address", "", "receive address (crypto only)")
	return cmd
}

func newAddressesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "addresses",
		Short: "Show deposit addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.signedIn(ctx); err != nil {
				return err
			}
			addrs, err := app.Client.CryptoAddresses(ctx)
			if err != nil {
				return err
			}
			return showAddresses(output, addrs)
		},
	}
}

func showAddresses(output *Output, addrs *models.CryptoAddresses) error {
	if output.IsJSON() {
		return output.JSON(addrs)
	}
	table := NewTable(output, "COIN", "ADDRESS", "QR")
	for _, coin := range models.CryptoCurrencies {
		table.AddRow(output.Tint(toneNote, coin), OrDash(addrs.Address(coin)), OrDash(addrs.QR(coin)))
	}
	table.Render()
	return nil
}
