package cli

import (
	"context"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"investdesk/internal/dashboard"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/market"
	"investdesk/internal/models"
	"investdesk/pkg/utils"
)

// addDemoCommands adds the demo account and price commands.
func addDemoCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newDemoCmd(app))
	rootCmd.AddCommand(newPriceCmd(app))
}

func newDemoCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Demo trading account",
		Long: `Trade against live prices with play money.

The account lives on the server. What is shown after a trade is always the
server's answer; a refused trade leaves the account unchanged.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "account",
		Short: "Show the demo account",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.signedIn(ctx); err != nil {
				return err
			}
			desk := dashboard.NewDemoDesk(app.Client, nil, app.Logger)
			if err := desk.Load(ctx); err != nil {
				return err
			}
			account, _ := desk.Account()
			return showDemoAccount(output, account, nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "trade <buy|sell> <asset> <amount>",
		Short: "Place a demo trade at the current price",
		Args:  cobra.ExactArgs(3),
		Example: `  investdesk demo trade buy BTCUSDT 0.01
  investdesk demo trade sell ETHUSDT 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)

			side := parseSide(args[0])
			if !side.Valid() {
				return apperrors.NewValidationError("type", args[0], "Trade type must be Buy or Sell.")
			}
			asset := strings.ToUpper(args[1])
			source := market.NewPriceSourceFromConfig(app.Config.Prices, app.Logger)
			if !source.Supports(asset) {
				return apperrors.NewValidationError("asset", asset, "Supported assets: "+strings.Join(source.Assets(), ", "))
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			if err := app.signedIn(ctx); err != nil {
				return err
			}

			tracker := market.NewPriceTracker(source, 0, []string{asset}, market.WithTrackerLogger(app.Logger))
			if err := tracker.Refresh(ctx); err != nil {
				return err
			}
			desk := dashboard.NewDemoDesk(app.Client, tracker, app.Logger)
			account, err := desk.Trade(ctx, asset, side, amount)
			if err != nil {
				return err
			}

			if !output.IsJSON() {
				quote, _ := tracker.Latest(asset)
				output.Success("✓ %s %s %s @ %s", side, utils.FormatAmount(amount), asset, FormatPrice(quote.USDPrice))
				output.Dim("Holding %s %s", utils.FormatAmount(desk.Holding(asset)), market.BaseAsset(asset))
			}
			return showDemoAccount(output, account, tracker.Snapshot())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset the demo account to its starting balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)
			if err := app.signedIn(ctx); err != nil {
				return err
			}
			account, err := dashboard.NewDemoDesk(app.Client, nil, app.Logger).Reset(ctx)
			if err != nil {
				return err
			}
			if !output.IsJSON() {
				output.Success("✓ Demo account reset")
			}
			return showDemoAccount(output, account, nil)
		},
	})

	return cmd
}

func parseSide(s string) models.TradeSide {
	switch strings.ToLower(s) {
	case "buy":
		return models.SideBuy
	case "sell":
		return models.SideSell
	}
	return models.TradeSide(s)
}

// showDemoAccount prints balance, holdings valued at prices when known,
// and the latest trades.
func showDemoAccount(output *Output, account *models.DemoAccount, prices map[string]models.PriceQuote) error {
	if output.IsJSON() {
		return output.JSON(account)
	}
	if account == nil {
		output.Dim("Demo account unavailable")
		return nil
	}

	output.Box("Demo account", []string{
		"Balance:    " + output.Tint(toneStrong, FormatUSD(account.Balance)),
		"Total P&L:  " + output.FormatPnL(account.TotalPnL(), "USD"),
	})

	if len(account.Holdings) > 0 {
		output.Println()
		table := NewTable(output, "ASSET", "AMOUNT", "VALUE")
		for _, h := range account.Holdings {
			value := "-"
			if q, ok := prices[h.Asset]; ok {
				value = FormatUSD(h.Amount.Mul(q.USDPrice))
			}
			table.AddRow(h.Asset, utils.FormatAmount(h.Amount), value)
		}
		table.Render()
	}

	if len(account.Trades) > 0 {
		output.Println()
		table := NewTable(output, "TIME", "SIDE", "ASSET", "AMOUNT", "PRICE", "P&L")
		trades := account.Trades
		if len(trades) > 10 {
			trades = trades[len(trades)-10:]
		}
		for _, t := range trades {
			table.AddRow(FormatDateTime(t.Time), output.Side(string(t.Type)), t.Asset,
				utils.FormatAmount(t.Amount), FormatPrice(t.Price), output.FormatPnL(t.PnL, "USD"))
		}
		table.Render()
	}
	return nil
}

func newPriceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "price [asset...]",
		Short: "Show current USD prices",
		Example: `  investdesk price
  investdesk price BTCUSDT`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			source := market.NewPriceSourceFromConfig(app.Config.Prices, app.Logger)
			quotes, err := fetchQuotes(contextFor(cmd), source, args)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(quotes)
			}
			showPrices(output, args, quotes)
			return nil
		},
	}
}

func fetchQuotes(ctx context.Context, source *market.PriceSource, assets []string) (map[string]models.PriceQuote, error) {
	for i, a := range assets {
		assets[i] = strings.ToUpper(a)
		if !source.Supports(assets[i]) {
			return nil, apperrors.NewValidationError("asset", a, "Supported assets: "+strings.Join(source.Assets(), ", "))
		}
	}
	if len(assets) == 1 {
		// A single pair the source leaves out is an error, not a blank row.
		q, err := source.Quote(ctx, assets[0])
		if err != nil {
			return nil, err
		}
		return map[string]models.PriceQuote{q.Asset: q}, nil
	}
	return source.Quotes(ctx, assets...)
}

// showPrices lists assets in order, or every quoted asset when assets is
// empty. An asset without a quote yet shows as loading.
func showPrices(output *Output, assets []string, quotes map[string]models.PriceQuote) {
	if len(assets) == 0 {
		for a := range quotes {
			assets = append(assets, a)
		}
		sort.Strings(assets)
	}

	table := NewTable(output, "ASSET", "PRICE", "CHART", "UPDATED")
	for _, a := range assets {
		chart := "-"
		if c, ok := market.ChartFor(a); ok {
			chart = c.Symbol
		}
		q, ok := quotes[a]
		if !ok {
			table.AddRow(output.Tint(toneNote, a), output.Tint(toneFaint, "Loading..."), chart, "-")
			continue
		}
		table.AddRow(output.Tint(toneNote, a), FormatPrice(q.USDPrice), chart, FormatTime(q.FetchedAt))
	}
	table.Render()
}
