package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"investdesk/pkg/utils"
)

// FormatUSD formats an amount in dollars.
func FormatUSD(amount decimal.Decimal) string {
	return utils.FormatMoney(amount, "USD")
}

// FormatPrice formats a quote: two decimals above 1, up to six below.
func FormatPrice(price decimal.Decimal) string {
	if price.Abs().LessThan(decimal.NewFromInt(1)) {
		return "$" + price.Round(6).String()
	}
	return FormatUSD(price)
}

// FormatTime formats a time of day in local time.
func FormatTime(t time.Time) string {
	return t.Local().Format("15:04:05")
}

// FormatDateTime formats a datetime in local time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02-Jan-2006 15:04:05")
}

// FormatMillis formats a Unix millisecond timestamp as a time of day.
func FormatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return FormatTime(time.UnixMilli(ms))
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatAge formats how long ago t was.
func FormatAge(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return FormatDuration(now.Sub(t)) + " ago"
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// OrDash returns s, or "-" when it is blank.
func OrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
