package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the balance summary shown on the dashboard.
type Wallet struct {
	Balance          decimal.Decimal `json:"balance"`
	Invested         decimal.Decimal `json:"invested"`
	Earnings         decimal.Decimal `json:"earnings"`
	TotalWithdrawals decimal.Decimal `json:"totalWithdrawals"`
	Currency         string          `json:"currency"`
}

// Profile is the editable account profile.
type Profile struct {
	ID        ID     `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
	Currency  string `json:"currency"`
	Role      Role   `json:"role,omitempty"`
}

// Activity is one entry of the account's recent activity.
type Activity struct {
	Type     string          `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Date     string          `json:"date"` // preformatted by the server
}

// TransferType separates fiat from crypto transfers.
type TransferType string

const (
	TransferFiat   TransferType = "fiat"
	TransferCrypto TransferType = "crypto"
)

// DepositRequest is the body of POST /api/transaction/deposit.
type DepositRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Type     TransferType    `json:"type"`
}

// WithdrawRequest is the body of POST /api/transaction/withdraw.
type WithdrawRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Type           TransferType    `json:"type"`
	ReceiveAddress string          `json:"receiveAddress,omitempty"`
}

// AdminTransferRequest credits or debits a user's wallet.
type AdminTransferRequest struct {
	UserID   ID              `json:"userId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Type     TransferType    `json:"type"`
}

// MessageResponse is the common {message} acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// CryptoCurrencies lists the deposit coins in display order.
var CryptoCurrencies = []string{"BTC", "ETH", "USDT", "XRP"}

// CryptoAddresses maps coin to deposit address, plus optional QR image paths.
type CryptoAddresses struct {
	BTC    string `json:"BTC"`
	ETH    string `json:"ETH"`
	USDT   string `json:"USDT"`
	XRP    string `json:"XRP"`
	BTCQR  string `json:"BTC_QR,omitempty"`
	ETHQR  string `json:"ETH_QR,omitempty"`
	USDTQR string `json:"USDT_QR,omitempty"`
	XRPQR  string `json:"XRP_QR,omitempty"`
}

// Address returns the deposit address for a coin.
func (c CryptoAddresses) Address(coin string) string {
	switch coin {
	case "BTC":
		return c.BTC
	case "ETH":
		return c.ETH
	case "USDT":
		return c.USDT
	case "XRP":
		return c.XRP
	}
	return ""
}

// QR returns the QR image path for a coin.
func (c CryptoAddresses) QR(coin string) string {
	switch coin {
	case "BTC":
		return c.BTCQR
	case "ETH":
		return c.ETHQR
	case "USDT":
		return c.USDTQR
	case "XRP":
		return c.XRPQR
	}
	return ""
}

// TransferRecord is a deposit or withdrawal as seen by an admin.
type TransferRecord struct {
	ID        ID              `json:"id"`
	User      *UserSummary    `json:"user,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Type      TransferType    `json:"type"`
	Status    string          `json:"status"`
	Details   interface{}     `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Country   string `json:"country"`
	Currency  string `json:"currency"`
	Phone     string `json:"phone"`
}
