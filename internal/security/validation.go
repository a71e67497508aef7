package security

import (
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "investdesk/internal/errors"
)

const (
	// MinPasswordLength is the shortest password the reset form accepts.
	MinPasswordLength = 6
	// MaxUploadSize is the per-file limit for QR code images.
	MaxUploadSize = 5 * 1024 * 1024
)

var (
	// Phone numbers: digits, dashes, plus and spaces, at least 7 characters.
	phonePattern = regexp.MustCompile(`^[0-9\-\+\s]{7,}$`)

	// Verification codes are 6 characters.
	codePattern = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

	allowedImageExt = map[string]bool{
		".png":  true,
		".jpg":  true,
		".jpeg": true,
	}
)

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.NewValidationError("email", email, "Please enter your email address.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperrors.NewValidationError("email", email, "Please enter a valid email address.")
	}
	return nil
}

// ValidateNewPassword checks a password and its confirmation.
func ValidateNewPassword(password, confirm string) error {
	if password != confirm {
		return apperrors.NewValidationError("password", "***", "Passwords do not match.")
	}
	if len(password) < MinPasswordLength {
		return apperrors.NewValidationError("password", "***", "Password must be at least 6 characters long.")
	}
	return nil
}

// ValidateName checks a first or last name.
func ValidateName(field, name string) error {
	if len(strings.TrimSpace(name)) < 2 {
		return apperrors.NewValidationError(field, name, "Must be at least 2 characters.")
	}
	return nil
}

// ValidatePhone checks a phone number.
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return apperrors.NewValidationError("phone", phone, "Please enter a valid phone number.")
	}
	return nil
}

// ValidateCode checks an email verification or 2FA code.
func ValidateCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperrors.NewValidationError("code", "", "Please enter the verification code.")
	}
	if !codePattern.MatchString(code) {
		return apperrors.NewValidationError("code", MaskToken(code), "Enter the 6-character code.")
	}
	return nil
}

// ValidateAmount checks a positive money or asset amount.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.Wrapf(apperrors.ErrInvalidAmount, "amount %s", amount.String())
	}
	return nil
}

// ValidateUpload checks a QR image file before it is sent.
func ValidateUpload(filename string, size int64) error {
	if size > MaxUploadSize {
		return apperrors.Wrapf(apperrors.ErrUploadTooLarge, "%s is %d bytes", filename, size)
	}
	if !allowedImageExt[strings.ToLower(filepath.Ext(filename))] {
		return apperrors.Wrapf(apperrors.ErrUploadType, "%s", filename)
	}
	return nil
}
