package errors

// UserMessage turns any error from the sync layer into the inline text a
// screen shows. fallback is used for errors with no specific message.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	switch {
	case Is(err, ErrSessionExpired):
		return "Your session has expired. Please log in again."
	case Is(err, ErrNotAuthenticated):
		return "You are not logged in."
	case Is(err, ErrEmailNotVerified):
		return "Please verify your email address before logging in."
	case Is(err, ErrAccountInactive):
		return "Your account is not active. Please contact support."
	case Is(err, ErrPendingApproval):
		return "Your account is pending approval. Please wait for admin approval."
	case Is(err, ErrInvalid2FA):
		return "Invalid 2FA code."
	case Is(err, ErrNotAdmin):
		return "Not an admin user."
	case Is(err, ErrEmailNotFound):
		return "Email address not found. Please check your email or register a new account."
	case Is(err, ErrInvalidResetToken):
		return "Invalid or expired reset link. Please request a new password reset."
	case Is(err, ErrUnexpectedResponse):
		return "Unexpected response from server."
	case Is(err, ErrPriceUnavailable):
		return "Asset price unavailable."
	case Is(err, ErrInvalidAmount):
		return "Enter a valid amount."
	case Is(err, ErrUploadTooLarge):
		return "File is too large. Maximum size is 5MB."
	case Is(err, ErrUploadType):
		return "Only PNG, JPG and JPEG images are allowed."
	}

	var malformed *MalformedResponseError
	if As(err, &malformed) {
		return "Server returned data in an unexpected format."
	}

	var httpErr *HTTPError
	if As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}

	var validation *ValidationError
	if As(err, &validation) {
		return validation.Message
	}

	return fallback
}
