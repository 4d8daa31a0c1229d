package notification

import (
	"fmt"
	"strings"

	"github.com/roboyicecream/kioskpay/internal/domain/errors"
)

// Locale selects the language the payment provider writes its
// notifications in.
type Locale string

const (
	LocaleDE Locale = "DE"
	LocaleEN Locale = "EN"
)

// ParseLocale accepts a case-insensitive locale code.
func ParseLocale(s string) (Locale, error) {
	switch Locale(strings.ToUpper(strings.TrimSpace(s))) {
	case LocaleDE:
		return LocaleDE, nil
	case LocaleEN:
		return LocaleEN, nil
	}
	return "", fmt.Errorf("%w: unsupported notification locale %q", errors.ErrInvalidInput, s)
}

// Marker is the phrase that directly follows the payer's name,
// e.g. "Jane Doe sent you 2,50 Euro".
func (l Locale) Marker() string {
	if l == LocaleEN {
		return "sent you"
	}
	return "hat Ihnen"
}

// Subject is the subject line of a payment-received notification.
func (l Locale) Subject() string {
	if l == LocaleEN {
		return "You've got money"
	}
	return "Sie haben Geld erhalten"
}
