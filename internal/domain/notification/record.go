package notification

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	domainErrors "github.com/roboyicecream/kioskpay/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// nameWindow bounds how far before the marker the payer name may start.
const nameWindow = 50

// Parse issues carried on a Record when the notification was recognised but
// its amount could not be trusted.
const (
	IssueUnsupportedCurrency = "Unsupported currency."
	IssueUnreadableAmount    = "Unreadable amount."
)

var amountPattern = regexp.MustCompile(`\d[\d.,]*`)

// Record is the payment extracted from one notification.
type Record struct {
	AmountCents int64
	PayerName   string
	// ParseIssue is the customer facing text for Issue.
	ParseIssue string
	Issue      error
}

func (r *Record) setIssue(err error) {
	r.Issue = err
	if errors.Is(err, domainErrors.ErrUnsupportedCurrency) {
		r.ParseIssue = IssueUnsupportedCurrency
	} else {
		r.ParseIssue = IssueUnreadableAmount
	}
}

// ParseBody extracts payer and amount from a notification body. The body is
// semi-structured HTML, so the payer name is located by its position in
// front of the locale marker and the amount by what follows it.
func ParseBody(body string, locale Locale) (Record, error) {
	marker := locale.Marker()
	markerPos := strings.Index(body, marker)
	if markerPos < 0 {
		return Record{}, fmt.Errorf("%w: marker %q not in body", domainErrors.ErrNoMatchFound, marker)
	}

	rec := Record{PayerName: payerName(body, markerPos)}

	rest := body[markerPos+len(marker):]
	if end := strings.IndexByte(rest, '<'); end >= 0 {
		rest = rest[:end]
	}
	money := html.UnescapeString(rest)

	if !hasEuro(money) {
		rec.setIssue(fmt.Errorf("%w in %q", domainErrors.ErrUnsupportedCurrency, strings.TrimSpace(money)))
		return rec, nil
	}

	cents, err := parseCents(amountPattern.FindString(money))
	if err != nil {
		rec.setIssue(err)
		return rec, nil
	}
	rec.AmountCents = cents
	return rec, nil
}

func payerName(body string, nameEnd int) string {
	start := nameEnd - nameWindow
	if start < 0 {
		start = 0
	}
	// nearest tag close, or line break for plain-text bodies
	if i := strings.LastIndexAny(body[start:nameEnd], ">\n"); i >= 0 {
		start += i + 1
	}
	return strings.TrimSpace(html.UnescapeString(strings.ToValidUTF8(body[start:nameEnd], "")))
}

func hasEuro(money string) bool {
	upper := strings.ToUpper(money)
	return strings.Contains(upper, "EUR") || strings.Contains(money, "€")
}

// parseCents accepts "2", "2,50", "2.50" and grouped forms such as
// "1.234,56". The last separator is the decimal one unless exactly three
// digits follow it.
func parseCents(raw string) (int64, error) {
	raw = strings.TrimRight(raw, ".,")
	if raw == "" {
		return 0, fmt.Errorf("%w: no amount", domainErrors.ErrInvalidInput)
	}

	intPart, frac := raw, ""
	if sep := strings.LastIndexAny(raw, ".,"); sep >= 0 && len(raw)-sep-1 != 3 {
		intPart, frac = raw[:sep], raw[sep+1:]
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if frac == "" {
		frac = "0"
	}

	d, err := decimal.NewFromString(intPart + "." + frac)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", domainErrors.ErrInvalidInput, raw, err)
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
