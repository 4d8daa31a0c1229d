// Package paylink builds the electronic payment link shown to the customer
// and renders it as a QR code for the display.
package paylink

import (
	"encoding/base64"
	"fmt"
	"strings"

	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
	"github.com/skip2/go-qrcode"
)

// Currency is the only currency the kiosk charges in.
const Currency = "EUR"

// Link is a payment URL together with its QR rendering.
type Link struct {
	URL       string
	EncodedQR string // base64 PNG
}

type Linker struct {
	baseURL string
	size    int
	level   qrcode.RecoveryLevel
}

func NewLinker(baseURL string, size int) *Linker {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if size <= 0 {
		size = 256
	}
	return &Linker{baseURL: baseURL, size: size, level: qrcode.Medium}
}

// URL returns "<base><euros>.<cents>EUR" for a price in cents.
func (l *Linker) URL(priceCents int64) (string, error) {
	if priceCents < 0 {
		return "", fmt.Errorf("negative price %d", priceCents)
	}
	return l.baseURL + domainSale.FormatCents(priceCents) + Currency, nil
}

// Link builds the payment URL and its base64 encoded PNG QR code.
func (l *Linker) Link(priceCents int64) (Link, error) {
	url, err := l.URL(priceCents)
	if err != nil {
		return Link{}, err
	}

	png, err := qrcode.Encode(url, l.level, l.size)
	if err != nil {
		return Link{}, fmt.Errorf("render qr code: %w", err)
	}

	return Link{
		URL:       url,
		EncodedQR: base64.StdEncoding.EncodeToString(png),
	}, nil
}
