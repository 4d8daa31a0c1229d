package paylink

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinker_URL(t *testing.T) {
	l := NewLinker("https://www.paypal.me/roboyicecream", 0)

	tests := []struct {
		cents    int64
		expected string
	}{
		{250, "https://www.paypal.me/roboyicecream/2.50EUR"},
		{205, "https://www.paypal.me/roboyicecream/2.05EUR"},
		{100, "https://www.paypal.me/roboyicecream/1.00EUR"},
		{5, "https://www.paypal.me/roboyicecream/0.05EUR"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			url, err := l.URL(tt.cents)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, url)
		})
	}
}

func TestLinker_URL_Negative(t *testing.T) {
	_, err := NewLinker("https://pay.example/", 128).URL(-1)
	assert.Error(t, err)
}

func TestLinker_Link_EncodesPNG(t *testing.T) {
	l := NewLinker("https://pay.example/", 128)

	link, err := l.Link(350)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/3.50EUR", link.URL)

	raw, err := base64.StdEncoding.DecodeString(link.EncodedQR)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}
