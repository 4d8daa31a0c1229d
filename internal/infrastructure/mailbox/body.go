package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// HTMLBody returns the text/html part of a raw message, falling back to the
// first text/plain part when the message has no html alternative.
func HTMLBody(raw []byte) (string, error) {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("read message: %w", err)
	}
	defer r.Close()

	var plain string
	var havePlain bool
	for {
		part, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()

		switch strings.ToLower(contentType) {
		case "text/html":
			b, err := io.ReadAll(part.Body)
			if err != nil {
				return "", fmt.Errorf("read html part: %w", err)
			}
			return string(b), nil
		case "text/plain", "":
			if havePlain {
				continue
			}
			b, err := io.ReadAll(part.Body)
			if err != nil {
				return "", fmt.Errorf("read text part: %w", err)
			}
			plain, havePlain = string(b), true
		}
	}

	if !havePlain {
		return "", errors.New("message has no text body")
	}
	return plain, nil
}
