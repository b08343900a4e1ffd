package bot

import (
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 512

var errEmptyQR = errors.New("qr content is empty")

// renderQR encodes an access URL as a PNG QR code.
func renderQR(content string) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errEmptyQR
	}
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}
	return png, nil
}
