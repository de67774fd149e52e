package services

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrCodeSize = 512

// GenerateDownloadQR renders a PNG QR code pointing at the avatar download
// URL, shown on the kiosk's final screen so participants can grab the image
// on their own phone.
func GenerateDownloadQR(downloadURL string) ([]byte, error) {
	if downloadURL == "" {
		return nil, fmt.Errorf("download URL is empty")
	}
	pngBytes, err := qrcode.Encode(downloadURL, qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %v", err)
	}
	return pngBytes, nil
}
