package services

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/disintegration/imaging"
)

const maxUploadDimension = 1024
const maxEmailWidth = 800

// ProcessUploadedImage normalizes the kiosk photo before generation: fixes
// orientation-agnostic decode, downscales anything above 1024px on the longest
// side and re-encodes as PNG for the generation API.
func ProcessUploadedImage(imageBytes []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxUploadDimension || bounds.Dy() > maxUploadDimension {
		img = imaging.Fit(img, maxUploadDimension, maxUploadDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ResizeForEmail caps the avatar at 800px width so the inline image stays
// mail-client friendly. Smaller images pass through re-encoded.
func ResizeForEmail(imageBytes []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if img.Bounds().Dx() > maxEmailWidth {
		img = imaging.Resize(img, maxEmailWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// OverlayLogo composites the event logo into the bottom-right corner of the
// generated avatar. The logo is scaled to logoWidthRatio of the avatar width
// and inset by marginRatio on both axes.
func OverlayLogo(avatarBytes []byte, logoBytes []byte, logoWidthRatio float64, marginRatio float64) ([]byte, error) {
	if logoWidthRatio <= 0 || logoWidthRatio > 1 {
		return nil, fmt.Errorf("logoWidthRatio must be in (0, 1]")
	}

	avatar, _, err := image.Decode(bytes.NewReader(avatarBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode avatar image: %w", err)
	}
	logo, _, err := image.Decode(bytes.NewReader(logoBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode logo image: %w", err)
	}

	bounds := avatar.Bounds()
	logoWidth := int(float64(bounds.Dx()) * logoWidthRatio)
	logo = imaging.Resize(logo, logoWidth, 0, imaging.Lanczos)

	margin := int(float64(bounds.Dx()) * marginRatio)
	offset := image.Pt(
		bounds.Max.X-logo.Bounds().Dx()-margin,
		bounds.Max.Y-logo.Bounds().Dy()-margin,
	)

	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, avatar, image.Point{}, draw.Src)
	draw.Draw(out, logo.Bounds().Add(offset), logo, image.Point{}, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode composited image: %w", err)
	}
	return buf.Bytes(), nil
}
