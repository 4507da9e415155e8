package validate

import (
	"errors"
	"fmt"
	"strings"
)

// File validation errors.
var (
	ErrInvalidMIMEType = errors.New("invalid MIME type")
	ErrFileTooLarge    = errors.New("file too large")
)

// Image MIME types accepted for photo and avatar uploads.
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
	MIMEImageWebP = "image/webp"
)

// AllowedImageTypes lists the image MIME types accepted anywhere in
// the service.
var AllowedImageTypes = []string{
	MIMEImageJPEG,
	MIMEImagePNG,
	MIMEImageWebP,
}

// FileConstraints bounds an upload before a presigned URL is issued.
type FileConstraints struct {
	AllowedTypes []string
	MaxSizeBytes int64 // 0 = no limit
}

// MIMEType checks a MIME type against an allowlist and returns it
// normalized (trimmed, lowercased).
func MIMEType(mimeType string, allowedTypes []string) (string, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		return "", ErrEmpty
	}
	for _, allowed := range allowedTypes {
		if mimeType == strings.ToLower(allowed) {
			return mimeType, nil
		}
	}
	return "", fmt.Errorf("%w: %q not in allowed types", ErrInvalidMIMEType, mimeType)
}

// FileSize checks a declared upload size against constraints.
func FileSize(sizeBytes int64, constraints FileConstraints) error {
	if sizeBytes <= 0 {
		return errors.New("file size must be positive")
	}
	if constraints.MaxSizeBytes > 0 && sizeBytes > constraints.MaxSizeBytes {
		return fmt.Errorf("%w: got %d bytes, maximum is %d", ErrFileTooLarge, sizeBytes, constraints.MaxSizeBytes)
	}
	return nil
}

// File checks MIME type and size together, returning the normalized
// MIME type.
func File(mimeType string, sizeBytes int64, constraints FileConstraints) (string, error) {
	validated, err := MIMEType(mimeType, constraints.AllowedTypes)
	if err != nil {
		return "", err
	}
	if err := FileSize(sizeBytes, constraints); err != nil {
		return "", err
	}
	return validated, nil
}

// ImageFile checks an image upload against the service-wide defaults:
// the image allowlist and a 10 MB cap.
func ImageFile(mimeType string, sizeBytes int64) (string, error) {
	return File(mimeType, sizeBytes, FileConstraints{
		AllowedTypes: AllowedImageTypes,
		MaxSizeBytes: 10 * 1024 * 1024,
	})
}
