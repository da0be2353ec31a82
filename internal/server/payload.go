package server

import (
	"encoding/base64"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var acceptedMimes = []string{"image/jpeg", "image/png", "image/gif", "image/bmp"}

// decodePayload strips an optional data URL header and decodes the base64
// body. Format detection happens later from the bytes themselves.
func decodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		parts := strings.SplitN(payload, ",", 2)
		if len(parts) != 2 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid base64 image format")
		}
		if !acceptedMime(parts[0]) {
			return nil, fiber.NewError(fiber.StatusUnsupportedMediaType, "Unsupported image type")
		}
		payload = parts[1]
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Failed to decode base64: "+err.Error())
	}
	if len(decoded) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, msgMissingData)
	}
	return decoded, nil
}

func acceptedMime(meta string) bool {
	meta = strings.TrimPrefix(meta, "data:")
	mime, _, _ := strings.Cut(meta, ";")
	for _, m := range acceptedMimes {
		if strings.EqualFold(mime, m) {
			return true
		}
	}
	return false
}
