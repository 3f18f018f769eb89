package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// NewSearchID generates a 16 hex character, uniformly random search id.
//
// The original implementation truncates a UUIDv4 to its first 16 hex chars;
// a UUIDv4 fixes the variant nibble at a known position, which would bias
// the last-hex-digit parity this id's bucket assignment depends on. Drawing
// 8 raw random bytes instead keeps every hex position, including the last,
// uniformly distributed.
func NewSearchID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("service.NewSearchID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// AssignBucket derives the A/B bucket deterministically from the last hex
// digit of searchID: even → control, odd → variant. It returns the
// effective (alpha, beta) to use for this request — never mutates shared
// engine state, so there is nothing to restore on error or cancellation.
func AssignBucket(searchID string, defaultAlpha, defaultBeta, variantAlpha, variantBeta float64) (model.Bucket, float64, float64, error) {
	if len(searchID) == 0 {
		return "", 0, 0, fmt.Errorf("service.AssignBucket: empty search id")
	}
	last := searchID[len(searchID)-1]
	v, err := hexDigit(last)
	if err != nil {
		return "", 0, 0, fmt.Errorf("service.AssignBucket: %w", err)
	}
	if v%2 == 0 {
		return model.BucketControl, defaultAlpha, defaultBeta, nil
	}
	return model.BucketVariant, variantAlpha, variantBeta, nil
}

func hexDigit(b byte) (int, error) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), nil
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, nil
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", b)
	}
}
