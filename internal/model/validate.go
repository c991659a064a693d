package model

import (
	"fmt"
	"math"
)

// Field limits for logged values. These prevent a single oversized key or
// value from filling SQLite TEXT columns with caller-controlled garbage, and
// keep artifact blobs within what a single-row BLOB write handles sensibly.
const (
	MaxKeyLen         = 250
	MaxValueLen       = 8 * 1024         // 8 KB for param/tag values
	MaxArtifactName   = 250
	MaxArtifactSize   = 64 * 1024 * 1024 // 64 MB
)

// ValidateKey checks a param, tag, or metric key.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if len(key) > MaxKeyLen {
		return fmt.Errorf("key exceeds maximum length of %d bytes", MaxKeyLen)
	}
	return nil
}

// ValidateParamValue checks a param or tag value.
func ValidateParamValue(value string) error {
	if len(value) > MaxValueLen {
		return fmt.Errorf("value exceeds maximum length of %d bytes", MaxValueLen)
	}
	return nil
}

// ValidateMetricValue rejects values SQLite REAL cannot faithfully round-trip.
func ValidateMetricValue(value float64) error {
	if math.IsNaN(value) {
		return fmt.Errorf("metric value must not be NaN")
	}
	if math.IsInf(value, 0) {
		return fmt.Errorf("metric value must be finite")
	}
	return nil
}

// ValidateArtifact checks an artifact name and blob size.
func ValidateArtifact(name string, size int) error {
	if name == "" {
		return fmt.Errorf("artifact name must not be empty")
	}
	if len(name) > MaxArtifactName {
		return fmt.Errorf("artifact name exceeds maximum length of %d bytes", MaxArtifactName)
	}
	if size == 0 {
		return fmt.Errorf("artifact content must not be empty")
	}
	if size > MaxArtifactSize {
		return fmt.Errorf("artifact exceeds maximum size of %d bytes", MaxArtifactSize)
	}
	return nil
}
