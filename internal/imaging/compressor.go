// Package imaging implements the photograph acquisition pipeline: a camera
// session that owns device selection and live capture, and an iterative
// compressor that drives any input image down to a fixed byte budget.
package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"strings"

	_ "image/gif"
	_ "image/png"

	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
)

// Compression parameters. The step sizes are asymmetric: over-budget results
// are costlier downstream than marginally-small ones, so the loop backs off
// faster than it recovers.
const (
	TargetSizeKB    = 95
	ToleranceKB     = 5
	MaxAttempts     = 5
	startQuality    = 0.95
	qualityDownStep = 0.05
	qualityUpStep   = 0.02
	minQuality      = 0.05
	maxQuality      = 0.98
)

// Result is a compressed photograph plus the size metadata reported for UI
// feedback.
type Result struct {
	Data               []byte
	ContentType        string
	OriginalByteSize   int
	CompressedByteSize int
	Attempts           int
}

// Compressor re-encodes images toward the target byte budget.
type Compressor struct {
	targetKB    float64
	toleranceKB float64
	maxAttempts int
}

// NewCompressor returns a compressor with the standard 95 KB budget.
func NewCompressor() *Compressor {
	return &Compressor{
		targetKB:    TargetSizeKB,
		toleranceKB: ToleranceKB,
		maxAttempts: MaxAttempts,
	}
}

// CompressUpload validates and compresses a user-selected file. Non-image
// payloads are rejected with a field-scoped error before any decode work.
func (c *Compressor) CompressUpload(data []byte) (*Result, error) {
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "please select an image file")
	}
	return c.Compress(data)
}

// Compress iteratively re-encodes the input as JPEG until the output lands
// within tolerance of the target, the attempt budget runs out, or an encode
// fails. The last produced result is kept even when outside tolerance; the
// loop never chases an exact size indefinitely.
func (c *Compressor) Compress(data []byte) (*Result, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "error processing image")
	}

	quality := startQuality
	var out []byte
	attempts := 0

	for attempts < c.maxAttempts {
		encoded, err := encodeJPEG(img, quality)
		if err != nil {
			if out == nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "error processing image")
			}
			// Keep the best effort from earlier attempts.
			break
		}
		out = encoded
		attempts++

		sizeKB := float64(len(out)) / 1024
		diff := sizeKB - c.targetKB
		if diff <= c.toleranceKB && diff >= -c.toleranceKB {
			break
		}
		if diff > 0 {
			quality -= qualityDownStep
		} else {
			quality += qualityUpStep
		}
		quality = clamp(quality, minQuality, maxQuality)
	}

	return &Result{
		Data:               out,
		ContentType:        "image/jpeg",
		OriginalByteSize:   len(data),
		CompressedByteSize: len(out),
		Attempts:           attempts,
	}, nil
}

func encodeJPEG(img image.Image, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	q := int(quality*100 + 0.5)
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
