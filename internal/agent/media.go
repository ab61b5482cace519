package agent

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/open1s/aisbot/internal/providers"
)

// maxImageBytes is the safety limit for reading image files (10MB).
const maxImageBytes = 10 * 1024 * 1024

// maxImageDimension bounds the long edge of an embedded image; larger
// photos get downscaled before base64 encoding so a single turn's media
// doesn't blow the provider's payload or vision token budget.
const maxImageDimension = 1568

// loadImages reads local image files and returns base64-encoded ImageContent slices,
// downscaling any image whose long edge exceeds maxImageDimension. Non-image
// files and files that fail to read are skipped with a warning log.
func loadImages(paths []string) []providers.ImageContent {
	if len(paths) == 0 {
		return nil
	}

	var images []providers.ImageContent
	for _, p := range paths {
		mime := inferImageMime(p)
		if mime == "" {
			continue
		}

		data, err := os.ReadFile(p)
		if err != nil {
			slog.Warn("vision: failed to read image file", "path", p, "error", err)
			continue
		}
		if len(data) > maxImageBytes {
			slog.Warn("vision: image file too large, skipping", "path", p, "size", len(data))
			continue
		}

		data, mime = downscaleIfNeeded(data, mime, p)

		images = append(images, providers.ImageContent{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return images
}

// downscaleIfNeeded resizes an image in memory when its long edge exceeds
// maxImageDimension, returning the original bytes unchanged (and mime) when
// decoding or resizing fails — a bad downscale should never drop the image
// entirely, since the original still embeds fine at full size.
func downscaleIfNeeded(data []byte, mime, path string) ([]byte, string) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Debug("vision: image decode failed, embedding original bytes", "path", path, "error", err)
		return data, mime
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxImageDimension && h <= maxImageDimension {
		return data, mime
	}

	var resized image.Image
	if w >= h {
		resized = imaging.Resize(img, maxImageDimension, 0, imaging.Lanczos)
	} else {
		resized = imaging.Resize(img, 0, maxImageDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	var encErr error
	switch mime {
	case "image/png":
		encErr = png.Encode(&buf, resized)
	default:
		mime = "image/jpeg"
		encErr = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85})
	}
	if encErr != nil {
		slog.Debug("vision: image re-encode failed, embedding original bytes", "path", path, "error", encErr)
		return data, mime
	}
	return buf.Bytes(), mime
}

// inferImageMime returns the MIME type for supported image extensions, or "" if not an image.
func inferImageMime(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
