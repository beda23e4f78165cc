package metadata

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"

	_ "image/gif"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// maxPosterBytes bounds poster downloads; anything larger is rejected.
const maxPosterBytes = 10 << 20

const posterJPEGQuality = 85

// downloadPoster fetches the image at ref.
func (s *Service) downloadPoster(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("create poster request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poster download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poster download failed: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPosterBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read poster: %w", err)
	}
	if len(data) > maxPosterBytes {
		return nil, fmt.Errorf("poster exceeds %d bytes", maxPosterBytes)
	}
	return data, nil
}

// normalizePoster converts a downloaded image to JPEG for storage. JPEG input
// is stored as-is; PNG, GIF, WebP and BMP are transcoded.
func normalizePoster(data []byte) ([]byte, error) {
	kind := mimetype.Detect(data)
	if kind.Is("image/jpeg") {
		return data, nil
	}
	if !isSupportedImage(kind) {
		return nil, fmt.Errorf("unsupported poster type %s", kind.String())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode poster: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: posterJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode poster: %w", err)
	}
	return buf.Bytes(), nil
}

func isSupportedImage(kind *mimetype.MIME) bool {
	for _, mime := range []string{"image/png", "image/gif", "image/webp", "image/bmp"} {
		if kind.Is(mime) {
			return true
		}
	}
	return false
}
