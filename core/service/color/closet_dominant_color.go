package color

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
)

// maxImageBytes bounds how much of a product image gets downloaded for
// color sampling.
const maxImageBytes = 5 << 20

// ImageSampler estimates a dominant color from a product image. Used by
// the maintenance sweep only; the ingest path never fetches.
type ImageSampler struct {
	client *http.Client
}

func NewImageSampler(client *http.Client) *ImageSampler {
	return &ImageSampler{client: client}
}

// Dominant downloads the image and returns the average color of its
// central region as a hex string. The center crop avoids white studio
// backgrounds dominating the estimate.
func (s *ImageSampler) Dominant(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	r, g, b := averageCenter(img)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b), nil
}

// averageCenter averages the middle 60% of the image, sampling on a
// coarse grid rather than walking every pixel.
func averageCenter(img image.Image) (int, int, int) {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w == 0 || h == 0 {
		return 0, 0, 0
	}

	x0 := bounds.Min.X + w/5
	x1 := bounds.Max.X - w/5
	y0 := bounds.Min.Y + h/5
	y1 := bounds.Max.Y - h/5

	stride := (x1 - x0) / 64
	if stride < 1 {
		stride = 1
	}

	var sumR, sumG, sumB, count uint64
	for y := y0; y < y1; y += stride {
		for x := x0; x < x1; x += stride {
			r, g, b, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			sumR += uint64(r >> 8)
			sumG += uint64(g >> 8)
			sumB += uint64(b >> 8)
			count++
		}
	}
	if count == 0 {
		return 0, 0, 0
	}
	return int(sumR / count), int(sumG / count), int(sumB / count)
}
