package images

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// ErrInvalidDimensions is returned for images with an empty bounding box.
var ErrInvalidDimensions = errors.New("invalid image dimensions")

// Thumbnail scales img down so its longest side is at most maxSize. Smaller
// images are copied at their original size.
func Thumbnail(img image.Image, maxSize int) (image.Image, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}

	scale := 1.0
	if maxSize > 0 {
		scale = min(float64(maxSize)/float64(max(width, height)), 1)
	}
	newW := max(int(float64(width)*scale), 1)
	newH := max(int(float64(height)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	// JPEG has no alpha; paint transparent areas white instead of black.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst, nil
}

// Encode writes img as "jpeg" (default) or "png".
func Encode(w io.Writer, img image.Image, format string, jpegQuality int) error {
	switch strings.ToLower(format) {
	case "png":
		return png.Encode(w, img)
	case "jpeg", "jpg", "":
		q := min(max(jpegQuality, 1), 100)
		return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// ThumbnailPath names the thumbnail of filename inside outDir, e.g.
// "box.png" -> "box.thumbnail.jpg".
func ThumbnailPath(outDir, filename, suffix, format string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	ext := "jpg"
	if format == "png" {
		ext = "png"
	}
	return filepath.Join(outDir, fmt.Sprintf("%s.%s.%s", base, suffix, ext))
}

// ThumbnailFile decodes inPath and writes its thumbnail to outPath.
func ThumbnailFile(inPath, outPath string, maxSize int, format string, jpegQuality int) error {
	inFile, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer inFile.Close() // nolint:errcheck

	srcImg, _, err := image.Decode(inFile)
	if err != nil {
		return err
	}
	thumb, err := Thumbnail(srcImg, maxSize)
	if err != nil {
		return err
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := Encode(outFile, thumb, format, jpegQuality); err != nil {
		_ = outFile.Close()
		return err
	}
	return outFile.Close()
}

var sourceExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// ThumbnailDir writes a thumbnail for every image in inDir, skipping files
// that already carry the suffix. It returns the paths written.
func ThumbnailDir(inDir, outDir string, maxSize int, format string, jpegQuality int, suffix string) ([]string, error) {
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return nil, err
	}

	marker := "." + strings.ToLower(suffix) + "."
	var written []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		if !hasImageExtension(lower) || strings.Contains(lower, marker) {
			continue
		}

		outPath := ThumbnailPath(outDir, name, suffix, format)
		if err := ThumbnailFile(filepath.Join(inDir, name), outPath, maxSize, format, jpegQuality); err != nil {
			return written, fmt.Errorf("thumbnail %s: %w", name, err)
		}
		written = append(written, outPath)
	}
	return written, nil
}

func hasImageExtension(name string) bool {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
