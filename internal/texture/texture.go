package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/anthonynsimon/bild/transform"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrNoFile reports an empty selection. Callers treat it as a no-op.
	ErrNoFile   = errors.New("texture: no file selected")
	ErrNotImage = errors.New("texture: not an image")
	// ErrTooLarge reports an image whose pixel count exceeds the limit.
	ErrTooLarge = errors.New("texture: image too large")
)

// Texture is a fully decoded image ready to be sampled by ornaments.
type Texture struct {
	ID     string      `json:"id"`
	Source string      `json:"source"`
	Format string      `json:"format"`
	MIME   string      `json:"mime"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Image  image.Image `json:"-"`
}

// Decode sniffs and decodes image bytes. source names the origin of the data
// for diagnostics only.
func Decode(source string, data []byte) (*Texture, error) {
	return DecodeLimited(source, data, 0)
}

// DecodeLimited is Decode with a bound on width×height, checked from the
// image header before any pixel is decoded. maxPixels <= 0 means no bound.
func DecodeLimited(source string, data []byte, maxPixels int64) (*Texture, error) {
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	if !filetype.IsImage(data) {
		return nil, fmt.Errorf("%s: %w", source, ErrNotImage)
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return nil, fmt.Errorf("sniff %s: %w", source, err)
	}
	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s header (%s): %w", source, kind.MIME.Value, err)
		}
		if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
			return nil, fmt.Errorf("%s is %dx%d, limit is %d pixels: %w", source, cfg.Width, cfg.Height, maxPixels, ErrTooLarge)
		}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s (%s): %w", source, kind.MIME.Value, err)
	}
	return newTexture(source, format, kind.MIME.Value, img), nil
}

func newTexture(source, format, mime string, img image.Image) *Texture {
	b := img.Bounds()
	return &Texture{
		ID:     uuid.NewString(),
		Source: source,
		Format: format,
		MIME:   mime,
		Width:  b.Dx(),
		Height: b.Dy(),
		Image:  img,
	}
}

// TileBounds returns the pixel rectangle of cell (tileX, tileY) in a grid×grid
// partition. Tile rows count upwards from the bottom edge of the image.
func (t *Texture) TileBounds(tileX, tileY, grid int) image.Rectangle {
	b := t.Image.Bounds()
	w, h := b.Dx()/grid, b.Dy()/grid
	x0 := b.Min.X + tileX*w
	y0 := b.Min.Y + (grid-1-tileY)*h
	return image.Rect(x0, y0, x0+w, y0+h)
}

// Tile crops one cell of the grid×grid partition.
func (t *Texture) Tile(tileX, tileY, grid int) (image.Image, error) {
	if grid <= 0 || tileX < 0 || tileY < 0 || tileX >= grid || tileY >= grid {
		return nil, fmt.Errorf("texture: tile (%d,%d) outside %dx%d grid", tileX, tileY, grid, grid)
	}
	r := t.TileBounds(tileX, tileY, grid)
	if r.Empty() {
		return nil, fmt.Errorf("texture: %dx%d image too small for %dx%d grid", t.Width, t.Height, grid, grid)
	}
	return transform.Crop(t.Image, r), nil
}

// EncodePNG serialises img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Placeholder draws a grid×grid board of coloured cells, each framed in
// white, for use when no default asset is available.
func Placeholder(size, grid int) *Texture {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	cell := size / grid
	border := max(1, cell/16)
	for ty := 0; ty < grid; ty++ {
		for tx := 0; tx < grid; tx++ {
			c := placeholderColor(tx, ty, grid)
			r := image.Rect(tx*cell+border, ty*cell+border, (tx+1)*cell-border, (ty+1)*cell-border)
			draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
		}
	}
	return newTexture("placeholder", "png", "image/png", img)
}

func placeholderColor(tx, ty, grid int) color.RGBA {
	n := grid * grid
	i := ty*grid + tx
	// Alternate festive reds and greens, brightening along the board.
	level := uint8(96 + 159*i/max(1, n-1))
	if (tx+ty)%2 == 0 {
		return color.RGBA{R: level, G: 24, B: 32, A: 255}
	}
	return color.RGBA{R: 24, G: level, B: 48, A: 255}
}
