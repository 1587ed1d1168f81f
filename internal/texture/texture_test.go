package texture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	data map[string][]byte
}

func (s stubFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	data, ok := s.data[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func quadrants(t *testing.T) []byte {
	t.Helper()
	// 10x10 image, 2x2 grid: top-left red, top-right green,
	// bottom-left blue, bottom-right white.
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			var c color.RGBA
			switch {
			case x < 5 && y < 5:
				c = color.RGBA{R: 255, A: 255}
			case y < 5:
				c = color.RGBA{G: 255, A: 255}
			case x < 5:
				c = color.RGBA{B: 255, A: 255}
			default:
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	data, err := EncodePNG(img)
	require.NoError(t, err)
	return data
}

func TestDecodePNG(t *testing.T) {
	tex, err := Decode("quadrants.png", quadrants(t))
	require.NoError(t, err)
	assert.Equal(t, "png", tex.Format)
	assert.Equal(t, "image/png", tex.MIME)
	assert.Equal(t, 10, tex.Width)
	assert.Equal(t, 10, tex.Height)
	assert.NotEmpty(t, tex.ID)
}

func TestDecodeRejectsNonImages(t *testing.T) {
	_, err := Decode("notes.txt", []byte("hello, this is not an image"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = Decode("empty", nil)
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestDecodeReportsCorruptImages(t *testing.T) {
	data := quadrants(t)
	_, err := Decode("truncated.png", data[:40])
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotImage)
}

func TestDecodeLimitedRejectsOversizedImages(t *testing.T) {
	data := quadrants(t)

	_, err := DecodeLimited("quadrants.png", data, 99)
	assert.ErrorIs(t, err, ErrTooLarge)

	tex, err := DecodeLimited("quadrants.png", data, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, tex.Width)

	// The header alone decides: a huge canvas with few bytes is refused.
	big, err := EncodePNG(image.NewGray(image.Rect(0, 0, 4000, 4000)))
	require.NoError(t, err)
	assert.Less(t, len(big), 1<<20)
	_, err = DecodeLimited("big.png", big, 1024*1024)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLoaderAppliesPixelLimit(t *testing.T) {
	loader := NewLoader(nil, nil).LimitPixels(50)
	_, err := Await(context.Background(), loader.LoadBytes(context.Background(), "quadrants.png", quadrants(t)))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestTileUsesBottomLeftOrigin(t *testing.T) {
	tex, err := Decode("quadrants.png", quadrants(t))
	require.NoError(t, err)

	tests := []struct {
		x, y int
		want color.RGBA
	}{
		{0, 0, color.RGBA{B: 255, A: 255}},
		{1, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255}},
		{0, 1, color.RGBA{R: 255, A: 255}},
		{1, 1, color.RGBA{G: 255, A: 255}},
	}
	for _, tt := range tests {
		tile, err := tex.Tile(tt.x, tt.y, 2)
		require.NoError(t, err)
		b := tile.Bounds()
		assert.Equal(t, 5, b.Dx())
		assert.Equal(t, 5, b.Dy())
		got := color.RGBAModel.Convert(tile.At(b.Min.X+2, b.Min.Y+2)).(color.RGBA)
		assert.Equal(t, tt.want, got, "tile (%d,%d)", tt.x, tt.y)
	}
}

func TestTileRejectsOutOfRange(t *testing.T) {
	tex := Placeholder(50, 5)
	_, err := tex.Tile(5, 0, 5)
	assert.Error(t, err)
	_, err = tex.Tile(0, -1, 5)
	assert.Error(t, err)

	tiny := Placeholder(3, 5)
	_, err = tiny.Tile(0, 0, 5)
	assert.Error(t, err)
}

func TestPlaceholderCellsDiffer(t *testing.T) {
	tex := Placeholder(100, 5)
	assert.Equal(t, 100, tex.Width)
	a := tex.Image.At(10, 10)
	b := tex.Image.At(30, 10)
	assert.NotEqual(t, a, b)
}

func TestLoaderDeliversOnce(t *testing.T) {
	loader := NewLoader(stubFetcher{data: map[string][]byte{"/default_texture.png": quadrants(t)}}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := loader.Load(ctx, "/default_texture.png")
	tex, err := Await(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, "/default_texture.png", tex.Source)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after the result")
}

func TestLoaderReportsFetchFailure(t *testing.T) {
	loader := NewLoader(stubFetcher{}, nil)
	ctx := context.Background()
	tex, err := Await(ctx, loader.Load(ctx, "/missing.png"))
	assert.Nil(t, tex)
	assert.ErrorContains(t, err, "fetch /missing.png")
}

func TestLoadBytesEmptySelection(t *testing.T) {
	loader := NewLoader(nil, nil)
	ctx := context.Background()
	_, err := Await(ctx, loader.LoadBytes(ctx, "upload", nil))
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestAwaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Await(ctx, make(chan Result))
	assert.ErrorIs(t, err, context.Canceled)
}
