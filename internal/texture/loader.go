package texture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Fetcher retrieves raw asset bytes by path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Result is the outcome of one load. Exactly one of Texture and Err is set.
type Result struct {
	Texture *Texture
	Err     error
}

// Loader decodes textures off the caller's goroutine. Each load delivers a
// single Result on its channel and then closes it.
type Loader struct {
	fetcher   Fetcher
	logger    *slog.Logger
	maxPixels int64
}

func NewLoader(fetcher Fetcher, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{fetcher: fetcher, logger: logger.With("component", "texture")}
}

// LimitPixels rejects images larger than n pixels with ErrTooLarge. It must
// be called before the first load; n <= 0 removes the limit.
func (l *Loader) LimitPixels(n int64) *Loader {
	l.maxPixels = n
	return l
}

// Load fetches path and decodes it.
func (l *Loader) Load(ctx context.Context, path string) <-chan Result {
	return l.start(path, func() ([]byte, error) {
		if l.fetcher == nil {
			return nil, errors.New("texture: loader has no fetcher")
		}
		data, err := l.fetcher.Fetch(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", path, err)
		}
		return data, nil
	})
}

// LoadBytes decodes data that the caller already holds, such as an upload.
func (l *Loader) LoadBytes(ctx context.Context, source string, data []byte) <-chan Result {
	return l.start(source, func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return data, nil
	})
}

func (l *Loader) start(source string, read func() ([]byte, error)) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		data, err := read()
		if err != nil {
			l.logger.Warn("texture load failed", "source", source, "err", err)
			ch <- Result{Err: err}
			return
		}
		tex, err := DecodeLimited(source, data, l.maxPixels)
		if err != nil {
			if !errors.Is(err, ErrNoFile) {
				l.logger.Warn("texture decode failed", "source", source, "err", err)
			}
			ch <- Result{Err: err}
			return
		}
		l.logger.Debug("texture loaded", "source", source, "id", tex.ID, "format", tex.Format, "width", tex.Width, "height", tex.Height)
		ch <- Result{Texture: tex}
	}()
	return ch
}

// Await blocks until the load completes or ctx is done.
func Await(ctx context.Context, ch <-chan Result) (*Texture, error) {
	select {
	case res, ok := <-ch:
		if !ok {
			return nil, errors.New("texture: load abandoned")
		}
		return res.Texture, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
