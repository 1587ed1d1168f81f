package server

import (
	_ "embed"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/h2non/filetype"

	"xmastree/internal/ornament"
	"xmastree/internal/scene"
	"xmastree/internal/spiral"
	"xmastree/internal/texture"
)

//go:embed web/index.html
var indexHTML []byte

// Placement describes where one ornament hangs and which tile it shows.
type Placement struct {
	Index    int           `json:"index"`
	Fraction float64       `json:"fraction"`
	Spiral   spiral.Point3 `json:"spiral"`
	Position spiral.Point3 `json:"position"`
	Rotation [3]float64    `json:"rotation"`
	Tile     ornament.Tile `json:"tile"`
	Offset   [2]float64    `json:"offset"`
	Repeat   [2]float64    `json:"repeat"`
}

type uploadResponse struct {
	Texture  *texture.Texture `json:"texture"`
	Revision string           `json:"revision"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.composer.Snapshot())
}

func (s *Server) handlePlacements(w http.ResponseWriter, r *http.Request) {
	snap := s.composer.Snapshot()
	placements := make([]Placement, 0, len(snap.Slots))
	i := 0
	for _, n := range snap.Nodes {
		if n.Kind != scene.KindOrnament || i >= len(snap.Slots) {
			continue
		}
		slot := snap.Slots[i]
		offset, repeat := ornament.UV(slot.Tile)
		placements = append(placements, Placement{
			Index:    slot.Index,
			Fraction: slot.Fraction,
			Spiral:   slot.Position,
			Position: n.Transform.Position,
			Rotation: n.Transform.Rotation,
			Tile:     slot.Tile,
			Offset:   offset,
			Repeat:   repeat,
		})
		i++
	}
	writeJSON(w, placements)
}

// handleDefaultTexture serves the default asset cache-first.
func (s *Server) handleDefaultTexture(w http.ResponseWriter, r *http.Request) {
	data, err := s.cache.Fetch(r.Context(), s.cfg.Assets.DefaultTexture)
	if err != nil {
		s.logger.Warn("default texture fetch failed", "err", err)
		http.Error(w, "default texture unavailable", http.StatusNotFound)
		return
	}
	writeImage(w, data)
}

// handleActiveTexture serves the texture currently bound to the ornaments.
func (s *Server) handleActiveTexture(w http.ResponseWriter, r *http.Request) {
	tex := s.composer.Texture()
	if tex == nil {
		http.Error(w, "no texture applied", http.StatusNotFound)
		return
	}
	data, err := texture.EncodePNG(tex.Image)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("ETag", strconv.Quote(tex.ID))
	writeImage(w, data)
}

// handleUpload applies an image posted as the multipart field "file". A
// request without a file changes nothing.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrMissingFile):
			w.WriteHeader(http.StatusNoContent)
		case errors.As(err, &tooLarge):
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		default:
			http.Error(w, "multipart form with a file field required", http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	tex, err := texture.Await(r.Context(), s.loader.LoadBytes(r.Context(), header.Filename, data))
	switch {
	case errors.Is(err, texture.ErrNoFile):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, texture.ErrTooLarge):
		s.notifyError(header.Filename, err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case errors.Is(err, texture.ErrNotImage):
		s.notifyError(header.Filename, err)
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	case err != nil:
		s.notifyError(header.Filename, err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.applyUpload(tex)
	writeJSON(w, uploadResponse{Texture: tex, Revision: s.composer.Revision()})
}

// handleTile serves the part of the active texture shown by one ornament.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 || index >= ornament.Count {
		http.Error(w, "index must be between 0 and 24", http.StatusBadRequest)
		return
	}
	tex := s.composer.Texture()
	if tex == nil {
		http.Error(w, "no texture applied", http.StatusNotFound)
		return
	}
	tile := ornament.Tiles[index]
	img, err := tex.Tile(tile.X, tile.Y, ornament.Grid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	data, err := texture.EncodePNG(img)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeImage(w, data)
}

func writeImage(w http.ResponseWriter, data []byte) {
	mime := "application/octet-stream"
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		mime = kind.MIME.Value
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}
