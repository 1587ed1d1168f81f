package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmastree/internal/config"
	"xmastree/internal/ornament"
	"xmastree/internal/scene"
	"xmastree/internal/texture"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, adjust func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := &config.Config{
		Assets: config.AssetsConfig{Root: t.TempDir()},
		Cache:  config.CacheConfig{Storage: config.StorageMemory},
	}
	if adjust != nil {
		adjust(cfg)
	}
	require.NoError(t, cfg.Validate())
	s, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Prepare(context.Background()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	data, err := texture.EncodePNG(texture.Placeholder(size, ornament.Grid).Image)
	require.NoError(t, err)
	return data
}

func postFile(t *testing.T, url, field, name string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	resp, err := http.Post(url+"/texture", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getScene(t *testing.T, url string) scene.Scene {
	t.Helper()
	resp, err := http.Get(url + "/scene")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s scene.Scene
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func countOrnaments(s scene.Scene) int {
	n := 0
	for _, node := range s.Nodes {
		if node.Kind == scene.KindOrnament {
			n++
		}
	}
	return n
}

func TestHandleHealth(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIndexServesPage(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp, err = http.Get(ts.URL + "/nothing-here")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSceneAfterPrepareIsUntextured(t *testing.T) {
	_, ts := newTestServer(t)
	s := getScene(t, ts.URL)
	assert.NotEmpty(t, s.Revision)
	assert.Empty(t, s.TextureID)
	assert.Equal(t, ornament.Count, countOrnaments(s))
}

func TestPlacements(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/placements")
	require.NoError(t, err)
	defer resp.Body.Close()

	var placements []Placement
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&placements))
	require.Len(t, placements, ornament.Count)
	first := placements[0]
	assert.Equal(t, 0.0, first.Fraction)
	assert.InDelta(t, 2, first.Spiral.X, 1e-9)
	assert.InDelta(t, 0, first.Spiral.Y, 1e-12)
	assert.InDelta(t, -2.6, first.Position.Y, 1e-12)
	assert.Equal(t, ornament.Tile{X: 3, Y: 3}, first.Tile)
	assert.InDelta(t, 0.6, first.Offset[0], 1e-12)
	for i, p := range placements {
		assert.Equal(t, i, p.Index)
	}
}

func TestDefaultTextureServedFromCache(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/default_texture.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, placeholderSize, img.Bounds().Dx())

	// Changing the file on disk does not affect the installed copy.
	require.NoError(t, os.WriteFile(s.defaultAssetPath(), []byte("garbage"), 0o644))
	resp2, err := http.Get(ts.URL + "/default_texture.png")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "image/png", resp2.Header.Get("Content-Type"))
}

func TestLoadDefaultAppliesTexture(t *testing.T) {
	s, ts := newTestServer(t)
	s.loadDefault(context.Background())

	tex := s.composer.Texture()
	require.NotNil(t, tex)
	assert.Equal(t, "/default_texture.png", tex.Source)
	assert.Equal(t, tex.ID, getScene(t, ts.URL).TextureID)
}

func TestLoadDefaultFailureKeepsSceneUntextured(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(root+"/default_texture.png", []byte("not an image"), 0o644))
	cfg := &config.Config{Assets: config.AssetsConfig{Root: root}}
	require.NoError(t, cfg.Validate())
	s, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Prepare(context.Background()))
	before := s.composer.Revision()

	s.loadDefault(context.Background())
	assert.Nil(t, s.composer.Texture())
	assert.Equal(t, before, s.composer.Revision())
}

func TestUploadAppliesTexture(t *testing.T) {
	s, ts := newTestServer(t)
	resp := postFile(t, ts.URL, "file", "tree.png", pngBytes(t, 100))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Texture  texture.Texture `json:"texture"`
		Revision string          `json:"revision"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "tree.png", out.Texture.Source)
	assert.Equal(t, 100, out.Texture.Width)

	sc := getScene(t, ts.URL)
	assert.Equal(t, out.Texture.ID, sc.TextureID)
	assert.Equal(t, out.Revision, sc.Revision)
	assert.False(t, s.defaultActive)

	// A default load finishing late does not replace the upload.
	s.loadDefault(context.Background())
	assert.Equal(t, out.Texture.ID, s.composer.Texture().ID)
}

func TestUploadWithoutFileIsNoop(t *testing.T) {
	s, ts := newTestServer(t)
	before := s.composer.Revision()

	resp := postFile(t, ts.URL, "", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postFile(t, ts.URL, "file", "empty.png", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, before, s.composer.Revision())
}

func TestUploadRejectsNonImage(t *testing.T) {
	s, ts := newTestServer(t)
	before := s.composer.Revision()

	resp := postFile(t, ts.URL, "file", "notes.txt", []byte("hello there"))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, before, s.composer.Revision())
}

func TestUploadRejectsOversizedImageKeepsTexture(t *testing.T) {
	s, ts := newTestServerWith(t, func(cfg *config.Config) {
		cfg.Upload.MaxPixels = 120 * 120
	})
	require.Equal(t, http.StatusOK, postFile(t, ts.URL, "file", "small.png", pngBytes(t, 100)).StatusCode)
	bound := s.composer.Texture().ID
	before := s.composer.Revision()

	resp := postFile(t, ts.URL, "file", "huge.png", pngBytes(t, 200))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, bound, s.composer.Texture().ID)
	assert.Equal(t, before, s.composer.Revision())
}

func TestUploadCorruptImageKeepsTexture(t *testing.T) {
	s, ts := newTestServer(t)
	require.Equal(t, http.StatusOK, postFile(t, ts.URL, "file", "tree.png", pngBytes(t, 100)).StatusCode)
	bound := s.composer.Texture().ID
	before := s.composer.Revision()

	// A valid PNG signature followed by garbage.
	corrupt := append(pngBytes(t, 100)[:8], bytes.Repeat([]byte{0xde, 0xad}, 64)...)
	resp := postFile(t, ts.URL, "file", "broken.png", corrupt)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, bound, s.composer.Texture().ID)
	assert.Equal(t, before, s.composer.Revision())
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.Upload.MaxBytes = 64

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "big.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes(t, 100))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/texture", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	s.handleUpload(rr, req)

	assert.NotEqual(t, http.StatusOK, rr.Code)
	assert.Nil(t, s.composer.Texture())
}

func TestTileEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/texture/tiles/0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no texture yet")

	require.Equal(t, http.StatusOK, postFile(t, ts.URL, "file", "tree.png", pngBytes(t, 100)).StatusCode)

	resp, err = http.Get(ts.URL + "/texture/tiles/7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())

	for _, bad := range []string{"25", "-1", "x"} {
		resp, err := http.Get(ts.URL + "/texture/tiles/" + bad)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}
}

func TestActiveTexture(t *testing.T) {
	s, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/texture")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	s.loadDefault(context.Background())
	resp, err = http.Get(ts.URL + "/texture")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, placeholderSize, img.Bounds().Dx())
}

func TestReloadDefault(t *testing.T) {
	s, _ := newTestServer(t)
	s.loadDefault(context.Background())
	first := s.composer.Texture().ID

	require.NoError(t, os.WriteFile(s.defaultAssetPath(), pngBytes(t, 250), 0o644))
	s.reloadDefault(context.Background())
	tex := s.composer.Texture()
	assert.NotEqual(t, first, tex.ID)
	assert.Equal(t, 250, tex.Width)
}

func TestReloadDefaultKeepsUpload(t *testing.T) {
	s, ts := newTestServer(t)
	require.Equal(t, http.StatusOK, postFile(t, ts.URL, "file", "tree.png", pngBytes(t, 100)).StatusCode)
	uploaded := s.composer.Texture().ID

	require.NoError(t, os.WriteFile(s.defaultAssetPath(), pngBytes(t, 250), 0o644))
	s.reloadDefault(context.Background())
	assert.Equal(t, uploaded, s.composer.Texture().ID)

	resp, err := http.Get(ts.URL + "/default_texture.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 250, img.Bounds().Dx(), "cache holds the refreshed asset")
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebSocketPushesScenes(t *testing.T) {
	_, ts := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readEnvelope(t, conn)
	require.Equal(t, MessageScene, env.Type)
	var initial scene.Scene
	require.NoError(t, json.Unmarshal(env.Payload, &initial))
	assert.Equal(t, ornament.Count, countOrnaments(initial))
	assert.Empty(t, initial.TextureID)

	resp := postFile(t, ts.URL, "file", "notes.txt", []byte("hello there"))
	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	env2 := readEnvelope(t, conn)
	require.Equal(t, MessageError, env2.Type)
	assert.Greater(t, env2.Seq, env.Seq)
	var msg ErrorMessage
	require.NoError(t, json.Unmarshal(env2.Payload, &msg))
	assert.Equal(t, "notes.txt", msg.Source)

	resp = postFile(t, ts.URL, "file", "tree.png", pngBytes(t, 100))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env3 := readEnvelope(t, conn)
	require.Equal(t, MessageScene, env3.Type)
	var updated scene.Scene
	require.NoError(t, json.Unmarshal(env3.Payload, &updated))
	assert.NotEmpty(t, updated.TextureID)
}

func TestWatchAssetsReappliesDefault(t *testing.T) {
	s, _ := newTestServer(t)
	s.loadDefault(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.watchAssets(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	data := pngBytes(t, 250)
	assert.Eventually(t, func() bool {
		// Rewritten each tick in case the watcher was not yet registered.
		_ = os.WriteFile(s.defaultAssetPath(), data, 0o644)
		return s.composer.Texture().Width == 250
	}, 5*time.Second, 100*time.Millisecond)
}
