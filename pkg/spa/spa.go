// Package spa serves the built single-page app. Existing files are streamed
// with a content type derived from their extension; every other path gets
// index.html so the client router can take over.
package spa

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/Sternrassler/intervu-client/pkg/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// IndexFile is served for every path that is not a file.
const IndexFile = "index.html"

// BuildNotFound is the body served when the build has no index.
const BuildNotFound = "Build not found"

const fallbackContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".js":    "application/javascript; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".json":  "application/json; charset=utf-8",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "intervu_spa_requests_total",
	Help: "Total SPA requests by kind (file, index, missing_build) and client route",
}, []string{"kind", "route"})

// ContentType returns the content type served for name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return fallbackContentType
}

// NormalizeBasePath makes raw start and end with "/". Empty input yields "/".
func NormalizeBasePath(raw string) string {
	b := strings.TrimSpace(raw)
	if b == "" {
		return "/"
	}
	if !strings.HasPrefix(b, "/") {
		b = "/" + b
	}
	if !strings.HasSuffix(b, "/") {
		b += "/"
	}
	return b
}

// Handler serves a build directory.
type Handler struct {
	fsys     fs.FS
	basePath string
	routes   router.Table
	logger   zerolog.Logger
}

// NewHandler creates a handler serving fsys under basePath.
func NewHandler(fsys fs.FS, basePath string, logger zerolog.Logger) *Handler {
	return &Handler{
		fsys:     fsys,
		basePath: NormalizeBasePath(basePath),
		routes:   router.Default,
		logger:   logger.With().Str("component", "spa").Logger(),
	}
}

// BasePath returns the normalized base path.
func (h *Handler) BasePath() string {
	return h.basePath
}

// StripBase removes the base path from urlPath, keeping the leading "/".
// Paths outside the base path are returned unchanged.
func (h *Handler) StripBase(urlPath string) string {
	if i := strings.IndexByte(urlPath, '?'); i >= 0 {
		urlPath = urlPath[:i]
	}
	if strings.HasPrefix(urlPath, h.basePath) {
		return urlPath[len(h.basePath)-1:]
	}
	return urlPath
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	served := h.StripBase(r.URL.Path)

	if !strings.HasSuffix(served, "/") {
		name := strings.TrimPrefix(path.Clean("/"+served), "/")
		if name != "" && h.serveFile(w, r, name) {
			requestsTotal.WithLabelValues("file", "asset").Inc()
			return
		}
	}

	h.serveIndex(w, r, served)
}

// serveFile streams name if it is a regular file. It reports whether it did.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, name string) bool {
	f, err := h.fsys.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	w.Header().Set("Content-Type", ContentType(name))

	if rs, ok := f.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, info.ModTime(), rs)
		return true
	}

	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		if _, err := io.Copy(w, f); err != nil {
			h.logger.Warn().Err(err).Str("file", name).Msg("Failed to stream file")
		}
	}
	return true
}

func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request, served string) {
	route := h.routes.Label(served)

	body, err := fs.ReadFile(h.fsys, IndexFile)
	kind := "index"
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.logger.Error().Err(err).Msg("Failed to read index")
		}
		body = []byte(BuildNotFound)
		kind = "missing_build"
	}
	requestsTotal.WithLabelValues(kind, route).Inc()

	w.Header().Set("Content-Type", contentTypes[".html"])
	http.ServeContent(w, r, IndexFile, time.Time{}, bytes.NewReader(body))
}
