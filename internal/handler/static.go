package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// reservedPrefixes are never answered with the SPA shell.
var reservedPrefixes = []string{"api/", "admin/api/", "uploads/"}

// SPAHandler serves the built frontend and falls back to index.html so
// client-side routes such as /access and /vip resolve.
type SPAHandler struct {
	staticDir string
	prefix    string
	indexFile string
}

func NewSPAHandler(staticDir, prefix string) *SPAHandler {
	return &SPAHandler{
		staticDir: staticDir,
		prefix:    prefix,
		indexFile: "index.html",
	}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(r.URL.Path, h.prefix)), "/")

	for _, p := range reservedPrefixes {
		if rel+"/" == p || strings.HasPrefix(rel, p) {
			http.NotFound(w, r)
			return
		}
	}

	if rel != "" {
		filePath := filepath.Join(h.staticDir, filepath.FromSlash(rel))
		if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
			if strings.HasPrefix(rel, "assets/") {
				w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			}
			http.ServeFile(w, r, filePath)
			return
		}
	}

	indexPath := filepath.Join(h.staticDir, h.indexFile)
	if _, err := os.Stat(indexPath); err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, indexPath)
}

func StaticFileServer(staticDir, prefix string) http.Handler {
	return NewSPAHandler(staticDir, prefix)
}

// UploadsFileServer serves stored member images read-only, without directory listings.
func UploadsFileServer(uploadDir string) http.Handler {
	fs := http.FileServer(http.Dir(uploadDir))
	return http.StripPrefix("/uploads", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		fs.ServeHTTP(w, r)
	}))
}
