package endpoints

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

type StaticEndpoints interface {
	Serve(http.ResponseWriter, *http.Request) error
}

type staticEndpoints struct {
	dir string
}

// NewStaticEndpoints serves the built client bundle from dir.
func NewStaticEndpoints(dir string) StaticEndpoints {
	return &staticEndpoints{dir: dir}
}

func (h *staticEndpoints) Serve(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.serve,
		http.MethodHead: h.serve,
	})
}

// serve returns the requested file, or index.html for client-side routes.
func (h *staticEndpoints) serve(w http.ResponseWriter, r *http.Request) error {
	name := filepath.Join(h.dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)
		return nil
	}

	index := filepath.Join(h.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Client bundle not found",
			ErrorLog:   fmt.Errorf("stat %s: %w", index, err),
		}
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, index)
	return nil
}
