package webserver

import (
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/ocrlab/ocrlab/web"
)

func registerRoutes(mux *http.ServeMux, api http.Handler) error {
	mux.Handle("/api/", api)

	handler, err := spaHandler()
	if err != nil {
		return fmt.Errorf("failed to initialize dashboard handler: %w", err)
	}
	mux.Handle("/", handler)
	return nil
}

// spaHandler serves the embedded dashboard. Unknown paths get index.html so
// client-side routes survive a reload.
func spaHandler() (http.Handler, error) {
	distFS, err := fs.Sub(web.Assets, "dist")
	if err != nil {
		return nil, fmt.Errorf("failed to create sub filesystem for web/dist: %w", err)
	}

	fileServer := http.FileServer(http.FS(distFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			cleanPath := strings.TrimPrefix(r.URL.Path, "/")
			if f, err := distFS.Open(cleanPath); err == nil {
				f.Close() //nolint:errcheck
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	}), nil
}
