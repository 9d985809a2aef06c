package proxyhttp

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// serveStatic serves requestPath (already trimmed of the route's prefix)
// out of dir, falling back to index.html for any path with no file
// extension (SPA-style client-side routing).
func serveStatic(w http.ResponseWriter, r *http.Request, dir, requestPath string) bool {
	clean := filepath.Clean("/" + requestPath)
	full := filepath.Join(dir, clean)

	if !strings.HasPrefix(full, filepath.Clean(dir)+string(filepath.Separator)) && full != filepath.Clean(dir) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return true
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		if filepath.Ext(clean) == "" {
			full = filepath.Join(dir, "index.html")
			if _, err := os.Stat(full); err != nil {
				return false
			}
		} else {
			return false
		}
	}

	http.ServeFile(w, r, full)
	return true
}
