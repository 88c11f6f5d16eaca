package indexserver

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/matrixci/pkg/index"
	"github.com/datawire/matrixci/pkg/sdist"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.Username != "" {
		username, password, ok := r.BasicAuth()
		if !ok || username != s.Username || password != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="matrixci index"`)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "malformed form: "+err.Error(), http.StatusBadRequest)
		return
	}
	if action := r.FormValue(":action"); action != "file_upload" {
		http.Error(w, fmt.Sprintf("unsupported :action %q", action), http.StatusBadRequest)
		return
	}

	file, hdr, err := r.FormFile("content")
	if err != nil {
		http.Error(w, "no content file in form", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	filename := filepath.Base(hdr.Filename)
	name, _, err := sdist.ParseFilename(filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if form := r.FormValue("name"); form != "" && index.Normalize(form) != index.Normalize(name) {
		http.Error(w, fmt.Sprintf("form name %q does not match filename %q", form, filename),
			http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := checkDigests(r, content); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.pkgDir(name), filename)
	if _, err := os.Stat(path); err == nil {
		// like PyPI, re-uploading a filename never overwrites it
		http.Error(w, "file already exists", http.StatusBadRequest)
		return
	}
	if err := writeFileAtomic(path, content); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	dlog.Infof(r.Context(), "stored %s", path)
	w.WriteHeader(http.StatusOK)
}

// checkDigests verifies whichever digest fields the uploader sent against
// the bytes it actually sent.
func checkDigests(r *http.Request, content []byte) error {
	if expected := r.FormValue("md5_digest"); expected != "" {
		sum := md5.Sum(content)
		if actual := hex.EncodeToString(sum[:]); actual != expected {
			return fmt.Errorf("md5 digest mismatch: expected=%s actual=%s", expected, actual)
		}
	}
	if expected := r.FormValue("sha256_digest"); expected != "" {
		sum := sha256.Sum256(content)
		if actual := hex.EncodeToString(sum[:]); actual != expected {
			return fmt.Errorf("sha256 digest mismatch: expected=%s actual=%s", expected, actual)
		}
	}
	return nil
}

func writeFileAtomic(path string, content []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
