// Package indexserver is a small self-hostable Python package index: the
// legacy upload API plus the PEP 503 simple API and the JSON API's release
// listing, which is everything a `deploy:` stage needs to target it.
// Distributions live in a plain directory, one subdirectory per normalized
// package name.
package indexserver

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/datawire/dlib/dlog"
	"github.com/go-chi/chi/v5"

	"github.com/datawire/matrixci/pkg/index"
	"github.com/datawire/matrixci/pkg/sdist"
)

type Server struct {
	// Dir is the storage root.  It is created on first upload if need be.
	Dir string

	// Username/Password, when set, are required to upload.  Reads stay
	// open; pip needs them.
	Username string
	Password string

	mu sync.Mutex
}

// Handler returns the index's HTTP surface.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(logRequests)
	router.Post("/legacy/", s.handleUpload)
	router.Get("/simple/", s.handleListPackages)
	router.Get("/simple/{pkg}/", s.handleListFiles)
	router.Get("/packages/{pkg}/{filename}", s.handleDownload)
	router.Get("/pypi/{pkg}/json", s.handleJSON)
	return router
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dlog.Infof(r.Context(), "%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) pkgDir(pkgname string) string {
	return filepath.Join(s.Dir, index.Normalize(pkgname))
}

// packages lists the normalized names of everything on the index.
func (s *Server) packages() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// files describes a package's stored distributions, sorted by version then
// filename.  A package with no directory simply has no files.
func (s *Server) files(pkgname string) ([]*sdist.Artifact, error) {
	entries, err := os.ReadDir(s.pkgDir(pkgname))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var arts []*sdist.Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		art, err := sdist.FromFile(filepath.Join(s.pkgDir(pkgname), entry.Name()))
		if err != nil {
			// non-sdist debris in the directory isn't the client's
			// problem
			continue
		}
		arts = append(arts, art)
	}
	sort.Slice(arts, func(i, j int) bool {
		if cmp := arts[i].Version.Cmp(arts[j].Version); cmp != 0 {
			return cmp < 0
		}
		return arts[i].Filename < arts[j].Filename
	})
	return arts, nil
}
