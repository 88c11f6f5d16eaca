package indexserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/datawire/dlib/dlog"
	"github.com/go-chi/chi/v5"
	"golang.org/x/net/html"

	"github.com/datawire/matrixci/pkg/index"
)

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	names, err := s.packages()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<!DOCTYPE html>\n<html>\n  <head><title>Simple index</title></head>\n  <body>\n")
	for _, name := range names {
		fmt.Fprintf(w, "    <a href=\"/simple/%s/\">%s</a><br/>\n", name, html.EscapeString(name))
	}
	fmt.Fprint(w, "  </body>\n</html>\n")
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	pkgname := chi.URLParam(r, "pkg")
	if normalized := index.Normalize(pkgname); pkgname != normalized {
		http.Redirect(w, r, "/simple/"+normalized+"/", http.StatusMovedPermanently)
		return
	}
	arts, err := s.files(pkgname)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(arts) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	esc := html.EscapeString(pkgname)
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n  <head><title>Links for %s</title></head>\n  <body>\n    <h1>Links for %s</h1>\n", esc, esc)
	for _, art := range arts {
		fmt.Fprintf(w, "    <a href=\"/packages/%s/%s#sha256=%s\">%s</a><br/>\n",
			pkgname, art.Filename, art.SHA256, html.EscapeString(art.Filename))
	}
	fmt.Fprint(w, "  </body>\n</html>\n")
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	pkgname := chi.URLParam(r, "pkg")
	filename := filepath.Base(chi.URLParam(r, "filename"))
	http.ServeFile(w, r, filepath.Join(s.pkgDir(pkgname), filename))
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	pkgname := chi.URLParam(r, "pkg")
	arts, err := s.files(pkgname)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(arts) == 0 {
		http.NotFound(w, r)
		return
	}

	type jsonFile struct {
		Filename string            `json:"filename"`
		URL      string            `json:"url"`
		Size     int64             `json:"size"`
		Digests  map[string]string `json:"digests"`
	}
	releases := make(map[string][]jsonFile)
	for _, art := range arts {
		ver := art.Version.String()
		releases[ver] = append(releases[ver], jsonFile{
			Filename: art.Filename,
			URL:      fmt.Sprintf("/packages/%s/%s", index.Normalize(pkgname), art.Filename),
			Size:     art.Size,
			Digests:  map[string]string{"md5": art.MD5, "sha256": art.SHA256},
		})
	}
	// files() sorts by version, so the last artifact is the latest release
	latest := arts[len(arts)-1]
	resp := map[string]any{
		"info": map[string]any{
			"name":    latest.Name,
			"version": latest.Version.String(),
		},
		"releases": releases,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		dlog.Errorf(r.Context(), "encode releases: %v", err)
	}
}
