package index

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/matrixci/pkg/sdist"
)

// Upload pushes a built distribution through the legacy upload API: a
// multipart/form-data POST carrying the file and its metadata, HTTP basic
// auth for credentials.  Anything other than a 2xx is an *HTTPError, with
// the index's stated reason in Detail.
func (c Client) Upload(ctx context.Context, art *sdist.Artifact) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("upload %q => %w", art.Filename, err)
		}
	}()
	c.fillDefaults()

	file, err := os.Open(art.Path)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	fields := map[string]string{
		":action":          "file_upload",
		"protocol_version": "1",
		"metadata_version": "2.1",
		"name":             art.Name,
		"version":          art.Version.String(),
		"filetype":         "sdist",
		"pyversion":        "source",
		"md5_digest":       art.MD5,
		"sha256_digest":    art.SHA256,
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, name := range names {
		if err := form.WriteField(name, fields[name]); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("content", art.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadURL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("User-Agent", c.UserAgent)
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := resp.Body.Close(); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{
			Status:     resp.Status,
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(detail)),
		}
	}
	dlog.Infof(ctx, "uploaded %s (%s) to %s", art.Filename, art.SHA256[:12], c.UploadURL)
	return nil
}
