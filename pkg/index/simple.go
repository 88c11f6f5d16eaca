package index

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// Link is one anchor from a simple-API page.
type Link struct {
	Text      string
	HRef      string
	DataAttrs map[string]string
}

// Yanked reports whether the file carries the PEP 592 yank marker.  A
// yanked file is advertised as something installers should avoid, but it
// still exists, so its version still counts as released (and still blocks a
// re-upload).
func (l Link) Yanked() bool {
	_, ok := l.DataAttrs["data-yanked"]
	return ok
}

// YankedReason returns the free-text reason attached to the yank marker,
// "" when there is none or the file isn't yanked.
func (l Link) YankedReason() string {
	return l.DataAttrs["data-yanked"]
}

// RequiresPython returns the file's data-requires-python specifier, "" when
// the listing doesn't declare one.
func (l Link) RequiresPython() string {
	return l.DataAttrs["data-requires-python"]
}

// FileLink is a distribution file listed for a package.
type FileLink struct {
	client Client
	Link
}

// Get downloads the file.  The listing's checksum fragment, when present,
// is verified against the body.
func (l FileLink) Get(ctx context.Context) ([]byte, error) {
	_, content, err := l.client.get(ctx, l.HRef)
	return content, err
}

// ListFiles fetches the package's simple-API page and returns its file
// links.  The package name is normalized into the URL the way PEP 503
// specifies.
func (c Client) ListFiles(ctx context.Context, pkgname string) ([]FileLink, error) {
	if err := checkName(pkgname); err != nil {
		return nil, err
	}
	c.fillDefaults()

	u, err := url.Parse(c.SimpleURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, Normalize(pkgname)) + "/"
	rawLinks, err := c.getLinks(ctx, u.String())
	if err != nil {
		return nil, err
	}

	links := make([]FileLink, 0, len(rawLinks))
	for _, link := range rawLinks {
		links = append(links, FileLink{client: c, Link: link})
	}
	return links, nil
}

// checkName rejects names outside the simple API's character set before
// they end up spliced into a URL.
func checkName(pkgname string) error {
	for _, char := range pkgname {
		if !(('a' <= char && char <= 'z') ||
			('A' <= char && char <= 'Z') ||
			('0' <= char && char <= '9') ||
			char == '.' || char == '-' || char == '_') {
			return fmt.Errorf("illegal character in package name %q: %q", pkgname, char)
		}
	}
	if pkgname == "" {
		return fmt.Errorf("empty package name")
	}
	return nil
}

func (c Client) getLinks(ctx context.Context, requestURL string) ([]Link, error) {
	location, content, err := c.get(ctx, requestURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var links []Link
	if err := visitHTML(doc, func(node *html.Node) error {
		if node.Type != html.ElementNode || node.Data != "a" {
			return nil
		}
		link := Link{
			DataAttrs: make(map[string]string),
		}
		for _, attr := range node.Attr {
			switch {
			case attr.Namespace == "" && attr.Key == "href":
				href, err := location.Parse(attr.Val)
				if err != nil {
					return err
				}
				link.HRef = href.String()
			case attr.Namespace == "" && strings.HasPrefix(attr.Key, "data-"):
				link.DataAttrs[attr.Key] = attr.Val
			}
		}
		var text strings.Builder
		_ = visitHTML(node, func(child *html.Node) error {
			if child.Type == html.TextNode {
				text.WriteString(child.Data)
			}
			return nil
		})
		link.Text = strings.TrimSpace(text.String())
		links = append(links, link)
		return nil
	}); err != nil {
		return nil, err
	}

	return links, nil
}

func visitHTML(node *html.Node, visit func(*html.Node) error) error {
	if err := visit(node); err != nil {
		return err
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if err := visitHTML(child, visit); err != nil {
			return err
		}
	}
	return nil
}
