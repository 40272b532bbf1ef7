package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"refbook/internal/text"
)

// Kind classifies why a fetch failed. The lifecycle manager records it on the
// resource as a human-readable error, so the values read well in a UI.
type Kind string

const (
	KindUnreachable Kind = "unreachable"
	KindBlocked     Kind = "blocked"
	KindUnsupported Kind = "unsupported_content"
)

type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

const userAgent = "Mozilla/5.0 (compatible; RefBookBot/1.0)"

// maxBodyBytes caps how much of a page is read. Pages larger than this are
// truncated, not rejected.
const maxBodyBytes = 10 << 20

// Result is the extracted document of one URL.
type Result struct {
	Title string
	Text  string
}

// Fetcher retrieves a URL and extracts readable text from it.
type Fetcher struct {
	client *http.Client
}

func New(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			// Default policy follows up to 10 redirects.
		},
	}
}

// Fetch downloads rawURL, verifies it is textual content, and strips markup
// down to readable text plus a display title.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindBlocked, URL: rawURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	mediaType := "text/html"
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err = mime.ParseMediaType(ct)
		if err != nil {
			return nil, &Error{Kind: KindUnsupported, URL: rawURL, Err: fmt.Errorf("content type %q: %v", ct, err)}
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, URL: rawURL, Err: err}
	}

	var res *Result
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		res, err = extractHTML(string(body))
		if err != nil {
			return nil, &Error{Kind: KindUnsupported, URL: rawURL, Err: err}
		}
	case strings.HasPrefix(mediaType, "text/"):
		res = &Result{Text: text.Normalize(string(body))}
	default:
		return nil, &Error{Kind: KindUnsupported, URL: rawURL, Err: fmt.Errorf("content type %q is not text", mediaType)}
	}

	if res.Text == "" {
		return nil, &Error{Kind: KindUnsupported, URL: rawURL, Err: fmt.Errorf("no readable content")}
	}
	if res.Title == "" {
		res.Title = fallbackTitle(rawURL)
	}

	slog.DebugContext(ctx, "fetched url", "url", rawURL, "title", res.Title, "text_len", len(res.Text))
	return res, nil
}

// skipElements never contribute readable text.
var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"nav": true, "header": true, "footer": true, "aside": true, "form": true,
	"iframe": true, "svg": true,
}

func extractHTML(raw string) (*Result, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var firstH1 string
	var sb strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.Data] {
				return
			}
			switch n.Data {
			case "title":
				if res.Title == "" {
					res.Title = strings.TrimSpace(textContent(n))
				}
				return
			case "h1":
				if firstH1 == "" {
					firstH1 = strings.TrimSpace(textContent(n))
				}
			case "p", "div", "br", "li", "tr", "h2", "h3", "h4", "h5", "h6", "pre", "blockquote":
				sb.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if res.Title == "" {
		res.Title = firstH1
	}
	res.Text = text.Normalize(sb.String())
	return res, nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func fallbackTitle(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}
