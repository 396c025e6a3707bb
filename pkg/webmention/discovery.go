package webmention

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Discover finds the webmention endpoint advertised by the target page:
// first in HTTP Link headers, then in <link> and <a> elements of the HTML
// body, in document order. Relative endpoint URLs are resolved against the
// page's final URL.
func (d *Dispatcher) Discover(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", d.userAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("target returned %s", resp.Status)
	}

	base := resp.Request.URL

	for _, h := range resp.Header.Values("Link") {
		if ep := endpointFromLinkHeader(h); ep != "" {
			return resolve(base, ep)
		}
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") && !strings.HasPrefix(ct, "application/xhtml") {
		return "", fmt.Errorf("no webmention endpoint advertised by %s", target)
	}
	body := io.LimitReader(resp.Body, 1<<20)
	ep, found, err := endpointFromHTML(body)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no webmention endpoint advertised by %s", target)
	}
	// an empty href resolves to the page itself
	return resolve(base, ep)
}

// endpointFromLinkHeader parses an HTTP Link header value, which may carry
// several comma-separated links, and returns the href of the first one
// whose rel set contains "webmention".
func endpointFromLinkHeader(header string) string {
	for _, part := range splitLinkHeader(header) {
		var href string
		var rels string
		for i, seg := range strings.Split(part, ";") {
			seg = strings.TrimSpace(seg)
			if i == 0 {
				if strings.HasPrefix(seg, "<") && strings.HasSuffix(seg, ">") {
					href = seg[1 : len(seg)-1]
				}
				continue
			}
			if k, v, ok := strings.Cut(seg, "="); ok && strings.EqualFold(strings.TrimSpace(k), "rel") {
				rels = strings.Trim(strings.TrimSpace(v), `"`)
			}
		}
		if href == "" {
			continue
		}
		for _, rel := range strings.Fields(rels) {
			if strings.EqualFold(rel, "webmention") {
				return href
			}
		}
	}
	return ""
}

// splitLinkHeader splits a Link header on commas that separate links, not
// commas inside <...> URLs.
func splitLinkHeader(header string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, c := range header {
		switch c {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, header[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, header[start:])
	return parts
}

// endpointFromHTML scans the document for the first <link> or <a> element
// with rel=webmention. An explicitly empty href means the page itself is
// the endpoint, which resolve handles.
func endpointFromHTML(r io.Reader) (string, bool, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", false, fmt.Errorf("could not parse target page: %w", err)
	}
	var found string
	var haveFound bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if haveFound {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "link" || n.Data == "a") {
			var href string
			var haveHref, isWebmention bool
			for _, a := range n.Attr {
				switch a.Key {
				case "href":
					href = a.Val
					haveHref = true
				case "rel":
					for _, rel := range strings.Fields(a.Val) {
						if strings.EqualFold(rel, "webmention") {
							isWebmention = true
						}
					}
				}
			}
			if isWebmention && haveHref {
				found = href
				haveFound = true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found, haveFound, nil
}

func resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("bad webmention endpoint url %q: %w", ref, err)
	}
	return base.ResolveReference(u).String(), nil
}
