package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, and sorts query parameters.
// It also removes fragments.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return normalize(u).String(), nil
}

func normalize(u *url.URL) *url.URL {
	out := *u
	out.Scheme = strings.ToLower(out.Scheme)
	out.Host = strings.ToLower(out.Host)

	if out.Scheme == "http" && strings.HasSuffix(out.Host, ":80") {
		out.Host = strings.TrimSuffix(out.Host, ":80")
	}
	if out.Scheme == "https" && strings.HasSuffix(out.Host, ":443") {
		out.Host = strings.TrimSuffix(out.Host, ":443")
	}
	if out.Path == "" {
		out.Path = "/"
	}

	out.Fragment = ""
	out.RawFragment = ""
	if out.RawQuery != "" {
		out.RawQuery = out.Query().Encode()
	}
	return &out
}

// resolve turns an href found on base into an absolute http(s) URL.
func resolve(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, fmt.Errorf("parse link %q: %w", href, err)
	}
	target := base.ResolveReference(ref)
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", target.Scheme)
	}
	return target, nil
}

// Extensions lists the file types cataloged by default.
var Extensions = []string{
	".mp4", ".pdf", ".srt", ".txt", ".avi", ".mkv", ".mov",
	".zip", ".tar", ".gz", ".rar", ".7z", ".bz2", ".xz",
	".mp3", ".flac", ".wav", ".ogg", ".m4a",
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp",
	".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx",
	".iso", ".dmg", ".exe", ".sh", ".msi", ".deb", ".rpm",
}

// classifier decides whether a link is a file to catalog or a directory to descend into.
type classifier struct {
	extensions []string
	root       string
}

func newClassifier(extensions []string, root *url.URL) classifier {
	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return classifier{extensions: exts, root: strings.ToLower(normalize(root).String())}
}

// isFile reports whether the decoded path ends in an allowlisted extension.
func (c classifier) isFile(u *url.URL) bool {
	return c.hasFileSuffix(u.Path)
}

// hasFileSuffix is used for hrefs that could not be parsed as URLs.
func (c classifier) hasFileSuffix(p string) bool {
	p = strings.ToLower(p)
	for _, ext := range c.extensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// isDirectory reports whether u stays inside the crawl root and carries no query string
// or fragment.
func (c classifier) isDirectory(u *url.URL) bool {
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return false
	}
	if c.isFile(u) {
		return false
	}
	return strings.HasPrefix(strings.ToLower(normalize(u).String()), c.root)
}

// fileNameParts returns the decoded base name of u and its lowercased extension.
// Either is empty when the path does not name a file.
func fileNameParts(u *url.URL) (string, string) {
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return "", ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", ""
	}
	ext := path.Ext(name)
	if ext == name || ext == "." {
		return name, ""
	}
	return name, strings.ToLower(ext)
}
