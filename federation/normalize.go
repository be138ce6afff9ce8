package federation

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/deemkeen/plaza/domain"
)

// ProxyPath is where this node serves remote images from.
const ProxyPath = "/proxy/images"

var (
	markdownImage = regexp.MustCompile(`!\[([^\]]*)\]\(\s*([^)\s]+)((?:\s+"[^"]*")?\s*)\)`)
	htmlImage     = regexp.MustCompile(`(<img\b[^>]*?\bsrc\s*=\s*["'])([^"']+)(["'])`)
)

// Normalizer rewrites media references in content crossing the node boundary.
type Normalizer struct {
	codec *Codec
}

func NewNormalizer(codec *Codec) *Normalizer {
	return &Normalizer{codec: codec}
}

// Localize routes every inline image hosted elsewhere through this node's
// image proxy. Relative and already local references are left alone.
func (n *Normalizer) Localize(content string) string {
	return n.rewrite(content, func(src string) string {
		host := hostOf(src)
		if host == "" || isInline(src) || n.codec.IsLocal(host) {
			return src
		}
		return n.codec.LocalHost + ProxyPath + "?src=" + url.QueryEscape(src)
	})
}

// Externalize turns references only this node can resolve into absolute
// URLs a peer can fetch: relative paths get this node's host and proxied
// references are unwrapped to the image they proxy.
func (n *Normalizer) Externalize(content string) string {
	return n.rewrite(content, func(src string) string {
		if original, ok := n.unproxy(src); ok {
			return original
		}
		if strings.HasPrefix(src, "/") && !strings.HasPrefix(src, "//") {
			return n.codec.LocalHost + src
		}
		return src
	})
}

// ReferencesLocalMedia reports whether content has an inline image that
// only resolves on this node.
func (n *Normalizer) ReferencesLocalMedia(content string) bool {
	found := false
	n.rewrite(content, func(src string) string {
		if isInline(src) {
			return src
		}
		if host := hostOf(src); host == "" || n.codec.IsLocal(host) {
			found = true
		}
		return src
	})
	return found
}

func (n *Normalizer) unproxy(src string) (string, bool) {
	u, err := url.Parse(src)
	if err != nil || u.Path != ProxyPath {
		return "", false
	}
	if u.Host != "" && !n.codec.IsLocal(u.Scheme+"://"+u.Host) {
		return "", false
	}
	original := u.Query().Get("src")
	return original, original != ""
}

func (n *Normalizer) rewrite(content string, fn func(src string) string) string {
	content = markdownImage.ReplaceAllStringFunc(content, func(m string) string {
		parts := markdownImage.FindStringSubmatch(m)
		return "![" + parts[1] + "](" + fn(parts[2]) + parts[3] + ")"
	})
	return htmlImage.ReplaceAllStringFunc(content, func(m string) string {
		parts := htmlImage.FindStringSubmatch(m)
		return parts[1] + fn(parts[2]) + parts[3]
	})
}

func isInline(src string) bool {
	return strings.HasPrefix(src, "data:")
}

func hostOf(src string) string {
	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return ""
	}
	return NormalizeHost(u.Scheme + "://" + u.Host)
}

// NormalizeMedia brings inline image payloads into one shape: the content
// type becomes image/<format>;base64 and the body padded standard base64
// without a data: prefix. Other content types pass through untouched.
func NormalizeMedia(contentType, content string) (string, string, error) {
	ct := strings.ToLower(strings.ReplaceAll(contentType, " ", ""))
	body := strings.TrimSpace(content)

	if strings.HasPrefix(body, "data:") {
		comma := strings.IndexByte(body, ',')
		if comma < 0 {
			return "", "", fmt.Errorf("%w: malformed data uri", domain.ErrValidation)
		}
		header := strings.TrimPrefix(body[:comma], "data:")
		if !strings.Contains(header, ";base64") {
			return "", "", fmt.Errorf("%w: data uri is not base64", domain.ErrValidation)
		}
		if ct == "" || ct == "application/base64" || strings.HasPrefix(ct, "image/") {
			ct = strings.ToLower(header)
		}
		body = body[comma+1:]
	}

	switch {
	case ct == "application/base64":
	case strings.HasPrefix(ct, "image/"):
		format := strings.TrimPrefix(strings.TrimSuffix(ct, ";base64"), "image/")
		if format == "" || strings.ContainsAny(format, ";/") {
			return "", "", fmt.Errorf("%w: unsupported media type %q", domain.ErrValidation, contentType)
		}
		if format == "jpg" {
			format = "jpeg"
		}
		ct = "image/" + format + ";base64"
	default:
		return contentType, content, nil
	}

	raw, err := decodeBase64(body)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s payload is not base64", domain.ErrValidation, ct)
	}
	return ct, base64.StdEncoding.EncodeToString(raw), nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	var lastErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		raw, err := enc.DecodeString(s)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
