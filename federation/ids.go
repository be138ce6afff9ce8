package federation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
)

// RefKind says what a canonical URL points at.
type RefKind int

const (
	KindAuthor RefKind = iota + 1
	KindPost
	KindComment
)

func (k RefKind) String() string {
	switch k {
	case KindAuthor:
		return "author"
	case KindPost:
		return "post"
	case KindComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Ref is a decomposed canonical URL. PostId and CommentId are uuid.Nil
// unless Kind reaches that deep.
type Ref struct {
	Host      string
	Kind      RefKind
	AuthorId  uuid.UUID
	PostId    uuid.UUID
	CommentId uuid.UUID
}

// Codec is the only place canonical URLs are taken apart or put together.
type Codec struct {
	LocalHost string
}

func NewCodec(localHost string) *Codec {
	return &Codec{LocalHost: NormalizeHost(localHost)}
}

// Parse decomposes raw into a Ref. Peers are sloppy with these URLs, so a
// trailing slash, doubled slashes, an /api prefix, a query string and a
// stray closing brace are all tolerated.
func (c *Codec) Parse(raw string) (Ref, error) {
	var ref Ref
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, "}")
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}

	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ref, fmt.Errorf("%w: not an absolute url %q", domain.ErrValidation, raw)
	}
	ref.Host = strings.ToLower(u.Scheme + "://" + u.Host)

	segments := make([]string, 0, 8)
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) > 0 && segments[0] == "api" {
		segments = segments[1:]
	}

	kinds := []struct {
		name string
		kind RefKind
		dst  *uuid.UUID
	}{
		{"authors", KindAuthor, &ref.AuthorId},
		{"posts", KindPost, &ref.PostId},
		{"comments", KindComment, &ref.CommentId},
	}
	for i, k := range kinds {
		if len(segments) < 2*i+2 {
			break
		}
		if segments[2*i] != k.name {
			return ref, fmt.Errorf("%w: unexpected segment %q in %q", domain.ErrValidation, segments[2*i], raw)
		}
		id, err := uuid.Parse(segments[2*i+1])
		if err != nil {
			return ref, fmt.Errorf("%w: bad %s id in %q", domain.ErrValidation, k.kind, raw)
		}
		*k.dst = id
		ref.Kind = k.kind
	}
	if ref.Kind == 0 || len(segments) > 2*int(ref.Kind) {
		return ref, fmt.Errorf("%w: not an author, post or comment url %q", domain.ErrValidation, raw)
	}
	return ref, nil
}

// ParseAuthor parses raw and requires it to name an author.
func (c *Codec) ParseAuthor(raw string) (Ref, error) {
	return c.parseKind(raw, KindAuthor)
}

// ParsePost parses raw and requires it to name a post.
func (c *Codec) ParsePost(raw string) (Ref, error) {
	return c.parseKind(raw, KindPost)
}

func (c *Codec) parseKind(raw string, kind RefKind) (Ref, error) {
	ref, err := c.Parse(raw)
	if err != nil {
		return ref, err
	}
	if ref.Kind != kind {
		return ref, fmt.Errorf("%w: %q is a %s url, want %s", domain.ErrValidation, raw, ref.Kind, kind)
	}
	return ref, nil
}

// URL formats the canonical URL for ref.
func (c *Codec) URL(ref Ref) string {
	switch ref.Kind {
	case KindComment:
		return c.CommentURL(ref.Host, ref.AuthorId, ref.PostId, ref.CommentId)
	case KindPost:
		return c.PostURL(ref.Host, ref.AuthorId, ref.PostId)
	default:
		return c.AuthorURL(ref.Host, ref.AuthorId)
	}
}

func (c *Codec) AuthorURL(host string, author uuid.UUID) string {
	return NormalizeHost(host) + "/authors/" + author.String()
}

func (c *Codec) PostURL(host string, author, post uuid.UUID) string {
	return c.AuthorURL(host, author) + "/posts/" + post.String()
}

func (c *Codec) CommentURL(host string, author, post, comment uuid.UUID) string {
	return c.PostURL(host, author, post) + "/comments/" + comment.String()
}

// InboxPath is the path segments of an author's inbox below a peer's API base.
func (c *Codec) InboxPath(recipient uuid.UUID) []string {
	return []string{"authors", recipient.String(), "inbox"}
}

// FollowerPath is the path segments of the follower query below a peer's API base.
func (c *Codec) FollowerPath(followed, follower uuid.UUID) []string {
	return []string{"authors", followed.String(), "followers", follower.String()}
}

// ResourcePath is the path segments of ref below a peer's API base.
func (c *Codec) ResourcePath(ref Ref) []string {
	segments := []string{"authors", ref.AuthorId.String()}
	if ref.Kind >= KindPost {
		segments = append(segments, "posts", ref.PostId.String())
	}
	if ref.Kind == KindComment {
		segments = append(segments, "comments", ref.CommentId.String())
	}
	return segments
}

// Host returns the normalized scheme://host of raw, or "" when raw has none.
func (c *Codec) Host(raw string) string {
	return NormalizeHost(raw)
}

// IsLocal reports whether host is this node.
func (c *Codec) IsLocal(host string) bool {
	return NormalizeHost(host) == c.LocalHost
}

// NormalizeHost reduces raw to a lower-case scheme://host[:port].
func NormalizeHost(raw string) string {
	s := strings.TrimRight(strings.TrimSpace(raw), "/}")
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.ToLower(s)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
