package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
)

const (
	maxResponseBytes = 1 << 20
	maxMediaBytes    = 8 << 20
)

// PeerClient talks HTTP to other nodes. Every call is bounded by timeout.
type PeerClient struct {
	codec     *Codec
	http      *http.Client
	timeout   time.Duration
	userAgent string
}

func NewPeerClient(codec *Codec, timeout time.Duration, userAgent string) *PeerClient {
	return &PeerClient{
		codec:     codec,
		http:      &http.Client{},
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Push delivers env to the recipient's inbox on peer. Any non-2xx answer is
// an error.
func (c *PeerClient) Push(ctx context.Context, peer Peer, recipient uuid.UUID, env *Envelope) error {
	body, err := peer.Adapter.EncodeInbox(env)
	if err != nil {
		return err
	}
	target := peer.Adapter.URL(peer.APIBase, c.codec.InboxPath(recipient)...)
	status, _, err := c.do(ctx, peer, http.MethodPost, target, body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%s returned status %d", target, status)
	}
	slog.Debug("Outbox: delivered", "peer", peer.Name, "url", target, "status", status)
	return nil
}

// FollowerStatus asks peer whether follower follows followed. Transport
// errors are returned next to an Inconclusive outcome.
func (c *PeerClient) FollowerStatus(ctx context.Context, peer Peer, followed, follower uuid.UUID) (PollOutcome, error) {
	target := peer.Adapter.URL(peer.APIBase, c.codec.FollowerPath(followed, follower)...)
	status, body, err := c.do(ctx, peer, http.MethodGet, target, nil)
	if err != nil {
		return Inconclusive, err
	}
	return peer.Adapter.FollowerStatus(status, body), nil
}

// FetchPost retrieves the post ref points at from peer.
func (c *PeerClient) FetchPost(ctx context.Context, peer Peer, ref Ref) (*PostActivity, error) {
	var p PostActivity
	if err := c.fetch(ctx, peer, ref, &p); err != nil {
		return nil, err
	}
	if p.Id == "" {
		p.Id = c.codec.URL(ref)
	}
	setType(&p)
	if err := p.check(); err != nil {
		return nil, err
	}
	return &p, nil
}

// FetchAuthor retrieves the author descriptor ref points at from peer.
func (c *PeerClient) FetchAuthor(ctx context.Context, peer Peer, ref Ref) (*AuthorDesc, error) {
	var a AuthorDesc
	if err := c.fetch(ctx, peer, Ref{Host: ref.Host, Kind: KindAuthor, AuthorId: ref.AuthorId}, &a); err != nil {
		return nil, err
	}
	if a.Id == "" {
		a.Id = c.codec.AuthorURL(ref.Host, ref.AuthorId)
	}
	if err := validate.Struct(&a); err != nil {
		return nil, fmt.Errorf("%w: author from %s: %v", domain.ErrValidation, peer.Name, err)
	}
	return &a, nil
}

func (c *PeerClient) fetch(ctx context.Context, peer Peer, ref Ref, out any) error {
	target := peer.Adapter.URL(peer.APIBase, c.codec.ResourcePath(ref)...)
	status, body, err := c.do(ctx, peer, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", target, domain.ErrNotFound)
	case status < 200 || status >= 300:
		return fmt.Errorf("%s returned status %d", target, status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", target, err)
	}
	return nil
}

// FetchMedia downloads the image at target from peer. Anything that is not
// an image is refused.
func (c *PeerClient) FetchMedia(ctx context.Context, peer Peer, target string) (string, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if peer.Username != "" || peer.Password != "" {
		req.SetBasicAuth(peer.Username, peer.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil, fmt.Errorf("%s: %w", target, domain.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", nil, fmt.Errorf("%s returned status %d", target, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", nil, fmt.Errorf("%w: %s is not an image (%q)", domain.ErrValidation, target, contentType)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response: %w", err)
	}
	return contentType, data, nil
}

func (c *PeerClient) do(ctx context.Context, peer Peer, method, target string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if peer.Username != "" || peer.Password != "" {
		req.SetBasicAuth(peer.Username, peer.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}
