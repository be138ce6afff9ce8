package federation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/deemkeen/plaza/domain"
)

// PollOutcome is what a follower query told us about an edge.
type PollOutcome int

const (
	Inconclusive PollOutcome = iota
	EdgePresent
	EdgeAbsent
)

func (o PollOutcome) String() string {
	switch o {
	case EdgePresent:
		return "present"
	case EdgeAbsent:
		return "absent"
	default:
		return "inconclusive"
	}
}

// PeerAdapter contains the request and response quirks of one kind of peer.
type PeerAdapter interface {
	Name() string
	// URL joins path segments below the peer's API base.
	URL(apiBase string, segments ...string) string
	// EncodeInbox renders an envelope as the request body the peer expects.
	EncodeInbox(env *Envelope) ([]byte, error)
	// FollowerStatus interprets the answer to a follower query.
	FollowerStatus(status int, body []byte) PollOutcome
}

// standardAdapter speaks the inbox contract as-is.
type standardAdapter struct{}

func (standardAdapter) Name() string { return "standard" }

func (standardAdapter) URL(apiBase string, segments ...string) string {
	return strings.TrimRight(apiBase, "/") + "/" + strings.Join(segments, "/")
}

func (standardAdapter) EncodeInbox(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (standardAdapter) FollowerStatus(status int, _ []byte) PollOutcome {
	switch {
	case status == http.StatusNotFound:
		return EdgeAbsent
	case status >= 200 && status < 300:
		return EdgePresent
	default:
		return Inconclusive
	}
}

// slashAdapter is for peers that redirect or 404 unless every path ends in a slash.
type slashAdapter struct{ standardAdapter }

func (slashAdapter) Name() string { return "slash" }

func (a slashAdapter) URL(apiBase string, segments ...string) string {
	return a.standardAdapter.URL(apiBase, segments...) + "/"
}

// bareAdapter is for peers that take the bare activity instead of the
// envelope and answer the follower query with 200 {"isFollower": bool}.
type bareAdapter struct{ standardAdapter }

func (bareAdapter) Name() string { return "bare" }

func (bareAdapter) EncodeInbox(env *Envelope) ([]byte, error) {
	if len(env.Items) != 1 {
		return nil, fmt.Errorf("bare peers take exactly one activity, got %d", len(env.Items))
	}
	return env.Items[0], nil
}

func (a bareAdapter) FollowerStatus(status int, body []byte) PollOutcome {
	if status != http.StatusOK {
		return a.standardAdapter.FollowerStatus(status, body)
	}
	var answer struct {
		IsFollower *bool `json:"isFollower"`
	}
	if err := json.Unmarshal(body, &answer); err != nil || answer.IsFollower == nil {
		return Inconclusive
	}
	if *answer.IsFollower {
		return EdgePresent
	}
	return EdgeAbsent
}

var adapters = map[string]PeerAdapter{
	"":         standardAdapter{},
	"standard": standardAdapter{},
	"slash":    slashAdapter{},
	"bare":     bareAdapter{},
}

// Peer is a registry entry with its adapter resolved.
type Peer struct {
	domain.PeerNode
	Adapter PeerAdapter
}

// Registry maps a peer's host to its connection parameters. It is built
// once from configuration and never changes afterwards.
type Registry struct {
	peers map[string]Peer
}

func NewRegistry(nodes []domain.PeerNode) (*Registry, error) {
	r := &Registry{peers: make(map[string]Peer, len(nodes))}
	for _, n := range nodes {
		host := NormalizeHost(n.Host)
		if host == "" {
			return nil, fmt.Errorf("peer %q has no host", n.Name)
		}
		adapter, ok := adapters[strings.ToLower(n.Adapter)]
		if !ok {
			return nil, fmt.Errorf("peer %q: unknown adapter %q", n.Name, n.Adapter)
		}
		if n.APIBase == "" {
			n.APIBase = host
		}
		n.Host = host
		r.peers[host] = Peer{PeerNode: n, Adapter: adapter}
	}
	return r, nil
}

// Lookup returns the peer registered for host, active or not.
func (r *Registry) Lookup(host string) (Peer, bool) {
	p, ok := r.peers[NormalizeHost(host)]
	return p, ok
}

// Reachable returns the peer for host only when it is registered and active.
func (r *Registry) Reachable(host string) (Peer, bool) {
	p, ok := r.Lookup(host)
	if !ok || !p.Active {
		return Peer{}, false
	}
	return p, true
}

func (r *Registry) Len() int {
	return len(r.peers)
}
