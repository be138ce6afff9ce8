package federation

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deemkeen/plaza/db"
	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testLocalHost = "http://node-a.test"

type testNode struct {
	store      *db.DB
	codec      *Codec
	registry   *Registry
	client     *PeerClient
	breaker    *Breaker
	normalizer *Normalizer
	processor  *Processor
	resolver   *AudienceResolver
	dispatcher *Dispatcher
	service    *Service
	poller     *Poller
}

func newTestNode(t *testing.T, peers ...domain.PeerNode) *testNode {
	t.Helper()
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	registry, err := NewRegistry(peers)
	require.NoError(t, err)

	n := &testNode{store: store, registry: registry}
	n.codec = NewCodec(testLocalHost)
	n.client = NewPeerClient(n.codec, 2*time.Second, "plaza-test")
	n.breaker = NewBreaker(3, time.Minute)
	n.normalizer = NewNormalizer(n.codec)
	n.processor = NewProcessor(store, n.codec, registry, n.client, n.normalizer)
	n.resolver = NewAudienceResolver(store, n.codec)
	n.dispatcher = NewDispatcher(store, n.processor, registry, n.client, n.breaker, n.normalizer, 4)
	n.service = NewService(store, n.codec, n.resolver, n.dispatcher, n.processor, registry, n.client, n.normalizer)
	n.poller = NewPoller(store, registry, n.client, MinPollInterval, 5*time.Second)
	return n
}

func (n *testNode) addLocal(t *testing.T, name string) *domain.Author {
	t.Helper()
	id := uuid.New()
	a := &domain.Author{
		Id:          id,
		DisplayName: name,
		Host:        testLocalHost,
		URL:         n.codec.AuthorURL(testLocalHost, id),
	}
	require.NoError(t, n.store.CreateAuthor(a))
	return a
}

func (n *testNode) addRemote(t *testing.T, host, name string) *domain.Author {
	t.Helper()
	id := uuid.New()
	a := &domain.Author{
		Id:          id,
		DisplayName: name,
		Host:        NormalizeHost(host),
		URL:         n.codec.AuthorURL(host, id),
		IsRemote:    true,
	}
	require.NoError(t, n.store.CreateAuthor(a))
	return a
}

func (n *testNode) follow(t *testing.T, follower, followed *domain.Author) {
	t.Helper()
	require.NoError(t, n.store.CreateFollower(follower.Id, followed.Id))
}

func (n *testNode) inbox(t *testing.T, a *domain.Author) []domain.InboxEntry {
	t.Helper()
	entries, err := n.store.ReadInbox(a.Id)
	require.NoError(t, err)
	return entries
}

// recordedRequest is one request a stubPeer received.
type recordedRequest struct {
	Method string
	Path   string
	Body   []byte
	User   string
	Pass   string
}

// stubPeer is a fake remote node. Handlers are looked up by path prefix;
// unmatched requests get status.
type stubPeer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newStubPeer(t *testing.T, status int) *stubPeer {
	t.Helper()
	p := &stubPeer{status: status, routes: map[string]func(http.ResponseWriter, *http.Request){}}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		p.mu.Lock()
		p.requests = append(p.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body, User: user, Pass: pass})
		routes := p.routes
		status := p.status
		p.mu.Unlock()

		for prefix, h := range routes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				h(w, r)
				return
			}
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *stubPeer) handle(prefix string, h func(w http.ResponseWriter, r *http.Request)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[prefix] = h
}

func (p *stubPeer) setStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func (p *stubPeer) received() []recordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedRequest(nil), p.requests...)
}

func (p *stubPeer) node(name string) domain.PeerNode {
	return domain.PeerNode{Name: name, Host: p.URL, APIBase: p.URL + "/api", Username: name, Password: "secret", Active: true}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
