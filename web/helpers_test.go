package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deemkeen/plaza/db"
	"github.com/deemkeen/plaza/domain"
	"github.com/deemkeen/plaza/federation"
	"github.com/deemkeen/plaza/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testLocalHost = "http://node-a.test"

type testServer struct {
	*Server
	router *gin.Engine
}

func newTestServer(t *testing.T, configure func(*util.AppConfig), peers ...domain.PeerNode) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	conf := &util.AppConfig{}
	conf.Conf.PublicURL = testLocalHost
	conf.Conf.HttpPort = 8000
	conf.Peers = peers
	if configure != nil {
		configure(conf)
	}

	registry, err := federation.NewRegistry(conf.Peers)
	require.NoError(t, err)
	codec := federation.NewCodec(conf.Conf.PublicURL)
	client := federation.NewPeerClient(codec, 2*time.Second, "plaza-test")
	normalizer := federation.NewNormalizer(codec)
	processor := federation.NewProcessor(store, codec, registry, client, normalizer)
	resolver := federation.NewAudienceResolver(store, codec)
	dispatcher := federation.NewDispatcher(store, processor, registry, client, federation.NewBreaker(3, time.Minute), normalizer, 2)
	service := federation.NewService(store, codec, resolver, dispatcher, processor, registry, client, normalizer)

	s := NewServer(conf, store, service, processor, codec, registry, client, normalizer)
	return &testServer{Server: s, router: Router(s)}
}

func (ts *testServer) addLocal(t *testing.T, name string) *domain.Author {
	t.Helper()
	id := uuid.New()
	a := &domain.Author{
		Id:          id,
		DisplayName: name,
		Host:        testLocalHost,
		URL:         ts.codec.AuthorURL(testLocalHost, id),
	}
	require.NoError(t, ts.store.CreateAuthor(a))
	return a
}

func (ts *testServer) do(t *testing.T, method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func withBasicAuth(user, pass string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(user, pass) }
}

// followEnvelope is what a remote node pushes when remoteURL follows target.
func followEnvelope(t *testing.T, remoteURL, remoteHost string, target *domain.Author) []byte {
	t.Helper()
	act := &federation.FollowActivity{
		Type:    "follow",
		Summary: "Remote wants to follow " + target.DisplayName,
		Actor:   federation.AuthorDesc{Type: "author", Id: remoteURL, Host: remoteHost, DisplayName: "Remote", URL: remoteURL},
		Object:  federation.DescribeAuthor(target),
	}
	env, err := federation.NewEnvelope(target.URL, act)
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
