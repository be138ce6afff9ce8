package web

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/deemkeen/plaza/db"
	"github.com/deemkeen/plaza/domain"
	"github.com/deemkeen/plaza/federation"
	"github.com/deemkeen/plaza/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// Server holds what the HTTP handlers need.
type Server struct {
	conf       *util.AppConfig
	store      *db.DB
	service    *federation.Service
	processor  *federation.Processor
	codec      *federation.Codec
	registry   *federation.Registry
	client     *federation.PeerClient
	normalizer *federation.Normalizer
	images     *ttlcache.Cache[string, cachedImage]
}

type cachedImage struct {
	contentType string
	data        []byte
}

func NewServer(conf *util.AppConfig, store *db.DB, service *federation.Service, processor *federation.Processor,
	codec *federation.Codec, registry *federation.Registry, client *federation.PeerClient, normalizer *federation.Normalizer) *Server {
	return &Server{
		conf:       conf,
		store:      store,
		service:    service,
		processor:  processor,
		codec:      codec,
		registry:   registry,
		client:     client,
		normalizer: normalizer,
		images: ttlcache.New(
			ttlcache.WithTTL[string, cachedImage](time.Hour),
			ttlcache.WithCapacity[string, cachedImage](256),
		),
	}
}

// statusFor maps the domain error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// paramId parses a uuid path parameter. An id that is not a uuid cannot
// name anything here, so it answers 404.
func paramId(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// peerAuthenticated reports whether the request carries the inbound peer
// credential. Without a configured credential every caller is a peer.
func (s *Server) peerAuthenticated(c *gin.Context) bool {
	if s.conf.Conf.InboxUser == "" {
		return true
	}
	user, pass, ok := c.Request.BasicAuth()
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(user), []byte(s.conf.Conf.InboxUser)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(s.conf.Conf.InboxPassword)) == 1
}

func (s *Server) localAuthor(c *gin.Context) (*domain.Author, bool) {
	id, ok := paramId(c, "id")
	if !ok {
		return nil, false
	}
	author, err := s.store.ReadAuthorById(id)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	if author.IsRemote {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "author not found"})
		return nil, false
	}
	return author, true
}

func describeAuthors(authors []domain.Author) []federation.AuthorDesc {
	items := make([]federation.AuthorDesc, 0, len(authors))
	for i := range authors {
		items = append(items, federation.DescribeAuthor(&authors[i]))
	}
	return items
}
