package web

import (
	"net/http"
	"net/url"

	"github.com/deemkeen/plaza/federation"
	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"
)

// HandleImageProxy serves an image hosted on a known peer so content
// copied from that peer renders without the browser reaching the peer.
// Only active peers from the registry are fetched from.
func (s *Server) HandleImageProxy(c *gin.Context) {
	src := c.Query("src")
	u, err := url.Parse(src)
	if src == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "src must be an absolute http url"})
		return
	}

	if item := s.images.Get(src); item != nil {
		img := item.Value()
		c.Header("Cache-Control", "public, max-age=3600")
		c.Data(http.StatusOK, img.contentType, img.data)
		return
	}

	peer, ok := s.registry.Reachable(federation.NormalizeHost(u.Scheme + "://" + u.Host))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown image host"})
		return
	}
	contentType, data, err := s.client.FetchMedia(c.Request.Context(), peer, src)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "image unavailable"})
			return
		}
		abortWithError(c, err)
		return
	}
	s.images.Set(src, cachedImage{contentType: contentType, data: data}, ttlcache.DefaultTTL)

	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, contentType, data)
}
