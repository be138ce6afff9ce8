package web

import (
	"fmt"
	"log/slog"

	"github.com/deemkeen/plaza/federation"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const maxInboxBytes = 1 * 1024 * 1024 // 1MB

func Router(s *Server) *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery(), requestLogger())
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Peers push bursts on fan-out, so inboxes get their own budget
	inboxLimiter := NewRateLimiter(rate.Limit(20), 40)

	// peers configure either the bare host or host/api as our API base
	for _, prefix := range []string{"", "/api"} {
		authors := g.Group(prefix + "/authors/:id")
		authors.GET("", s.HandleGetAuthor)

		inbox := []gin.HandlerFunc{RateLimitMiddleware(inboxLimiter), MaxBytesMiddleware(maxInboxBytes)}
		if s.conf.Conf.InboxUser != "" {
			inbox = append(inbox, gin.BasicAuth(gin.Accounts{s.conf.Conf.InboxUser: s.conf.Conf.InboxPassword}))
		}
		authors.POST("/inbox", append(inbox, s.HandlePostInbox)...)
		authors.GET("/inbox", s.HandleGetInbox)

		authors.GET("/followers", s.HandleGetFollowers)
		authors.GET("/followers/:fid", s.HandleFollowerStatus)
		authors.PUT("/followers/:fid", s.HandleAcceptFollower)
		authors.DELETE("/followers/:fid", s.HandleRemoveFollower)
		authors.GET("/followrequests", s.HandleGetFollowRequests)
		authors.DELETE("/followrequests/:sid", s.HandleDeclineFollowRequest)
		authors.GET("/following", s.HandleGetFollowing)
		authors.POST("/following", s.HandleFollow)
		authors.DELETE("/following/:fid", s.HandleUnfollow)

		authors.GET("/posts", s.HandleGetPosts)
		authors.POST("/posts", s.HandlePublishPost)
		authors.GET("/posts/:pid", s.HandleGetPost)
		authors.GET("/posts/:pid/comments", s.HandleGetComments)
		authors.GET("/posts/:pid/likes", s.HandleGetLikes)
		authors.POST("/posts/:pid/share", s.HandleSharePost)
		authors.GET("/feed", s.HandleFeed)

		authors.POST("/likes", s.HandleLike)
		authors.POST("/comments", s.HandleComment)
	}

	g.GET(federation.ProxyPath, s.HandleImageProxy)

	return g
}

// Addr is the listen address of the configured node.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		slog.Debug("HTTP", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "ip", c.ClientIP())
	}
}
