package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/deemkeen/plaza/util"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
)

// BuildFeed renders the public posts of author as a feed.
func (s *Server) BuildFeed(author *domain.Author, posts []domain.Post) *feeds.Feed {
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s - %s", author.DisplayName, util.Name),
		Link:        &feeds.Link{Href: author.URL},
		Description: fmt.Sprintf("Public posts of %s", author.DisplayName),
		Author:      &feeds.Author{Name: author.DisplayName},
		Created:     time.Now(),
	}
	if author.ProfileImage != "" {
		feed.Image = &feeds.Image{Url: author.ProfileImage, Title: author.DisplayName, Link: author.URL}
	}

	for _, post := range posts {
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          post.URL,
			Title:       post.Title,
			Link:        &feeds.Link{Href: post.URL},
			Description: post.Description,
			Content:     s.normalizer.Externalize(post.Content),
			Author:      &feeds.Author{Name: author.DisplayName},
			Created:     post.CreatedAt,
		})
	}
	if len(posts) > 0 {
		feed.Updated = posts[0].CreatedAt
	}
	return feed
}

// HandleFeed serves an author's public posts as RSS, or Atom with
// ?format=atom.
func (s *Server) HandleFeed(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	posts, err := s.store.ReadPostsByAuthor(author.Id, domain.Public)
	if err != nil {
		abortWithError(c, err)
		return
	}
	feed := s.BuildFeed(author, posts)

	var body, contentType string
	switch c.DefaultQuery("format", "rss") {
	case "atom":
		body, err = feed.ToAtom()
		contentType = "application/atom+xml; charset=utf-8"
	case "rss":
		body, err = feed.ToRss()
		contentType = "application/rss+xml; charset=utf-8"
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "format must be rss or atom"})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, []byte(body))
}
