package web

import (
	"net/http"
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/deemkeen/plaza/federation"
	"github.com/gin-gonic/gin"
)

type likeInput struct {
	Object string `json:"object" binding:"required"`
}

type commentInput struct {
	Post        string `json:"post" binding:"required"`
	Comment     string `json:"comment" binding:"required"`
	ContentType string `json:"contentType"`
}

type commentItem struct {
	Type        string                `json:"type"`
	Id          string                `json:"id"`
	Author      federation.AuthorDesc `json:"author"`
	Comment     string                `json:"comment"`
	ContentType string                `json:"contentType,omitempty"`
	Published   string                `json:"published"`
}

// describePost renders p for callers outside this node.
func (s *Server) describePost(p *domain.Post, author *domain.Author) *federation.PostActivity {
	act := federation.DescribePost(p, author)
	act.Content = s.normalizer.Externalize(act.Content)
	return act
}

// HandleGetPosts lists the public posts of an author. Unlisted and friends
// posts are only reachable by their identifier.
func (s *Server) HandleGetPosts(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	posts, err := s.store.ReadPostsByAuthor(author.Id, domain.Public)
	if err != nil {
		abortWithError(c, err)
		return
	}
	items := make([]*federation.PostActivity, 0, len(posts))
	for i := range posts {
		items = append(items, s.describePost(&posts[i], author))
	}
	c.JSON(http.StatusOK, gin.H{"type": "posts", "items": items})
}

// HandleGetPost serves one post. Friends posts are served to authenticated
// peers only.
func (s *Server) HandleGetPost(c *gin.Context) {
	post, author, ok := s.post(c)
	if !ok {
		return
	}
	if post.Visibility == domain.Friends && !s.servesFriends(c) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	c.JSON(http.StatusOK, s.describePost(post, author))
}

func (s *Server) HandleGetComments(c *gin.Context) {
	post, _, ok := s.post(c)
	if !ok {
		return
	}
	if post.Visibility == domain.Friends && !s.servesFriends(c) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	comments, err := s.store.ReadCommentsByPost(post.Id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	items := make([]commentItem, 0, len(comments))
	for _, cm := range comments {
		author, err := s.store.ReadAuthorById(cm.AuthorId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		items = append(items, commentItem{
			Type:        "comment",
			Id:          cm.URL,
			Author:      federation.DescribeAuthor(author),
			Comment:     s.normalizer.Externalize(cm.Comment),
			ContentType: cm.ContentType,
			Published:   cm.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"type": "comments", "post": post.URL, "count": len(items), "items": items})
}

func (s *Server) HandleGetLikes(c *gin.Context) {
	post, _, ok := s.post(c)
	if !ok {
		return
	}
	if post.Visibility == domain.Friends && !s.servesFriends(c) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	likes, err := s.store.ReadLikesByPost(post.Id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	items := make([]federation.AuthorDesc, 0, len(likes))
	for _, l := range likes {
		author, err := s.store.ReadAuthorById(l.AuthorId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		items = append(items, federation.DescribeAuthor(author))
	}
	c.JSON(http.StatusOK, gin.H{"type": "likes", "object": post.URL, "items": items})
}

func (s *Server) HandlePublishPost(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	var in federation.PostInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	post, report, err := s.service.PublishPost(c.Request.Context(), author.Id, in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": s.describePost(post, author), "delivery": report})
}

func (s *Server) HandleSharePost(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	postId, ok := paramId(c, "pid")
	if !ok {
		return
	}
	post, report, err := s.service.SharePost(c.Request.Context(), author.Id, postId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": s.describePost(post, author), "delivery": report})
}

func (s *Server) HandleLike(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	var in likeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.service.Like(c.Request.Context(), author.Id, in.Object)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"object": in.Object, "delivery": report})
}

func (s *Server) HandleComment(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	var in commentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	comment, report, err := s.service.Comment(c.Request.Context(), author.Id, in.Post, in.Comment, in.ContentType)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": comment.URL, "post": in.Post, "delivery": report})
}

// servesFriends reports whether friends posts may be shown to the caller.
// That takes a configured peer credential the caller presented.
func (s *Server) servesFriends(c *gin.Context) bool {
	return s.conf.Conf.InboxUser != "" && s.peerAuthenticated(c)
}

// post loads the post named by the path, which must belong to the author
// named by the path.
func (s *Server) post(c *gin.Context) (*domain.Post, *domain.Author, bool) {
	author, ok := s.localAuthor(c)
	if !ok {
		return nil, nil, false
	}
	postId, ok := paramId(c, "pid")
	if !ok {
		return nil, nil, false
	}
	post, err := s.store.ReadPostById(postId)
	if err != nil {
		abortWithError(c, err)
		return nil, nil, false
	}
	if post.AuthorId != author.Id {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return nil, nil, false
	}
	return post, author, true
}
