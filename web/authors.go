package web

import (
	"net/http"

	"github.com/deemkeen/plaza/federation"
	"github.com/gin-gonic/gin"
)

type followInput struct {
	Object string `json:"object" binding:"required"`
}

func (s *Server) HandleGetAuthor(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, federation.DescribeAuthor(author))
}

func (s *Server) HandleGetFollowers(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	followers, err := s.store.ReadFollowers(author.Id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": "followers", "items": describeAuthors(followers)})
}

func (s *Server) HandleGetFollowing(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	following, err := s.store.ReadFollowing(author.Id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": "following", "items": describeAuthors(following)})
}

// HandleFollowerStatus answers the reconciliation query of peers.
func (s *Server) HandleFollowerStatus(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	followerId, ok := paramId(c, "fid")
	if !ok {
		return
	}
	following, err := s.service.FollowerStatus(c.Request.Context(), author.Id, followerId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !following {
		c.JSON(http.StatusNotFound, gin.H{"isFollower": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"isFollower": true})
}

func (s *Server) HandleAcceptFollower(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	senderId, ok := paramId(c, "fid")
	if !ok {
		return
	}
	if err := s.service.AcceptFollowRequest(c.Request.Context(), author.Id, senderId); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isFollower": true})
}

func (s *Server) HandleRemoveFollower(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	followerId, ok := paramId(c, "fid")
	if !ok {
		return
	}
	if err := s.service.RemoveFollower(c.Request.Context(), author.Id, followerId); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) HandleGetFollowRequests(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	senders, err := s.store.ReadFollowRequestSenders(author.Id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": "followrequests", "items": describeAuthors(senders)})
}

func (s *Server) HandleDeclineFollowRequest(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	senderId, ok := paramId(c, "sid")
	if !ok {
		return
	}
	if err := s.service.DeclineFollowRequest(c.Request.Context(), author.Id, senderId); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) HandleFollow(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	var in followInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, report, err := s.service.Follow(c.Request.Context(), author.Id, in.Object)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"object": federation.DescribeAuthor(target), "delivery": report})
}

func (s *Server) HandleUnfollow(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	targetId, ok := paramId(c, "fid")
	if !ok {
		return
	}
	if err := s.service.Unfollow(c.Request.Context(), author.Id, targetId); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
