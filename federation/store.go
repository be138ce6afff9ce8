package federation

import (
	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
)

// Store is the persistence the federation core needs. *db.DB implements it.
type Store interface {
	ReadAuthorById(id uuid.UUID) (*domain.Author, error)
	ReadLocalAuthors() ([]domain.Author, error)
	EnsureAuthor(a *domain.Author) (*domain.Author, error)

	CreateFollowRequest(req *domain.FollowRequest, entry *domain.InboxEntry) error
	AcceptFollowRequest(from, to uuid.UUID) (bool, error)
	DeleteFollowRequest(from, to uuid.UUID) (bool, error)
	DeleteFollower(follower, followed uuid.UUID) (bool, error)
	IsFollowing(follower, followed uuid.UUID) (bool, error)
	HasFollowRequest(from, to uuid.UUID) (bool, error)
	ReadFollowers(id uuid.UUID) ([]domain.Author, error)
	ReadFollowing(id uuid.UUID) ([]domain.Author, error)
	ReadRemoteFollowers(id uuid.UUID) ([]domain.Author, error)
	ReadPendingRemoteTargets(id uuid.UUID) ([]domain.Author, error)

	CreatePost(p *domain.Post) error
	SavePostCopy(p *domain.Post) (*domain.Post, error)
	ReadPostById(id uuid.UUID) (*domain.Post, error)
	ReadPostByOrigin(origin string) (*domain.Post, error)
	ReadCommentById(id uuid.UUID) (*domain.Comment, error)
	CreateComment(c *domain.Comment, entry *domain.InboxEntry) error
	CreateLike(l *domain.Like, entry *domain.InboxEntry) error

	CreateInboxEntry(e *domain.InboxEntry) error
	CreateInboxEntries(entries []domain.InboxEntry) (int, error)
}
