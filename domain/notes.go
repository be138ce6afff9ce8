package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Visibility string

const (
	Public   Visibility = "PUBLIC"
	Friends  Visibility = "FRIENDS"
	Unlisted Visibility = "UNLISTED"
)

// ParseVisibility accepts any casing and treats an empty value as PUBLIC.
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToUpper(strings.TrimSpace(s))); v {
	case "":
		return Public, nil
	case Public, Friends, Unlisted:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown visibility %q", ErrValidation, s)
	}
}

type Post struct {
	Id           uuid.UUID  `db:"id"`
	AuthorId     uuid.UUID  `db:"author_id"`
	Title        string     `db:"title"`
	Description  string     `db:"description"`
	ContentType  string     `db:"content_type"`
	Content      string     `db:"content"`
	Visibility   Visibility `db:"visibility"`
	Origin       string     `db:"origin"` // node the post was first authored on
	Source       string     `db:"source"` // node this copy came from
	CommentCount int        `db:"comment_count"`
	URL          string     `db:"url"`
	CreatedAt    time.Time  `db:"created_at"`
}

func (p *Post) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tAuthor: %s \n\tTitle: %s \n\tVisibility: %s \n\tCreatedAt: %s)", p.Id, p.AuthorId, p.Title, p.Visibility, p.CreatedAt)
}

type Comment struct {
	Id          uuid.UUID `db:"id"`
	PostId      uuid.UUID `db:"post_id"`
	AuthorId    uuid.UUID `db:"author_id"`
	Comment     string    `db:"comment"`
	ContentType string    `db:"content_type"`
	URL         string    `db:"url"`
	CreatedAt   time.Time `db:"created_at"`
}

// Like targets a post, or a comment on that post when CommentId is set.
type Like struct {
	Id        uuid.UUID  `db:"id"`
	AuthorId  uuid.UUID  `db:"author_id"`
	PostId    uuid.UUID  `db:"post_id"`
	CommentId *uuid.UUID `db:"comment_id"`
	Object    string     `db:"object"`
	CreatedAt time.Time  `db:"created_at"`
}
