package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Post queries
const (
	sqlPostColumns           = `id, author_id, title, description, content_type, content, visibility, origin, source, comment_count, url, created_at`
	sqlInsertPost            = `INSERT INTO posts(` + sqlPostColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPostById        = `SELECT ` + sqlPostColumns + ` FROM posts WHERE id = ?`
	sqlSelectPostByOrigin    = `SELECT ` + sqlPostColumns + ` FROM posts WHERE origin = ? ORDER BY created_at ASC LIMIT 1`
	sqlCountPostByOrigin     = `SELECT COUNT(*) FROM posts WHERE origin = ?`
	sqlSelectPostsByAuthor   = `SELECT ` + sqlPostColumns + ` FROM posts WHERE author_id = ? AND visibility IN (?) ORDER BY created_at DESC`
	sqlIncrementCommentCount = `UPDATE posts SET comment_count = comment_count + 1 WHERE id = ?`
)

// Comment and like queries
const (
	sqlCommentColumns     = `id, post_id, author_id, comment, content_type, url, created_at`
	sqlInsertComment      = `INSERT INTO comments(` + sqlCommentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectCommentById  = `SELECT ` + sqlCommentColumns + ` FROM comments WHERE id = ?`
	sqlSelectCommentsOf   = `SELECT ` + sqlCommentColumns + ` FROM comments WHERE post_id = ? ORDER BY created_at ASC`
	sqlLikeColumns        = `id, author_id, post_id, comment_id, object, created_at`
	sqlInsertLike         = `INSERT INTO likes(` + sqlLikeColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	sqlCountLike          = `SELECT COUNT(*) FROM likes WHERE author_id = ? AND (object = ? OR (post_id = ? AND comment_id IS ?))`
	sqlSelectLikesByPost  = `SELECT ` + sqlLikeColumns + ` FROM likes WHERE post_id = ? AND comment_id IS NULL ORDER BY created_at ASC`
	sqlSelectLikesByCommt = `SELECT ` + sqlLikeColumns + ` FROM likes WHERE comment_id = ? ORDER BY created_at ASC`
)

// CreatePost stores a locally authored post. Origin and source default to
// the post's own URL.
func (db *DB) CreatePost(p *domain.Post) error {
	if p.Id == uuid.Nil {
		p.Id = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Origin == "" {
		p.Origin = p.URL
	}
	if p.Source == "" {
		p.Source = p.URL
	}
	return db.wrapTransaction(func(tx *sqlx.Tx) error {
		return insertPost(tx, p)
	})
}

// SavePostCopy stores a post fetched from another node unless a post with
// the same origin is already held, in which case the held copy is returned.
func (db *DB) SavePostCopy(p *domain.Post) (*domain.Post, error) {
	var stored domain.Post
	err := db.wrapTransaction(func(tx *sqlx.Tx) error {
		held, err := exists(tx, sqlCountPostByOrigin, p.Origin)
		if err != nil {
			return err
		}
		if !held {
			if p.CreatedAt.IsZero() {
				p.CreatedAt = time.Now()
			}
			if err := insertPost(tx, p); err != nil {
				return err
			}
		}
		return tx.Get(&stored, sqlSelectPostByOrigin, p.Origin)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (db *DB) ReadPostById(id uuid.UUID) (*domain.Post, error) {
	var p domain.Post
	if err := db.db.Get(&p, sqlSelectPostById, id); err != nil {
		return nil, notFound(err, "post "+id.String())
	}
	return &p, nil
}

// ReadPostByOrigin returns the first stored copy of the post first authored at origin.
func (db *DB) ReadPostByOrigin(origin string) (*domain.Post, error) {
	var p domain.Post
	if err := db.db.Get(&p, sqlSelectPostByOrigin, origin); err != nil {
		return nil, notFound(err, "post "+origin)
	}
	return &p, nil
}

// ReadPostsByAuthor lists an author's posts with one of the given
// visibilities, newest first.
func (db *DB) ReadPostsByAuthor(authorId uuid.UUID, visibilities ...domain.Visibility) ([]domain.Post, error) {
	if len(visibilities) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(sqlSelectPostsByAuthor, authorId, visibilities)
	if err != nil {
		return nil, err
	}
	var posts []domain.Post
	if err := db.db.Select(&posts, db.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return posts, nil
}

func (db *DB) ReadCommentById(id uuid.UUID) (*domain.Comment, error) {
	var c domain.Comment
	if err := db.db.Get(&c, sqlSelectCommentById, id); err != nil {
		return nil, notFound(err, "comment "+id.String())
	}
	return &c, nil
}

func (db *DB) ReadCommentsByPost(postId uuid.UUID) ([]domain.Comment, error) {
	var comments []domain.Comment
	if err := db.db.Select(&comments, sqlSelectCommentsOf, postId); err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateComment increments the target post's counter, stores the comment
// and, when entry is not nil, the inbox notification for the post's author.
// Nothing is written unless all of it is.
func (db *DB) CreateComment(c *domain.Comment, entry *domain.InboxEntry) error {
	if c.Id == uuid.Nil {
		c.Id = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return db.wrapTransaction(func(tx *sqlx.Tx) error {
		res, err := tx.Exec(sqlIncrementCommentCount, c.PostId)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return notFound(sql.ErrNoRows, "post "+c.PostId.String())
		}
		if _, err := tx.Exec(sqlInsertComment, c.Id, c.PostId, c.AuthorId, c.Comment, c.ContentType, c.URL, c.CreatedAt); err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		return insertInboxEntry(tx, entry)
	})
}

// CreateLike stores a like and, when entry is not nil, the inbox
// notification for the owner. A like by the same author on the same target
// is a conflict, whether it was recorded under the same object URL or
// under the local ids.
func (db *DB) CreateLike(l *domain.Like, entry *domain.InboxEntry) error {
	if l.Id == uuid.Nil {
		l.Id = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	return db.wrapTransaction(func(tx *sqlx.Tx) error {
		dup, err := exists(tx, sqlCountLike, l.AuthorId, l.Object, l.PostId, l.CommentId)
		if err != nil {
			return err
		}
		if dup {
			return domain.ErrConflict
		}
		if _, err := tx.Exec(sqlInsertLike, l.Id, l.AuthorId, l.PostId, l.CommentId, l.Object, l.CreatedAt); err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		return insertInboxEntry(tx, entry)
	})
}

// ReadLikesByPost returns the likes on a post, leaving out likes on its comments.
func (db *DB) ReadLikesByPost(postId uuid.UUID) ([]domain.Like, error) {
	var likes []domain.Like
	if err := db.db.Select(&likes, sqlSelectLikesByPost, postId); err != nil {
		return nil, err
	}
	return likes, nil
}

func (db *DB) ReadLikesByComment(commentId uuid.UUID) ([]domain.Like, error) {
	var likes []domain.Like
	if err := db.db.Select(&likes, sqlSelectLikesByCommt, commentId); err != nil {
		return nil, err
	}
	return likes, nil
}

func insertPost(tx *sqlx.Tx, p *domain.Post) error {
	if p.ContentType == "" {
		p.ContentType = "text/plain"
	}
	if p.Visibility == "" {
		p.Visibility = domain.Public
	}
	p.Content = strings.ToValidUTF8(p.Content, "")
	_, err := tx.Exec(sqlInsertPost, p.Id, p.AuthorId, p.Title, p.Description, p.ContentType, p.Content,
		p.Visibility, p.Origin, p.Source, p.CommentCount, p.URL, p.CreatedAt)
	return err
}
