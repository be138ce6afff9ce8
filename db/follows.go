package db

import (
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Follower queries
const (
	sqlInsertFollower    = `INSERT INTO followers(id, follower_id, followed_id, created_at) VALUES (?, ?, ?, ?)`
	sqlCountFollower     = `SELECT COUNT(*) FROM followers WHERE follower_id = ? AND followed_id = ?`
	sqlDeleteFollower    = `DELETE FROM followers WHERE follower_id = ? AND followed_id = ?`
	sqlSelectFollowersOf = `SELECT a.id, a.display_name, a.github, a.profile_image, a.host, a.url, a.is_remote, a.created_at FROM followers f
									INNER JOIN authors a ON a.id = f.follower_id
									WHERE f.followed_id = ? ORDER BY f.created_at ASC`
	sqlSelectFollowingOf = `SELECT a.id, a.display_name, a.github, a.profile_image, a.host, a.url, a.is_remote, a.created_at FROM followers f
									INNER JOIN authors a ON a.id = f.followed_id
									WHERE f.follower_id = ? ORDER BY f.created_at ASC`
	sqlSelectRemoteFollowersOf = `SELECT a.id, a.display_name, a.github, a.profile_image, a.host, a.url, a.is_remote, a.created_at FROM followers f
									INNER JOIN authors a ON a.id = f.follower_id
									WHERE f.followed_id = ? AND a.is_remote = 1`
)

// FollowRequest queries
const (
	sqlInsertFollowRequest    = `INSERT INTO follow_requests(id, from_id, to_id, created_at) VALUES (?, ?, ?, ?)`
	sqlCountFollowRequest     = `SELECT COUNT(*) FROM follow_requests WHERE from_id = ? AND to_id = ?`
	sqlDeleteFollowRequest    = `DELETE FROM follow_requests WHERE from_id = ? AND to_id = ?`
	sqlSelectRequestSendersTo = `SELECT a.id, a.display_name, a.github, a.profile_image, a.host, a.url, a.is_remote, a.created_at FROM follow_requests r
									INNER JOIN authors a ON a.id = r.from_id
									WHERE r.to_id = ? ORDER BY r.created_at ASC`
	sqlSelectPendingRemoteTargets = `SELECT a.id, a.display_name, a.github, a.profile_image, a.host, a.url, a.is_remote, a.created_at FROM follow_requests r
									INNER JOIN authors a ON a.id = r.to_id
									WHERE r.from_id = ? AND a.is_remote = 1`
)

// CreateFollowRequest stores a pending request from -> to, plus the inbox
// notification for the target when entry is not nil. Both rows are written
// in one transaction. A request or an edge for the same pair is a conflict.
func (db *DB) CreateFollowRequest(req *domain.FollowRequest, entry *domain.InboxEntry) error {
	if req.Id == uuid.Nil {
		req.Id = uuid.New()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	return db.wrapTransaction(func(tx *sqlx.Tx) error {
		following, err := exists(tx, sqlCountFollower, req.FromId, req.ToId)
		if err != nil {
			return err
		}
		if following {
			return domain.ErrConflict
		}
		pending, err := exists(tx, sqlCountFollowRequest, req.FromId, req.ToId)
		if err != nil {
			return err
		}
		if pending {
			return domain.ErrConflict
		}
		if _, err := tx.Exec(sqlInsertFollowRequest, req.Id, req.FromId, req.ToId, req.CreatedAt); err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		return insertInboxEntry(tx, entry)
	})
}

// AcceptFollowRequest turns the pending request from -> to into a follower
// edge. It reports false with no error when the edge already exists and no
// request is left, and domain.ErrNotFound when there is neither.
func (db *DB) AcceptFollowRequest(from, to uuid.UUID) (bool, error) {
	converted := false
	err := db.wrapTransaction(func(tx *sqlx.Tx) error {
		res, err := tx.Exec(sqlDeleteFollowRequest, from, to)
		if err != nil {
			return err
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		following, err := exists(tx, sqlCountFollower, from, to)
		if err != nil {
			return err
		}
		if following {
			return nil
		}
		if deleted == 0 {
			return domain.ErrNotFound
		}
		if _, err := tx.Exec(sqlInsertFollower, uuid.New(), from, to, time.Now()); err != nil {
			return err
		}
		converted = true
		return nil
	})
	return converted, err
}

// CreateFollower inserts an edge directly, dropping any pending request for
// the same pair. Existing edges are left alone.
func (db *DB) CreateFollower(follower, followed uuid.UUID) error {
	return db.wrapTransaction(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(sqlDeleteFollowRequest, follower, followed); err != nil {
			return err
		}
		following, err := exists(tx, sqlCountFollower, follower, followed)
		if err != nil || following {
			return err
		}
		_, err = tx.Exec(sqlInsertFollower, uuid.New(), follower, followed, time.Now())
		return err
	})
}

// DeleteFollowRequest removes a pending request. Deleting a missing request
// reports false.
func (db *DB) DeleteFollowRequest(from, to uuid.UUID) (bool, error) {
	return db.deletePair(sqlDeleteFollowRequest, from, to)
}

// DeleteFollower removes an edge. Deleting a missing edge reports false.
func (db *DB) DeleteFollower(follower, followed uuid.UUID) (bool, error) {
	return db.deletePair(sqlDeleteFollower, follower, followed)
}

func (db *DB) deletePair(query string, a, b uuid.UUID) (bool, error) {
	var deleted int64
	err := db.wrapTransaction(func(tx *sqlx.Tx) error {
		res, err := tx.Exec(query, a, b)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted > 0, err
}

func (db *DB) IsFollowing(follower, followed uuid.UUID) (bool, error) {
	var n int
	if err := db.db.Get(&n, sqlCountFollower, follower, followed); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (db *DB) HasFollowRequest(from, to uuid.UUID) (bool, error) {
	var n int
	if err := db.db.Get(&n, sqlCountFollowRequest, from, to); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReadFollowers returns every author following id.
func (db *DB) ReadFollowers(id uuid.UUID) ([]domain.Author, error) {
	return db.selectAuthors(sqlSelectFollowersOf, id)
}

// ReadFollowing returns every author id follows.
func (db *DB) ReadFollowing(id uuid.UUID) ([]domain.Author, error) {
	return db.selectAuthors(sqlSelectFollowingOf, id)
}

// ReadRemoteFollowers returns the remote authors following id.
func (db *DB) ReadRemoteFollowers(id uuid.UUID) ([]domain.Author, error) {
	return db.selectAuthors(sqlSelectRemoteFollowersOf, id)
}

// ReadFollowRequestSenders returns the authors with a pending request to id.
func (db *DB) ReadFollowRequestSenders(id uuid.UUID) ([]domain.Author, error) {
	return db.selectAuthors(sqlSelectRequestSendersTo, id)
}

// ReadPendingRemoteTargets returns the remote authors id has asked to follow
// and that have not been converted into an edge yet.
func (db *DB) ReadPendingRemoteTargets(id uuid.UUID) ([]domain.Author, error) {
	return db.selectAuthors(sqlSelectPendingRemoteTargets, id)
}

func (db *DB) selectAuthors(query string, args ...any) ([]domain.Author, error) {
	var authors []domain.Author
	if err := db.db.Select(&authors, query, args...); err != nil {
		return nil, err
	}
	return authors, nil
}
