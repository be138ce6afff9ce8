package db

import (
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	sqlAuthorColumns      = `id, display_name, github, profile_image, host, url, is_remote, created_at`
	sqlInsertAuthor       = `INSERT INTO authors(` + sqlAuthorColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectAuthorById   = `SELECT ` + sqlAuthorColumns + ` FROM authors WHERE id = ?`
	sqlSelectAuthorByURL  = `SELECT ` + sqlAuthorColumns + ` FROM authors WHERE url = ?`
	sqlSelectLocalAuthors = `SELECT ` + sqlAuthorColumns + ` FROM authors WHERE is_remote = 0 ORDER BY created_at ASC`
	sqlUpdateRemoteAuthor = `UPDATE authors SET display_name = ?, github = ?, profile_image = ? WHERE id = ? AND is_remote = 1`
	sqlCountAuthorById    = `SELECT COUNT(*) FROM authors WHERE id = ?`
)

// CreateAuthor inserts a new author. Used by local registration.
func (db *DB) CreateAuthor(a *domain.Author) error {
	if a.Id == uuid.Nil {
		a.Id = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return db.wrapTransaction(func(tx *sqlx.Tx) error {
		return insertAuthor(tx, a)
	})
}

// EnsureAuthor returns the stored author with a.Id, inserting a first.
// Calling it again with the same id is a no-op.
func (db *DB) EnsureAuthor(a *domain.Author) (*domain.Author, error) {
	var stored domain.Author
	err := db.wrapTransaction(func(tx *sqlx.Tx) error {
		found, err := exists(tx, sqlCountAuthorById, a.Id)
		if err != nil {
			return err
		}
		if !found {
			if a.CreatedAt.IsZero() {
				a.CreatedAt = time.Now()
			}
			if err := insertAuthor(tx, a); err != nil {
				return err
			}
		}
		return tx.Get(&stored, sqlSelectAuthorById, a.Id)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpdateRemoteAuthor refreshes the descriptor fields of a cached remote author.
func (db *DB) UpdateRemoteAuthor(a *domain.Author) error {
	return db.wrapTransaction(func(tx *sqlx.Tx) error {
		_, err := tx.Exec(sqlUpdateRemoteAuthor, a.DisplayName, a.Github, a.ProfileImage, a.Id)
		return err
	})
}

func (db *DB) ReadAuthorById(id uuid.UUID) (*domain.Author, error) {
	var a domain.Author
	if err := db.db.Get(&a, sqlSelectAuthorById, id); err != nil {
		return nil, notFound(err, "author "+id.String())
	}
	return &a, nil
}

func (db *DB) ReadAuthorByURL(url string) (*domain.Author, error) {
	var a domain.Author
	if err := db.db.Get(&a, sqlSelectAuthorByURL, url); err != nil {
		return nil, notFound(err, "author "+url)
	}
	return &a, nil
}

func (db *DB) ReadLocalAuthors() ([]domain.Author, error) {
	var authors []domain.Author
	if err := db.db.Select(&authors, sqlSelectLocalAuthors); err != nil {
		return nil, err
	}
	return authors, nil
}

func insertAuthor(tx *sqlx.Tx, a *domain.Author) error {
	_, err := tx.Exec(sqlInsertAuthor, a.Id, a.DisplayName, a.Github, a.ProfileImage, a.Host, a.URL, a.IsRemote, a.CreatedAt)
	return err
}
