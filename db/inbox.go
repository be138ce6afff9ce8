package db

import (
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	sqlInboxColumns        = `id, author_id, type, object, payload, received_at`
	sqlInsertInboxEntry    = `INSERT INTO inbox_entries(` + sqlInboxColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	sqlCountInboxEntry     = `SELECT COUNT(*) FROM inbox_entries WHERE author_id = ? AND type = ? AND object = ?`
	sqlSelectInbox         = `SELECT ` + sqlInboxColumns + ` FROM inbox_entries WHERE author_id = ? ORDER BY received_at DESC`
	sqlSelectInboxByObject = `SELECT ` + sqlInboxColumns + ` FROM inbox_entries WHERE author_id = ? AND object = ? ORDER BY received_at ASC`
)

// CreateInboxEntry stores one entry. An entry with the same recipient, type
// and object is a conflict.
func (db *DB) CreateInboxEntry(e *domain.InboxEntry) error {
	return db.wrapTransaction(func(tx *sqlx.Tx) error {
		dup, err := hasInboxEntry(tx, e)
		if err != nil {
			return err
		}
		if dup {
			return domain.ErrConflict
		}
		return insertInboxEntry(tx, e)
	})
}

// CreateInboxEntries writes a batch in one transaction, silently skipping
// entries the recipient already holds. It returns how many were written.
func (db *DB) CreateInboxEntries(entries []domain.InboxEntry) (int, error) {
	written := 0
	err := db.wrapTransaction(func(tx *sqlx.Tx) error {
		written = 0
		for i := range entries {
			dup, err := hasInboxEntry(tx, &entries[i])
			if err != nil {
				return err
			}
			if dup {
				continue
			}
			if err := insertInboxEntry(tx, &entries[i]); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// ReadInbox returns an author's entries, newest first.
func (db *DB) ReadInbox(authorId uuid.UUID) ([]domain.InboxEntry, error) {
	var entries []domain.InboxEntry
	if err := db.db.Select(&entries, sqlSelectInbox, authorId); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadInboxByObject returns the entries an author holds for one object key.
func (db *DB) ReadInboxByObject(authorId uuid.UUID, object string) ([]domain.InboxEntry, error) {
	var entries []domain.InboxEntry
	if err := db.db.Select(&entries, sqlSelectInboxByObject, authorId, object); err != nil {
		return nil, err
	}
	return entries, nil
}

func hasInboxEntry(tx *sqlx.Tx, e *domain.InboxEntry) (bool, error) {
	if e.Object == "" {
		return false, nil
	}
	return exists(tx, sqlCountInboxEntry, e.AuthorId, e.Type, e.Object)
}

func insertInboxEntry(tx *sqlx.Tx, e *domain.InboxEntry) error {
	if e.Id == uuid.Nil {
		e.Id = uuid.New()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	_, err := tx.Exec(sqlInsertInboxEntry, e.Id, e.AuthorId, e.Type, e.Object, e.Payload, e.ReceivedAt)
	return err
}
