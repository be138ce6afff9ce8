package domain

import (
	"time"

	"github.com/google/uuid"
)

// Follower is an accepted, directed edge: FollowerId follows FollowedId.
type Follower struct {
	Id         uuid.UUID `db:"id"`
	FollowerId uuid.UUID `db:"follower_id"`
	FollowedId uuid.UUID `db:"followed_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// FollowRequest is a pending edge waiting for the target to approve.
type FollowRequest struct {
	Id        uuid.UUID `db:"id"`
	FromId    uuid.UUID `db:"from_id"`
	ToId      uuid.UUID `db:"to_id"`
	CreatedAt time.Time `db:"created_at"`
}

// InboxEntry is one activity pushed to a local author. Object is the key
// used to drop duplicates (a post's origin, a like's object, a follower's URL).
type InboxEntry struct {
	Id         uuid.UUID `db:"id"`
	AuthorId   uuid.UUID `db:"author_id"`
	Type       string    `db:"type"`
	Object     string    `db:"object"`
	Payload    string    `db:"payload"`
	ReceivedAt time.Time `db:"received_at"`
}

// PeerNode is a statically configured remote node.
type PeerNode struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	APIBase  string `yaml:"apiBase"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Active   bool   `yaml:"active"`
	Adapter  string `yaml:"adapter"`
}
