package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Author is a local or a cached remote identity. Remote authors are created
// lazily the first time an activity references them.
type Author struct {
	Id           uuid.UUID `db:"id"`
	DisplayName  string    `db:"display_name"`
	Github       string    `db:"github"`
	ProfileImage string    `db:"profile_image"`
	Host         string    `db:"host"`
	URL          string    `db:"url"`
	IsRemote     bool      `db:"is_remote"`
	CreatedAt    time.Time `db:"created_at"`
}

func (a *Author) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tDisplayName: %s \n\tHost: %s \n\tRemote: %t \n\tCREATED_AT: %s)", a.Id, a.DisplayName, a.Host, a.IsRemote, a.CreatedAt)
}
