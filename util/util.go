package util

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed version.txt
var embeddedVersion string

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

// UserAgent is sent with every request to a peer.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", Name, GetVersion())
}
