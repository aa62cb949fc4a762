package chat

import (
	"path"
	"strings"
	"time"
)

// SystemUser is the reserved username for synthesized system notices.
const SystemUser = "system"

// Kind tags what a message's text carries, so renderers never have to sniff
// URL suffixes.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// Message is one entry in a channel's feed. IDs are server-assigned for
// persisted messages and client-synthesized for system notices.
type Message struct {
	ID       string    `json:"id"`
	Channel  string    `json:"channel,omitempty"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	Kind     Kind      `json:"kind,omitempty"`
	Filename string    `json:"filename,omitempty"`
	TS       time.Time `json:"ts"`
}

var imageExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
}

// KindForFilename classifies an attachment by its filename extension at
// emit time.
func KindForFilename(name string) Kind {
	ext := strings.ToLower(path.Ext(name))
	if _, ok := imageExts[ext]; ok {
		return KindImage
	}
	return KindFile
}
