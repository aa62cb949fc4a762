package chat

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
)

// Uploader converts a local file selection into a hosted URL and emits it
// as a message.
type Uploader struct {
	sess *Session
	api  API
	rt   Realtime
}

// NewUploader creates an uploader bound to the session's identity and
// active channel.
func NewUploader(sess *Session, api API, rt Realtime) *Uploader {
	return &Uploader{sess: sess, api: api, rt: rt}
}

// SendFile uploads the file and emits a message whose text is exactly the
// returned URL. No selection is a no-op. On upload failure nothing is
// emitted and an UploadError is returned; there is no retry and nothing to
// clean up.
func (u *Uploader) SendFile(ctx context.Context, name string, r io.Reader) error {
	if name == "" || r == nil {
		return nil
	}

	url, err := u.api.Upload(ctx, name, r)
	if err != nil {
		return &UploadError{Filename: name, Err: err}
	}

	msg := Message{
		Channel:  u.sess.Channel(),
		Username: u.sess.Username(),
		Text:     url,
		Kind:     KindForFilename(name),
		Filename: filepath.Base(name),
	}
	if err := u.rt.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("send file message: %w", err)
	}
	return nil
}
