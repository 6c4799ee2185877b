// Package chat defines the transport boundary between the bot and a chat
// network, plus the Telegram implementation of it.
package chat

import (
	"context"
	"io"

	"github.com/mkrav/gitdocs/schema"
)

// Incoming is one normalized user event: a text message, a button press
// (which arrives as text) or a file upload with an optional caption.
type Incoming struct {
	Principal   schema.ChatID
	Username    string
	DisplayName string
	Text        string
	File        *IncomingFile
}

// IncomingFile describes an attached file without its content; content is
// streamed on demand through Transport.OpenFile.
type IncomingFile struct {
	ID   string
	Name string
	Size int64
}

// Transport is the single interface the bot speaks to a chat network
// through. Implementations deliver on a best-effort basis; a returned
// error means the delivery attempt failed, nothing more.
type Transport interface {
	// Updates delivers incoming events until ctx is cancelled. The
	// returned channel is closed on shutdown.
	Updates(ctx context.Context) <-chan Incoming
	// Reply sends text to a principal. A non-nil keyboard replaces the
	// principal's reply keyboard; rows map to button rows.
	Reply(ctx context.Context, to schema.ChatID, text string, keyboard [][]string) error
	// SendFile delivers a local file with a caption.
	SendFile(ctx context.Context, to schema.ChatID, path, caption string) error
	// OpenFile streams the content of an incoming file.
	OpenFile(ctx context.Context, file IncomingFile) (io.ReadCloser, error)
}
