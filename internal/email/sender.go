package email

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned when a message has no To address.
var ErrNoRecipient = errors.New("email: no recipient")

// Message is a single transactional email. HTML is optional; when set the
// message is sent as multipart/alternative with Text as the fallback part.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// EmailSender delivers transactional email.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}
