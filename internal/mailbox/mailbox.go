// Package mailbox reads bank notification emails from a remote mailbox.
package mailbox

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when the mailbox holds no usable credentials
	ErrNotAuthenticated = errors.New("mailbox not authenticated")
	// ErrOAuthUnsupported is returned by backends that do not use OAuth
	ErrOAuthUnsupported = errors.New("mailbox backend does not support OAuth")
	// ErrInvalidState is returned when an OAuth callback carries a state this
	// mailbox did not issue, or one that has expired
	ErrInvalidState = errors.New("invalid or expired OAuth state")
)

// Message is a fetched notification email
type Message struct {
	ID string
	// From is the raw From header, e.g. "HDFC Bank <alerts@hdfcbank.net>"
	From string
	// Body is the plain-text body, empty when it could not be decoded
	Body string
}

// Mailbox lists and reads candidate notification messages
type Mailbox interface {
	// ListCandidateMessages returns the ids of the most recent messages that
	// match the configured sender and subject filter.
	ListCandidateMessages(ctx context.Context) ([]string, error)
	// FetchBody returns the sender and plain-text body of a message
	FetchBody(ctx context.Context, id string) (Message, error)
	IsAuthenticated() bool
	Close() error
}

// Authenticator is implemented by mailboxes that use the OAuth
// authorization-code flow.
type Authenticator interface {
	// AuthURL returns a consent page URL carrying a fresh state value
	AuthURL() (string, error)
	// Exchange checks state against the issued values, then trades code
	// for a token.
	Exchange(ctx context.Context, state, code string) error
}

// Filter selects candidate messages
type Filter struct {
	Sender string
	// Phrase must appear anywhere in the message
	Phrase     string
	Subject    string
	MaxResults int64
}

// Query renders the filter as a Gmail search query
func (f Filter) Query() string {
	q := fmt.Sprintf("from:%s", f.Sender)
	if f.Phrase != "" {
		q += fmt.Sprintf(" %q", f.Phrase)
	}
	if f.Subject != "" {
		q += fmt.Sprintf(" subject:%q", f.Subject)
	}
	return q
}

func (f Filter) limit() int64 {
	if f.MaxResults <= 0 {
		return 10
	}
	return f.MaxResults
}
