package mailbox

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
)

// IMAPOptions configures an IMAPMailbox
type IMAPOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Mailbox  string
	Filter   Filter
}

// IMAPMailbox reads messages from an IMAP server over TLS.
// Message ids are IMAP UIDs.
type IMAPMailbox struct {
	opts IMAPOptions
	log  *logrus.Entry

	// go-imap clients do not support concurrent commands
	mu     sync.Mutex
	client *client.Client
}

// NewIMAPMailbox connects and logs in to the IMAP server
func NewIMAPMailbox(opts IMAPOptions) (*IMAPMailbox, error) {
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}

	c, err := client.DialTLS(fmt.Sprintf("%s:%d", opts.Host, opts.Port), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(opts.User, opts.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return &IMAPMailbox{
		opts:   opts,
		log:    logrus.WithField("component", "imap"),
		client: c,
	}, nil
}

// IsAuthenticated reports whether the session is logged in
func (m *IMAPMailbox) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil && m.client.State()&imap.AuthenticatedState != 0
}

// ListCandidateMessages searches by FROM, TEXT and SUBJECT and returns the newest
// matching UIDs first.
func (m *IMAPMailbox) ListCandidateMessages(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil, ErrNotAuthenticated
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := m.client.Select(m.opts.Mailbox, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", m.opts.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("From", m.opts.Filter.Sender)
	if m.opts.Filter.Phrase != "" {
		criteria.Text = append(criteria.Text, m.opts.Filter.Phrase)
	}
	if m.opts.Filter.Subject != "" {
		criteria.Header.Add("Subject", m.opts.Filter.Subject)
	}

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	return newestUIDs(uids, m.opts.Filter.limit()), nil
}

// newestUIDs returns at most n UIDs, highest first
func newestUIDs(uids []uint32, n int64) []string {
	sorted := append([]uint32(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	if int64(len(sorted)) > n {
		sorted = sorted[:n]
	}

	ids := make([]string, 0, len(sorted))
	for _, uid := range sorted {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids
}

// FetchBody fetches the full message without setting \Seen and returns its
// sender and text
func (m *IMAPMailbox) FetchBody(ctx context.Context, id string) (Message, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return Message{}, fmt.Errorf("invalid IMAP uid %q: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return Message{}, ErrNotAuthenticated
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- m.client.UidFetch(seqset, []imap.FetchItem{section.FetchItem(), imap.FetchUid}, messages)
	}()

	var parsed Message
	var parseErr error
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		parsed, parseErr = ReadMessage(r)
	}

	if err := <-done; err != nil {
		return Message{}, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	if parseErr != nil {
		m.log.WithError(parseErr).WithField("uid", id).Warn("Failed to parse IMAP message")
	}
	parsed.ID = id
	return parsed, nil
}

// Close logs out of the IMAP server
func (m *IMAPMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}
	err := m.client.Logout()
	m.client = nil
	return err
}
