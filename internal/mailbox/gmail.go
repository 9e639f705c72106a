package mailbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailOptions configures a GmailMailbox
type GmailOptions struct {
	Filter Filter
	// UserID is the Gmail user, "me" for the authorized account.
	UserID string
	// Endpoint overrides the Gmail API base URL.
	Endpoint string
}

// GmailMailbox reads messages through the Gmail API using an OAuth token
// kept in a TokenStore.
type GmailMailbox struct {
	oauth  *oauth2.Config
	tokens TokenStore
	opts   GmailOptions
	log    *logrus.Entry

	mu      sync.RWMutex
	service *gmail.Service

	statesMu sync.Mutex
	states   map[string]time.Time
}

// stateTTL bounds how long a consent page URL stays usable
const stateTTL = 10 * time.Minute

// LoadOAuthConfig reads a Google client secret file and returns a read-only
// Gmail OAuth config redirecting to redirectURL.
func LoadOAuthConfig(credentialsFile, redirectURL string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return cfg, nil
}

// NewGmailMailbox creates a Gmail mailbox. A token already in the store is
// used right away, so monitoring can resume without re-authenticating.
func NewGmailMailbox(ctx context.Context, oauthCfg *oauth2.Config, tokens TokenStore, opts GmailOptions) (*GmailMailbox, error) {
	if opts.UserID == "" {
		opts.UserID = "me"
	}

	m := &GmailMailbox{
		oauth:  oauthCfg,
		tokens: tokens,
		opts:   opts,
		log:    logrus.WithField("component", "gmail"),
		states: make(map[string]time.Time),
	}

	tok, err := tokens.Load()
	switch {
	case err == nil:
		if err := m.connect(ctx, tok); err != nil {
			return nil, err
		}
		m.log.Info("Loaded stored OAuth token")
	case errors.Is(err, os.ErrNotExist):
		m.log.Info("No stored OAuth token, authorization required")
	default:
		m.log.WithError(err).Warn("Ignoring unreadable OAuth token")
	}

	return m, nil
}

func (m *GmailMailbox) connect(ctx context.Context, tok *oauth2.Token) error {
	ts := newSavingTokenSource(m.oauth.TokenSource(context.Background(), tok), m.tokens, tok)

	clientOpts := []option.ClientOption{option.WithTokenSource(ts)}
	if m.opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(m.opts.Endpoint))
	}

	service, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("failed to create Gmail service: %w", err)
	}

	m.mu.Lock()
	m.service = service
	m.mu.Unlock()
	return nil
}

func (m *GmailMailbox) svc() (*gmail.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.service == nil {
		return nil, ErrNotAuthenticated
	}
	return m.service, nil
}

// AuthURL returns the consent page URL for the authorization-code flow.
// Each call issues a new state value that Exchange accepts once.
func (m *GmailMailbox) AuthURL() (string, error) {
	state := uuid.NewString()

	m.statesMu.Lock()
	now := time.Now()
	for s, expires := range m.states {
		if now.After(expires) {
			delete(m.states, s)
		}
	}
	m.states[state] = now.Add(stateTTL)
	m.statesMu.Unlock()

	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

func (m *GmailMailbox) consumeState(state string) bool {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()

	expires, ok := m.states[state]
	if !ok {
		return false
	}
	delete(m.states, state)
	return time.Now().Before(expires)
}

// Exchange trades an authorization code for a token, persists it and
// connects the Gmail service. A token that cannot be saved is an error:
// without it the next start would need a new authorization.
func (m *GmailMailbox) Exchange(ctx context.Context, state, code string) error {
	if !m.consumeState(state) {
		return ErrInvalidState
	}

	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code for token: %w", err)
	}

	if err := m.tokens.Save(tok); err != nil {
		return fmt.Errorf("saving OAuth token: %w", err)
	}

	if err := m.connect(ctx, tok); err != nil {
		return err
	}
	m.log.Info("Gmail authorization completed")
	return nil
}

// IsAuthenticated reports whether a token is loaded
func (m *GmailMailbox) IsAuthenticated() bool {
	_, err := m.svc()
	return err == nil
}

// ListCandidateMessages lists matching message ids in Gmail's default order
func (m *GmailMailbox) ListCandidateMessages(ctx context.Context) ([]string, error) {
	service, err := m.svc()
	if err != nil {
		return nil, err
	}

	resp, err := service.Users.Messages.List(m.opts.UserID).
		Q(m.opts.Filter.Query()).
		MaxResults(m.opts.Filter.limit()).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// FetchBody fetches a full message and returns its sender and text
func (m *GmailMailbox) FetchBody(ctx context.Context, id string) (Message, error) {
	service, err := m.svc()
	if err != nil {
		return Message{}, err
	}

	msg, err := service.Users.Messages.Get(m.opts.UserID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return Message{}, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return Message{
		ID:   id,
		From: payloadHeader(msg.Payload, "From"),
		Body: PayloadText(msg.Payload),
	}, nil
}

// Close is a no-op; the Gmail service holds no connection
func (m *GmailMailbox) Close() error {
	return nil
}
