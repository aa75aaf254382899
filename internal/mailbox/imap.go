// Package mailbox provides the IMAP transport the pipeline reads
// notifications through.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/nefwatch/internal/model"
)

// AuthError indicates that the mailbox rejected the credentials. It
// carries the provider's app-password help URL as a remediation hint.
type AuthError struct {
	Message string
	HelpURL string
}

func (e *AuthError) Error() string {
	return "auth error: " + e.Message
}

// IsAuthError reports whether err (or any error in its chain) is an
// AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Mailbox is the interface the pipeline consumes: an opaque provider of
// candidate notifications. It does not expose the mail protocol.
type Mailbox interface {
	// Search returns the IDs of messages matching the sender-domain and
	// subject filters.
	Search(ctx context.Context, fromFilter, subjectFilter string) ([]string, error)

	// Fetch retrieves the full raw message for an ID from Search.
	Fetch(ctx context.Context, id string) (model.Notification, error)
}

// Client holds the connection settings for an IMAP account.
type Client struct {
	provider Provider
	username string
	password string
}

// NewClient creates an IMAP client for the configured provider and
// credentials.
func NewClient(cfg *model.Config, password string) *Client {
	return &Client{
		provider: ResolveProvider(cfg),
		username: cfg.EmailUser,
		password: password,
	}
}

// Session is a single authenticated IMAP session with INBOX selected.
// It implements Mailbox. The caller must Close it on every exit path.
type Session struct {
	client *imapclient.Client
}

// Dial connects, authenticates, and selects INBOX. Authentication
// failures are returned as *AuthError with the provider's help URL.
func (c *Client) Dial(_ context.Context) (*Session, error) {
	addr := fmt.Sprintf("%s:%d", c.provider.Server, c.provider.Port)

	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Message: fmt.Sprintf("login failed for %s: %v", c.username, err),
			HelpURL: c.provider.HelpURL,
		}
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	return &Session{client: client}, nil
}

// Search runs a UID search filtered by sender domain and subject and
// returns the matching UIDs as opaque ID strings.
func (s *Session) Search(_ context.Context, fromFilter, subjectFilter string) ([]string, error) {
	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "From", Value: fromFilter},
			{Key: "Subject", Value: subjectFilter},
		},
	}

	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// Fetch retrieves the full raw RFC 822 message for the given ID.
func (s *Session) Fetch(_ context.Context, id string) (model.Notification, error) {
	uid, err := parseUID(id)
	if err != nil {
		return model.Notification{}, err
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return model.Notification{}, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return model.Notification{}, fmt.Errorf("collecting message data: %w", err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return model.Notification{}, fmt.Errorf("message UID %d has no body", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return model.Notification{}, fmt.Errorf("closing fetch: %w", err)
	}

	return model.Notification{ID: id, Raw: raw}, nil
}

// Close logs the session out. Safe to defer immediately after Dial.
func (s *Session) Close() error {
	return s.client.Logout().Wait()
}

// parseUID converts an opaque notification ID back to a uint32 UID.
func parseUID(id string) (uint32, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message ID %q: %w", id, err)
	}
	return uint32(uid), nil
}
