// Package retrieval downloads filed documents through their one-time
// free-look links and classifies what came back.
package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Outcome classifies a single retrieval attempt.
type Outcome int

const (
	// OutcomeDocument means the server returned the document bytes.
	OutcomeDocument Outcome = iota

	// OutcomeExpiredLink means the free-look link has expired or been
	// consumed: the server returns its login page with HTTP 200 instead
	// of the document.
	OutcomeExpiredLink

	// OutcomeTransportError covers every other status or network
	// failure.
	OutcomeTransportError
)

// String returns a short label for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeDocument:
		return "document"
	case OutcomeExpiredLink:
		return "expired-link"
	default:
		return "transport-error"
	}
}

// Result is the outcome of one retrieval attempt. Never persisted.
type Result struct {
	Outcome     Outcome
	Data        []byte
	ContentType string
	Detail      string
}

// Retriever fetches a document from a retrieval URL.
type Retriever interface {
	Retrieve(ctx context.Context, url string) Result
}

// requestTimeout bounds a single document download.
const requestTimeout = 30 * time.Second

// Client is the HTTP implementation of Retriever.
type Client struct {
	http *resty.Client
}

// NewClient creates a retrieval client with the fixed request timeout.
func NewClient() *Client {
	c := resty.New()
	c.SetTimeout(requestTimeout)
	return &Client{http: c}
}

// Retrieve downloads the document at url and classifies the response.
// The free-look server answers an expired or consumed link with its login
// page and HTTP 200, so a 200 alone never counts as success: the declared
// content type decides.
func (c *Client) Retrieve(ctx context.Context, url string) Result {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return Result{
			Outcome: OutcomeTransportError,
			Detail:  fmt.Sprintf("network error: %v", err),
		}
	}

	contentType := strings.ToLower(resp.Header().Get("Content-Type"))

	switch {
	case resp.StatusCode() == http.StatusOK && strings.Contains(contentType, "pdf"):
		return Result{
			Outcome:     OutcomeDocument,
			Data:        resp.Body(),
			ContentType: contentType,
		}
	case resp.StatusCode() == http.StatusOK && strings.Contains(contentType, "html"):
		return Result{
			Outcome:     OutcomeExpiredLink,
			ContentType: contentType,
			Detail:      "free-look link expired (got login page instead of PDF)",
		}
	default:
		return Result{
			Outcome:     OutcomeTransportError,
			ContentType: contentType,
			Detail: fmt.Sprintf(
				"status %d, content-type %q", resp.StatusCode(), contentType,
			),
		}
	}
}
