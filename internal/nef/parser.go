// Package nef extracts case numbers and free-look document links from
// NEF (Notice of Electronic Filing) emails sent by CM/ECF.
package nef

import (
	"bytes"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/nefwatch/internal/model"
)

// ParsedNotification holds the fields recovered from one NEF email.
// CaseID and DocumentURL are empty when no match was found; an absent
// DocumentURL is a valid terminal outcome, not an error.
type ParsedNotification struct {
	CaseID      string
	DocumentURL string
	Subject     string
}

// casePattern matches federal docket numbers like 1:23-cv-00456, with an
// optional trailing judge-initials suffix (9:21-cv-00029-MJT). It may
// appear anywhere in the body, not only after a "Case Number:" label.
var casePattern = regexp.MustCompile(`(?i)(\d:\d{2}-[a-z]{2}-\d+(?:-[A-Z]+)?)`)

// urlPattern matches CM/ECF doc1 retrieval links carrying a magic_num
// token. Links without the token are not freely retrievable and are
// treated as absent.
var urlPattern = regexp.MustCompile(`(?i)(https://ecf\.[a-z]+\.uscourts\.gov/doc1/\d+\?[^"\s<>]+magic_num=\d+)`)

// Parse extracts the case number, document URL, and subject from a raw
// notification. It never fails: unparseable bodies and missing matches
// simply yield empty fields.
func Parse(n model.Notification) ParsedNotification {
	subject, body := selectBody(n.Raw)

	// Decode entities so an encoded ampersand inside the URL query
	// string does not break matching.
	body = html.UnescapeString(body)

	parsed := ParsedNotification{Subject: subject}

	if m := casePattern.FindStringSubmatch(body); m != nil {
		parsed.CaseID = m[1]
	}
	if m := urlPattern.FindStringSubmatch(body); m != nil {
		parsed.DocumentURL = m[1]
	}

	return parsed
}

// selectBody walks the MIME structure and returns the subject plus the
// body to match against: the first text/plain part, or the first
// text/html part when no plain-text part exists.
func selectBody(raw []byte) (subject, body string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Not parseable as a MIME message; match against the raw bytes.
		return "", string(raw)
	}
	defer mr.Close()

	subject, _ = mr.Header.Subject()

	var textBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		data, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			if textBody == "" {
				textBody = string(data)
			}
		case strings.HasPrefix(contentType, "text/html"):
			if htmlBody == "" {
				htmlBody = string(data)
			}
		}
	}

	if textBody != "" {
		return subject, textBody
	}
	return subject, htmlBody
}
