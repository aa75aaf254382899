package model

// Notification is a single raw NEF (Notice of Electronic Filing) email as
// handed over by the mailbox. It is immutable once fetched: the pipeline
// either records its ID in the ledger or leaves it for a future run.
type Notification struct {
	// ID is the opaque transport identifier for the message
	// (the IMAP UID rendered as a decimal string).
	ID string

	// Raw holds the full RFC 822 message bytes.
	Raw []byte
}

// ActivityStatus classifies an activity record for the dashboard.
type ActivityStatus string

const (
	StatusInfo    ActivityStatus = "info"
	StatusSuccess ActivityStatus = "success"
	StatusWarning ActivityStatus = "warning"
	StatusError   ActivityStatus = "error"
)

// ActivityRecord is one entry in the user-facing activity log. The JSON
// field names match the log format the dashboard reads.
type ActivityRecord struct {
	Timestamp string         `json:"timestamp"`
	Message   string         `json:"message"`
	CaseNum   string         `json:"case_num,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	Status    ActivityStatus `json:"status"`
}
