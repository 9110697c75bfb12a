package submstore

import (
	"time"

	"github.com/google/uuid"
)

// Submission is one persisted contest entry. It is never modified after
// the store has created it.
type Submission struct {
	ID        string
	Name      string
	Email     string
	Answer    string
	Timestamp time.Time
}

// NewSubmission holds the caller supplied fields of a submission.
// ID and Timestamp are always assigned by the store.
type NewSubmission struct {
	Name   string
	Email  string
	Answer string
}

const idPrefix = "sub_"

// newSubmID returns a time ordered unique id. uuid generation is safe for
// concurrent use.
func newSubmID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return idPrefix + id.String()
}
