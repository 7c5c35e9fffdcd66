// Package messaging exchanges direct messages, with optional file
// attachments, between accounts that are contacts of each other.
package messaging

import (
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned when no message matches the lookup, or the
	// caller is not allowed to see the one that does.
	ErrNotFound = errors.New("message not found")
	// ErrNotContact is returned when the receiver is outside the sender's
	// contact set.
	ErrNotContact = errors.New("receiver is not a contact")
	// ErrSelfMessage is returned when sender and receiver are the same
	// account.
	ErrSelfMessage = errors.New("sender and receiver must differ")
	// ErrEmptyMessage is returned when a send carries neither text nor an
	// attachment.
	ErrEmptyMessage = errors.New("message needs text or an attachment")
)

type Message struct {
	ID       string `bson:"_id" json:"id"`
	SenderID string `bson:"sender_id" json:"sender_id"`
	// ReceiverID is the other party; Participants holds both IDs in sorted
	// order so a conversation can be queried with a single equality match.
	ReceiverID   string    `bson:"receiver_id" json:"receiver_id"`
	Participants []string  `bson:"participants" json:"-"`
	Text         string    `bson:"text" json:"text"`
	FileRef      string    `bson:"file_ref,omitempty" json:"file_ref,omitempty"`
	FileName     string    `bson:"file_name,omitempty" json:"file_name,omitempty"`
	Read         bool      `bson:"read" json:"read"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// ParticipantsKey returns the two account IDs sorted ascending. Both
// directions of a conversation share one key.
func ParticipantsKey(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}
