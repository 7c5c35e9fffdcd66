package messaging

import "context"

type MessageRepository interface {
	Insert(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListForAccount returns messages where the account is a participant,
	// oldest first.
	ListForAccount(ctx context.Context, accountID string, limit, offset int) ([]*Message, int, error)
	// Conversation returns the messages between the two accounts, oldest
	// first.
	Conversation(ctx context.Context, a, b string, limit, offset int) ([]*Message, int, error)
	// MarkRead flips the read flag. Returns ErrNotFound if the message does
	// not exist or the account is not its receiver.
	MarkRead(ctx context.Context, id, receiverID string) error
}
