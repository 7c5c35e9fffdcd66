package messaging

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/authz"
	"github.com/clinicore/clinicore/internal/domain/credentials"
	"github.com/clinicore/clinicore/internal/platform/filestore"
	"github.com/clinicore/clinicore/internal/platform/storage"
)

// ContactResolver yields the accounts a given account may message.
type ContactResolver interface {
	Resolve(ctx context.Context, accountID string) ([]*credentials.Account, error)
	IsContact(ctx context.Context, accountID, otherAccountID string) (bool, error)
}

type Gateway struct {
	repo     MessageRepository
	contacts ContactResolver
	files    filestore.Store
	log      zerolog.Logger
}

func NewGateway(repo MessageRepository, contacts ContactResolver, files filestore.Store, log zerolog.Logger) *Gateway {
	return &Gateway{repo: repo, contacts: contacts, files: files, log: log}
}

// Send delivers a message from sender to receiver. The receiver must be in
// the sender's contact set at send time. An attachment, if present, is
// written to file storage before the record is inserted; if the insert
// fails the stored file is removed again.
func (g *Gateway) Send(ctx context.Context, senderID string, senderRole authz.Role, receiverID, text, fileName string, file io.Reader) (*Message, error) {
	if err := authz.Authorize(senderRole, authz.OpMessageSend); err != nil {
		return nil, err
	}
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	if text == "" && file == nil {
		return nil, ErrEmptyMessage
	}
	ok, err := g.contacts.IsContact(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotContact, receiverID)
	}

	m := &Message{
		ID:           uuid.NewString(),
		SenderID:     senderID,
		ReceiverID:   receiverID,
		Participants: ParticipantsKey(senderID, receiverID),
		Text:         text,
		CreatedAt:    time.Now().UTC(),
	}

	if file != nil {
		ref, err := g.files.Save(ctx, fileName, file)
		if err != nil {
			return nil, fmt.Errorf("%w: storing attachment: %v", storage.ErrUnavailable, err)
		}
		m.FileRef = ref
		m.FileName = fileName
	}

	if err := g.repo.Insert(ctx, m); err != nil {
		if m.FileRef != "" {
			if derr := g.files.Delete(ctx, m.FileRef); derr != nil {
				g.log.Error().Err(derr).Str("ref", m.FileRef).Msg("orphaned attachment not removed")
			}
		}
		return nil, err
	}
	return m, nil
}

// List returns the caller's messages, oldest first. An account that is not
// a participant in anything, such as an admin, gets an empty page.
func (g *Gateway) List(ctx context.Context, accountID string, limit, offset int) ([]*Message, int, error) {
	return g.repo.ListForAccount(ctx, accountID, limit, offset)
}

// Conversation returns the thread between the caller and one other account.
func (g *Gateway) Conversation(ctx context.Context, accountID, otherAccountID string, limit, offset int) ([]*Message, int, error) {
	return g.repo.Conversation(ctx, accountID, otherAccountID, limit, offset)
}

// MarkRead flags a message as read. Only its receiver may do so.
func (g *Gateway) MarkRead(ctx context.Context, accountID, messageID string) error {
	m, err := g.repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.ReceiverID != accountID {
		return fmt.Errorf("%w: only the receiver may mark a message read", authz.ErrPermissionDenied)
	}
	return g.repo.MarkRead(ctx, messageID, accountID)
}

// OpenAttachment streams a message's attachment to a participant.
func (g *Gateway) OpenAttachment(ctx context.Context, accountID, messageID string) (io.ReadCloser, string, error) {
	m, err := g.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, "", err
	}
	if m.SenderID != accountID && m.ReceiverID != accountID {
		return nil, "", ErrNotFound
	}
	if m.FileRef == "" {
		return nil, "", fmt.Errorf("message %s has no attachment", messageID)
	}
	rc, err := g.files.Open(ctx, m.FileRef)
	if err != nil {
		return nil, "", fmt.Errorf("%w: opening attachment: %v", storage.ErrUnavailable, err)
	}
	return rc, m.FileName, nil
}

// Contacts lists who the caller may message, for recipient pickers.
func (g *Gateway) Contacts(ctx context.Context, accountID string) ([]*credentials.Account, error) {
	return g.contacts.Resolve(ctx, accountID)
}
