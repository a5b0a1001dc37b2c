package usecase

import (
	"context"
	"strings"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
	"zarigaas/internal/infrastructure/ratelimit"
	"zarigaas/internal/normalize"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
)

type SendMessageInput struct {
	ReceiverID  string `json:"receiverId" validate:"required,max=128"`
	Text        string `json:"text" validate:"max=4000"`
	ImageURL    string `json:"imageUrl" validate:"omitempty,url"`
	ProductID   string `json:"productId" validate:"max=128"`
	ProductName string `json:"productName" validate:"max=200"`
}

func (wc *WriteCoordinator) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (*entity.Message, error) {
	if senderID == "" {
		return nil, errors.Unauthorized("Sign in required", nil)
	}
	input.Text = strings.TrimSpace(input.Text)
	input.ImageURL = strings.TrimSpace(input.ImageURL)
	if err := wc.check(input); err != nil {
		return nil, err
	}
	if input.Text == "" && input.ImageURL == "" {
		return nil, errors.Validation("Message needs text or an image", nil)
	}
	if input.ReceiverID == senderID {
		return nil, errors.Validation("You cannot message yourself", nil)
	}
	if err := wc.allow(senderID, ratelimit.ActionSendMessage); err != nil {
		return nil, err
	}

	msg := entity.Message{
		ConversationID: entity.ConversationID(senderID, input.ReceiverID),
		SenderID:       senderID,
		ReceiverID:     input.ReceiverID,
		Participants:   entity.Participants(senderID, input.ReceiverID),
		Text:           input.Text,
		ImageURL:       input.ImageURL,
		Timestamp:      wc.now(),
	}

	w := normalize.MessageAliases.Write
	data := map[string]interface{}{
		w("senderId"):     msg.SenderID,
		w("receiverId"):   msg.ReceiverID,
		w("participants"): msg.Participants,
		w("read"):         false,
		w("timestamp"):    repository.ServerTimestamp,
	}
	if msg.Text != "" {
		data[w("text")] = msg.Text
	}
	if msg.ImageURL != "" {
		data[w("imageUrl")] = msg.ImageURL
	}
	if input.ProductID != "" {
		msg.ProductContext = &entity.ProductContext{ProductID: input.ProductID, ProductName: input.ProductName}
		data[w("productContext")] = map[string]interface{}{
			"productId":   input.ProductID,
			"productName": input.ProductName,
		}
	}

	err := wc.run(ctx, "send message", func(ctx context.Context) error {
		id, err := wc.store.Add(ctx, repository.CollectionMessages, data)
		msg.ID = id
		return err
	})
	if err != nil {
		logger.LogWriteError(repository.CollectionMessages, "send", senderID, err)
		return nil, err
	}
	logger.Debug("Message %s sent from %s to %s", msg.ID, senderID, msg.ReceiverID)
	return &msg, nil
}

// MarkRead flags a message as read. Only its receiver may do so and an
// already-read message is left untouched.
func (wc *WriteCoordinator) MarkRead(ctx context.Context, viewerID, messageID string) error {
	if viewerID == "" {
		return errors.Unauthorized("Sign in required", nil)
	}
	if messageID == "" {
		return errors.Validation("Message id is required", nil)
	}

	return wc.run(ctx, "mark read", func(ctx context.Context) error {
		doc, err := wc.store.Get(ctx, repository.CollectionMessages, messageID)
		if err != nil {
			return err
		}
		msg, _ := normalize.Message(doc, wc.now())
		if msg.ReceiverID != viewerID {
			return errors.Forbidden("Only the receiver can mark a message as read", nil)
		}
		if msg.Read {
			return nil
		}
		field := normalize.MessageAliases.StoredField(doc.Data, "read")
		if err := wc.store.Update(ctx, repository.CollectionMessages, messageID, map[string]interface{}{field: true}); err != nil {
			logger.LogWriteError(repository.CollectionMessages, "mark_read", messageID, err)
			return err
		}
		return nil
	})
}

// MarkConversationRead marks every unread message from peerID to viewerID
// as read and returns how many were updated.
func (wc *WriteCoordinator) MarkConversationRead(ctx context.Context, viewerID, peerID string) (int, error) {
	if viewerID == "" {
		return 0, errors.Unauthorized("Sign in required", nil)
	}
	if peerID == "" {
		return 0, errors.Validation("Peer id is required", nil)
	}

	updated := 0
	err := wc.run(ctx, "mark conversation read", func(ctx context.Context) error {
		seen := make(map[string]bool)
		// Legacy messages carry the receiver under older spellings.
		for _, name := range normalize.MessageAliases.Names("receiverId") {
			q := repository.NewQuery(repository.CollectionMessages).Where(name, repository.OpEqual, viewerID)
			docs, err := wc.store.Find(ctx, q)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				if seen[doc.ID] {
					continue
				}
				seen[doc.ID] = true
				msg, _ := normalize.Message(doc, wc.now())
				if msg.Read || msg.SenderID != peerID || msg.ReceiverID != viewerID {
					continue
				}
				field := normalize.MessageAliases.StoredField(doc.Data, "read")
				if err := wc.store.Update(ctx, repository.CollectionMessages, doc.ID, map[string]interface{}{field: true}); err != nil {
					logger.LogWriteError(repository.CollectionMessages, "mark_read", doc.ID, err)
					return err
				}
				updated++
			}
		}
		return nil
	})
	return updated, err
}

// RequestMessageDeletion starts the confirmation step for deleting a
// message. The sender and operators may delete.
func (wc *WriteCoordinator) RequestMessageDeletion(ctx context.Context, actor entity.Actor, messageID string) (*Confirmation, error) {
	if actor.UID == "" {
		return nil, errors.Unauthorized("Sign in required", nil)
	}
	if messageID == "" {
		return nil, errors.Validation("Message id is required", nil)
	}

	err := wc.run(ctx, "request message deletion", func(ctx context.Context) error {
		return wc.authorizeMessageDeletion(ctx, actor, messageID)
	})
	if err != nil {
		return nil, err
	}
	conf := wc.confirmations.issue(actor.UID, repository.CollectionMessages, messageID)
	return &conf, nil
}

// authorizeMessageDeletion allows the sender or an operator.
func (wc *WriteCoordinator) authorizeMessageDeletion(ctx context.Context, actor entity.Actor, messageID string) error {
	doc, err := wc.store.Get(ctx, repository.CollectionMessages, messageID)
	if err != nil {
		return err
	}
	msg, _ := normalize.Message(doc, wc.now())
	if msg.SenderID != actor.UID && !actor.Role.IsOperator() {
		return errors.Forbidden("You can only delete your own messages", nil)
	}
	return nil
}
