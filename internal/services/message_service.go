package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/proxy"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
	maxSearchLimit      = 100
	maxMarkReadBatch    = 500
)

type MessageService struct {
	store  repository.Store
	access *proxy.AccessControl
}

func NewMessageService(store repository.Store, access *proxy.AccessControl) *MessageService {
	return &MessageService{store: store, access: access}
}

// SendPrivate persists a private message, creating the session on first
// contact. The caller is responsible for notifying connected clients.
func (s *MessageService) SendPrivate(ctx context.Context, senderID, receiverID string, in chat.MessageInput) (chat.Message, error) {
	msg, err := chat.NewPrivateMessage(senderID, receiverID, in, time.Now())
	if err != nil {
		return chat.Message{}, err
	}
	if _, err := s.store.Users().GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, pulse_errors.ErrNotFound) {
			return chat.Message{}, pulse_errors.NotFound("Receiver not found")
		}
		return chat.Message{}, err
	}

	session, err := createPrivateSession(ctx, s.store, senderID, receiverID)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.access.CanSendInSession(&session, nil, senderID, msg.Type); err != nil {
		return chat.Message{}, err
	}
	if err := s.persist(ctx, &session, nil, msg); err != nil {
		return chat.Message{}, err
	}
	return *msg, nil
}

func (s *MessageService) SendGroup(ctx context.Context, senderID, groupID string, in chat.MessageInput) (chat.Message, error) {
	msg, err := chat.NewGroupMessage(senderID, groupID, in, time.Now())
	if err != nil {
		return chat.Message{}, err
	}
	session, group, err := loadChat(ctx, s.store, msg.ChatID)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.access.CanSendInSession(&session, group, senderID, msg.Type); err != nil {
		return chat.Message{}, err
	}
	if err := s.persist(ctx, &session, group, msg); err != nil {
		return chat.Message{}, err
	}
	return *msg, nil
}

// Send routes a message addressed by chat id, as the socket protocol does.
func (s *MessageService) Send(ctx context.Context, senderID, chatID string, in chat.MessageInput) (chat.Message, error) {
	if strings.TrimSpace(chatID) == "" {
		return chat.Message{}, pulse_errors.Invalid("Chat ID is required")
	}
	if groupID, ok := chat.GroupIDFromChatID(chatID); ok {
		return s.SendGroup(ctx, senderID, groupID, in)
	}

	session, err := s.store.Sessions().GetByChatID(ctx, chatID)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.access.CanViewChat(&session, senderID); err != nil {
		return chat.Message{}, err
	}
	return s.SendPrivate(ctx, senderID, session.Counterpart(senderID), in)
}

// persist writes the message and its session bookkeeping in one transaction.
func (s *MessageService) persist(ctx context.Context, session *chat.Session, group *chat.Group, msg *chat.Message) error {
	recipients := msg.Recipients(session)
	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}
		if err := tx.Sessions().UpdateLastMessage(ctx, msg.ChatID, chat.SnapshotOf(msg), msg.CreatedAt); err != nil {
			return err
		}
		if err := tx.Sessions().IncrementUnread(ctx, msg.ChatID, recipients); err != nil {
			return err
		}
		if group == nil {
			return nil
		}
		if err := tx.Groups().IncrementMessageCount(ctx, group.ID); err != nil {
			return err
		}
		return tx.Groups().TouchMember(ctx, group.ID, msg.SenderID, msg.CreatedAt)
	})
}

// MarkDelivered records delivery to each user that has not been recorded yet
// and returns those newly recorded.
func (s *MessageService) MarkDelivered(ctx context.Context, messageID string, userIDs []string) ([]string, error) {
	now := time.Now()
	var delivered []string
	for _, id := range userIDs {
		added, err := s.store.Messages().AddReceipt(ctx, chat.Receipt{MessageID: messageID, UserID: id, Kind: chat.ReceiptDelivered, At: now})
		if err != nil {
			return delivered, err
		}
		if added {
			delivered = append(delivered, id)
		}
	}
	if len(delivered) > 0 {
		if err := s.store.Messages().AdvanceStatus(ctx, messageID, chat.StatusDelivered); err != nil {
			return delivered, err
		}
	}
	return delivered, nil
}

// ReadReceipt describes the outcome of a mark-read call.
type ReadReceipt struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
	UserID     string   `json:"userId"`
}

// MarkRead marks one message read by userID and clears their unread counter
// for the chat. Marking twice is a no-op.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID string) (ReadReceipt, error) {
	msg, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return ReadReceipt{}, err
	}
	session, err := s.store.Sessions().GetByChatID(ctx, msg.ChatID)
	if err != nil {
		return ReadReceipt{}, err
	}
	if err := s.access.CanViewChat(&session, userID); err != nil {
		return ReadReceipt{}, err
	}

	receipt := ReadReceipt{ChatID: msg.ChatID, UserID: userID}
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if msg.SenderID != userID {
			added, err := tx.Messages().AddReceipt(ctx, chat.Receipt{MessageID: msg.ID, UserID: userID, Kind: chat.ReceiptRead, At: time.Now()})
			if err != nil {
				return err
			}
			if added {
				receipt.MessageIDs = append(receipt.MessageIDs, msg.ID)
				if err := tx.Messages().AdvanceStatus(ctx, msg.ID, chat.StatusRead); err != nil {
					return err
				}
			}
		}
		return tx.Sessions().ClearUnread(ctx, msg.ChatID, userID)
	})
	return receipt, err
}

// MarkChatRead marks every message in the chat read by userID.
func (s *MessageService) MarkChatRead(ctx context.Context, userID, chatID string) (ReadReceipt, error) {
	session, err := s.store.Sessions().GetByChatID(ctx, chatID)
	if err != nil {
		return ReadReceipt{}, err
	}
	if err := s.access.CanViewChat(&session, userID); err != nil {
		return ReadReceipt{}, err
	}

	ids, err := s.store.Messages().UnreadBy(ctx, chatID, userID, maxMarkReadBatch)
	if err != nil {
		return ReadReceipt{}, err
	}
	receipt := ReadReceipt{ChatID: chatID, UserID: userID}
	now := time.Now()
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		for _, id := range ids {
			added, err := tx.Messages().AddReceipt(ctx, chat.Receipt{MessageID: id, UserID: userID, Kind: chat.ReceiptRead, At: now})
			if err != nil {
				return err
			}
			if !added {
				continue
			}
			receipt.MessageIDs = append(receipt.MessageIDs, id)
			if err := tx.Messages().AdvanceStatus(ctx, id, chat.StatusRead); err != nil {
				return err
			}
		}
		return tx.Sessions().ClearUnread(ctx, chatID, userID)
	})
	return receipt, err
}

type HistoryPage struct {
	Messages []chat.Message `json:"messages"`
	Page     int            `json:"page"`
	Limit    int            `json:"limit"`
	Total    int64          `json:"total"`
	HasMore  bool           `json:"hasMore"`
}

// History returns one page of a chat, oldest first within the page, and
// clears the caller's unread counter.
func (s *MessageService) History(ctx context.Context, userID, chatID string, page, limit int) (HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	session, err := s.store.Sessions().GetByChatID(ctx, chatID)
	if err != nil {
		return HistoryPage{}, err
	}
	if err := s.access.CanViewChat(&session, userID); err != nil {
		return HistoryPage{}, err
	}

	messages, total, err := s.store.Messages().ListByChat(ctx, chatID, page, limit)
	if err != nil {
		return HistoryPage{}, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if err := s.store.Sessions().ClearUnread(ctx, chatID, userID); err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{
		Messages: messages,
		Page:     page,
		Limit:    limit,
		Total:    total,
		HasMore:  int64(page*limit) < total,
	}, nil
}

func (s *MessageService) Search(ctx context.Context, userID, chatID, query string, limit int) ([]chat.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, pulse_errors.Invalid("Search query is required")
	}
	if limit < 1 || limit > maxSearchLimit {
		limit = defaultHistoryLimit
	}
	session, err := s.store.Sessions().GetByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanViewChat(&session, userID); err != nil {
		return nil, err
	}
	return s.store.Messages().Search(ctx, chatID, query, limit)
}

// Delete soft-deletes a message sent by userID. If it was the session's last
// message, the snapshot falls back to the newest remaining one.
func (s *MessageService) Delete(ctx context.Context, userID, messageID string) (chat.Message, error) {
	msg, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.access.CanDeleteMessage(&msg, userID); err != nil {
		return chat.Message{}, err
	}

	now := time.Now()
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Messages().SoftDelete(ctx, msg.ID, now); err != nil {
			return err
		}
		session, err := tx.Sessions().GetByChatID(ctx, msg.ChatID)
		if err != nil {
			return err
		}
		if session.LastMessage.ID != msg.ID {
			return nil
		}
		var snapshot chat.LastMessage
		latest, err := tx.Messages().Latest(ctx, msg.ChatID)
		switch {
		case err == nil:
			snapshot = chat.SnapshotOf(&latest)
		case errors.Is(err, pulse_errors.ErrNotFound):
		default:
			return err
		}
		return tx.Sessions().UpdateLastMessage(ctx, msg.ChatID, snapshot, session.LastActivity)
	})
	if err != nil {
		return chat.Message{}, err
	}
	msg.SoftDelete(now)
	return msg, nil
}
