package httpdto

import "pulse-chat/internal/domain/chat"

// SendMessageRequest is used for POST /v1/messages/private and /v1/messages/group.
type SendMessageRequest struct {
	ReceiverID    string         `json:"receiverId"`
	GroupID       string         `json:"groupId"`
	Type          string         `json:"type"`
	Content       string         `json:"content"`
	FileURL       string         `json:"fileUrl"`
	FileName      string         `json:"fileName"`
	FileSize      int64          `json:"fileSize"`
	ReplyTo       string         `json:"replyTo"`
	ForwardedFrom string         `json:"forwardedFrom"`
	Metadata      map[string]any `json:"metadata"`
}

func (r SendMessageRequest) Input() chat.MessageInput {
	return chat.MessageInput{
		Type:            chat.MessageType(r.Type),
		Content:         r.Content,
		FileURL:         r.FileURL,
		FileName:        r.FileName,
		FileSize:        r.FileSize,
		ReplyToID:       r.ReplyTo,
		ForwardedFromID: r.ForwardedFrom,
		Metadata:        r.Metadata,
	}
}

// SendMessageResponse carries the stored message and how far it got.
type SendMessageResponse struct {
	Message     chat.Message       `json:"message"`
	Status      chat.MessageStatus `json:"status"`
	DeliveredTo []string           `json:"deliveredTo"`
}

type HistoryResponse struct {
	Messages   []chat.Message `json:"messages"`
	Pagination Pagination     `json:"pagination"`
}

type Pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}

type SearchMessagesResponse struct {
	Messages []chat.Message `json:"messages"`
	Query    string         `json:"query"`
}

type ReadResponse struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
}
