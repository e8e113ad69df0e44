package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/services"
	pulse_errors "pulse-chat/pkg/errors"
)

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return pulse_errors.Invalid("Payload is required")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return pulse_errors.Invalid("Malformed payload")
	}
	return nil
}

func requireChatID(chatID string) (string, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return "", pulse_errors.Invalid("Chat ID is required")
	}
	return chatID, nil
}

func (g *Gateway) handleJoin(ctx context.Context, p *Peer, payload json.RawMessage) error {
	var req chatRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	chatID, err := requireChatID(req.ChatID)
	if err != nil {
		return err
	}
	if err := g.deps.Conversations.CanJoinRoom(ctx, chatID, p.UserID); err != nil {
		return err
	}
	g.registry.Join(p.ID(), chatID)
	g.send(p, EventJoinedChat, RoomPayload{ChatID: chatID})
	return nil
}

func (g *Gateway) handleLeave(ctx context.Context, p *Peer, payload json.RawMessage) error {
	var req chatRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	chatID, err := requireChatID(req.ChatID)
	if err != nil {
		return err
	}
	g.registry.Leave(p.ID(), chatID)
	g.send(p, EventLeftChat, RoomPayload{ChatID: chatID})
	return nil
}

// handleTyping relays typing state to the other users in the room. Only a
// connection that joined the room may signal typing in it.
func (g *Gateway) handleTyping(outEvent string) handlerFunc {
	return func(ctx context.Context, p *Peer, payload json.RawMessage) error {
		var req chatRequest
		if err := decode(payload, &req); err != nil {
			return err
		}
		chatID := strings.TrimSpace(req.ChatID)
		if chatID == "" && req.ReceiverID != "" {
			chatID = chat.PrivateChatID(p.UserID, req.ReceiverID)
		}
		if chatID == "" {
			return pulse_errors.Invalid("Chat ID is required")
		}
		if !g.registry.InRoom(p.ID(), chatID) {
			return pulse_errors.Forbidden("Join the chat before sending typing updates")
		}
		g.fanout(g.peersIn([]string{chatID}, p.UserID), outEvent, TypingPayload{
			ChatID:   chatID,
			UserID:   p.UserID,
			Username: p.Username,
		})
		return nil
	}
}

func (g *Gateway) handleSendMessage(ctx context.Context, p *Peer, payload json.RawMessage) error {
	var req sendMessageRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	if limiter := g.deps.MessageLimiter; limiter != nil {
		res, err := limiter.AllowMessage(ctx, p.UserID)
		if err != nil {
			return err
		}
		if !res.Allowed {
			return pulse_errors.ErrRateLimited
		}
	}

	var (
		msg chat.Message
		err error
	)
	switch {
	case strings.TrimSpace(req.ChatID) != "":
		msg, err = g.deps.Messages.Send(ctx, p.UserID, strings.TrimSpace(req.ChatID), req.input())
	case req.ReceiverID != "":
		msg, err = g.deps.Messages.SendPrivate(ctx, p.UserID, req.ReceiverID, req.input())
	case req.GroupID != "":
		msg, err = g.deps.Messages.SendGroup(ctx, p.UserID, req.GroupID, req.input())
	default:
		err = pulse_errors.Invalid("Chat ID is required")
	}
	if err != nil {
		return err
	}

	// a sender who has not joined yet (first private message) is subscribed
	// so they see the status updates
	g.registry.Join(p.ID(), msg.ChatID)
	g.publishMessage(ctx, msg, req.ClientMessageID)
	return nil
}

func (g *Gateway) handleMarkRead(ctx context.Context, p *Peer, payload json.RawMessage) error {
	var req markReadRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	if req.MessageID != "" {
		receipt, err := g.deps.Messages.MarkRead(ctx, p.UserID, req.MessageID)
		if err != nil {
			return err
		}
		g.PublishRead(ctx, receipt)
		return nil
	}
	chatID, err := requireChatID(req.ChatID)
	if err != nil {
		return err
	}
	receipt, err := g.deps.Messages.MarkChatRead(ctx, p.UserID, chatID)
	if err != nil {
		return err
	}
	g.PublishRead(ctx, receipt)
	return nil
}

func (g *Gateway) handleCreateGroup(ctx context.Context, p *Peer, payload json.RawMessage) error {
	var req createGroupRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	view, err := g.deps.Groups.Create(ctx, p.UserID, chat.GroupParams{
		Name:        req.Name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		Type:        req.Type,
		MaxMembers:  req.MaxMembers,
		MemberIDs:   req.MemberIDs,
		Settings:    req.Settings,
		Tags:        req.Tags,
		Category:    req.Category,
	})
	if err != nil {
		return err
	}
	g.registry.Join(p.ID(), view.ChatID())
	g.send(p, EventJoinedChat, RoomPayload{ChatID: view.ChatID()})
	g.PublishGroupChange(ctx, view, GroupCreated, p.UserID)
	return nil
}

func (g *Gateway) handleJoinGroup(ctx context.Context, p *Peer, payload json.RawMessage) error {
	var req groupRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	var (
		view services.GroupView
		err  error
	)
	switch {
	case req.InviteCode != "":
		view, err = g.deps.Groups.JoinByInvite(ctx, p.UserID, req.InviteCode)
	case req.GroupID != "":
		view, err = g.deps.Groups.Join(ctx, p.UserID, req.GroupID)
	default:
		err = pulse_errors.Invalid("Group ID or invite code is required")
	}
	if err != nil {
		return err
	}
	g.registry.Join(p.ID(), view.ChatID())
	g.send(p, EventJoinedChat, RoomPayload{ChatID: view.ChatID()})
	g.PublishGroupChange(ctx, view, GroupJoined, p.UserID)
	return nil
}

func (g *Gateway) handleLeaveGroup(ctx context.Context, p *Peer, payload json.RawMessage) error {
	var req groupRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	if req.GroupID == "" {
		return pulse_errors.Invalid("Group ID is required")
	}
	view, err := g.deps.Groups.Leave(ctx, p.UserID, req.GroupID)
	if err != nil {
		return err
	}
	g.PublishGroupChange(ctx, view, GroupLeft, p.UserID)
	return nil
}

func (g *Gateway) handlePing(ctx context.Context, p *Peer, _ json.RawMessage) error {
	if err := g.deps.Users.Heartbeat(ctx, p.UserID); err != nil {
		g.log.Warn("heartbeat_failed", p.UserID, p.ID())
	}
	g.send(p, EventPong, map[string]time.Time{"timestamp": time.Now()})
	return nil
}
