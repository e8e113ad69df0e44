package memory

import "pulse-chat/internal/domain/chat"

// Stored records never escape the store; callers always get copies.

func cloneSession(s *chat.Session) *chat.Session {
	c := *s
	c.Participants = append([]chat.Participant(nil), s.Participants...)
	c.UnreadCounts = append([]chat.UnreadCount(nil), s.UnreadCounts...)
	if s.LastMessage.At != nil {
		at := *s.LastMessage.At
		c.LastMessage.At = &at
	}
	return &c
}

func cloneMessage(m *chat.Message) *chat.Message {
	c := *m
	c.ReadBy = append([]chat.Receipt(nil), m.ReadBy...)
	c.DeliveredTo = append([]chat.Receipt(nil), m.DeliveredTo...)
	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneGroup(g *chat.Group) *chat.Group {
	c := *g
	c.Members = append([]chat.Member(nil), g.Members...)
	c.Tags = append([]string(nil), g.Tags...)
	return &c
}
