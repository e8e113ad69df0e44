package chat

import (
	"errors"
	"strings"
	"testing"
	"time"

	pulse_errors "pulse-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrivateMessageDerivesChat(t *testing.T) {
	m, err := NewPrivateMessage("2", "1", MessageInput{Content: "  hello  "}, now)
	require.NoError(t, err)

	assert.Equal(t, "private_1_2", m.ChatID)
	assert.Equal(t, SessionPrivate, m.ChatType)
	assert.Equal(t, "1", m.ReceiverID)
	assert.Empty(t, m.GroupID)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, MessageText, m.Type)
	assert.Equal(t, StatusSent, m.Status)
}

func TestNewGroupMessageDerivesChat(t *testing.T) {
	m, err := NewGroupMessage("3", "g1", MessageInput{Type: MessageImage, FileURL: "https://cdn/x.png"}, now)
	require.NoError(t, err)

	assert.Equal(t, "group_g1", m.ChatID)
	assert.Equal(t, "g1", m.GroupID)
	assert.Empty(t, m.ReceiverID)
}

func TestMessageValidation(t *testing.T) {
	cases := []struct {
		name string
		in   MessageInput
	}{
		{"empty text", MessageInput{Content: "   "}},
		{"unknown type", MessageInput{Type: "sticker", Content: "x"}},
		{"system from user", MessageInput{Type: MessageSystem, Content: "x"}},
		{"file without url", MessageInput{Type: MessageFile, FileName: "a.pdf"}},
		{"too long", MessageInput{Content: strings.Repeat("a", MaxContentLength+1)}},
		{"negative size", MessageInput{Type: MessageFile, FileURL: "u", FileSize: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPrivateMessage("1", "2", tc.in, now)
			assert.True(t, errors.Is(err, pulse_errors.ErrInvalidInput), "got %v", err)
		})
	}

	_, err := NewPrivateMessage("1", "1", MessageInput{Content: "me"}, now)
	assert.Error(t, err)
}

func TestReceiptsAreIdempotent(t *testing.T) {
	m, err := NewGroupMessage("1", "g", MessageInput{Content: "x"}, now)
	require.NoError(t, err)

	assert.True(t, m.MarkDelivered("2", now))
	assert.False(t, m.MarkDelivered("2", now.Add(time.Second)))
	assert.Equal(t, StatusDelivered, m.Status)

	assert.True(t, m.MarkRead("2", now))
	assert.False(t, m.MarkRead("2", now))
	assert.Len(t, m.ReadBy, 1)
	assert.Len(t, m.DeliveredTo, 1)
	assert.Equal(t, StatusRead, m.Status)

	// a late delivery never moves the status backwards
	assert.True(t, m.MarkDelivered("3", now))
	assert.Equal(t, StatusRead, m.Status)
}

func TestSoftDelete(t *testing.T) {
	m, err := NewPrivateMessage("1", "2", MessageInput{Content: "x"}, now)
	require.NoError(t, err)

	assert.True(t, m.SoftDelete(now))
	assert.False(t, m.SoftDelete(now))
	assert.True(t, m.IsDeleted)
	require.NotNil(t, m.DeletedAt)
}

func TestPreviewAndFileSize(t *testing.T) {
	img := Message{Type: MessageImage}
	assert.Equal(t, "📷 Image", img.Preview())

	file := Message{Type: MessageFile, FileName: "report.pdf", FileSize: 2048}
	assert.Equal(t, "📎 report.pdf", file.Preview())
	assert.Equal(t, "2.0 KB", file.FormattedFileSize())

	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 MB", FormatFileSize(1536*1024))
	assert.Equal(t, "", FormatFileSize(0))

	long := Message{Type: MessageText, Content: strings.Repeat("é", 150)}
	assert.Equal(t, 101, len([]rune(long.Preview())))
}
