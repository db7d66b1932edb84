package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "adhanbot/internal/transport"
	logx "adhanbot/pkg/logx"
)

func create(guild, author, content string, bot bool) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   guild,
		Content:   content,
		Author:    &discordgo.User{ID: author, Username: "yusuf", Bot: bot},
	}}
}

func TestToMessage(t *testing.T) {
	tests := []struct {
		name   string
		in     *discordgo.MessageCreate
		want   bool
		direct bool
	}{
		{"dm plain text", create("", "u1", "hello", false), true, true},
		{"guild command", create("g1", "u1", " /timings ", false), true, false},
		{"guild chatter", create("g1", "u1", "salam", false), false, false},
		{"other bot", create("", "u2", "/help", true), false, false},
		{"self", create("", "me", "/help", false), false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toMessage("me", tt.in)
			if !tt.want {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.direct, got.IsDirect)
			assert.Equal(t, "u1", got.FromID)
			assert.Equal(t, "c1", got.ChatID)
		})
	}
	assert.Equal(t, "/timings", toMessage("me", create("g1", "u1", " /timings ", false)).Text)
}

func TestOnMessageRemembersDMChannel(t *testing.T) {
	a, err := New(Config{Token: "abc"}, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, "discord", a.Name())

	out := make(chan kit.Update, 1)
	a.out.Store((chan<- kit.Update)(out))
	a.onMessage(a.session, create("", "u1", "/status", false))

	require.Len(t, out, 1)
	up := <-out
	assert.Equal(t, "/status", up.Message.Text)

	ch, err := a.dmChannel(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "c1", ch)

	// Full channel drops instead of blocking the gateway goroutine.
	a.onMessage(a.session, create("", "u1", "/a", false))
	a.onMessage(a.session, create("", "u1", "/b", false))
	assert.Equal(t, uint64(1), a.dropped.Load())
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{}, logx.Nop())
	assert.Error(t, err)
}
