package telegram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	kit "adhanbot/internal/transport"
	logx "adhanbot/pkg/logx"
)

func TestToMessage(t *testing.T) {
	m := toMessage(&tele.Message{
		ID:     42,
		Text:   "/timings",
		Chat:   &tele.Chat{ID: 1001, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: 1001, Username: "amina"},
	})
	require.NotNil(t, m)
	assert.Equal(t, kit.Message{
		ID:           "42",
		ChatID:       "1001",
		FromID:       "1001",
		FromUsername: "amina",
		Text:         "/timings",
		IsDirect:     true,
	}, *m)

	g := toMessage(&tele.Message{
		Chat:   &tele.Chat{ID: -100123, Type: tele.ChatSuperGroup},
		Sender: &tele.User{ID: 7},
	})
	require.NotNil(t, g)
	assert.False(t, g.IsDirect)

	assert.Nil(t, toMessage(nil))
	assert.Nil(t, toMessage(&tele.Message{Chat: &tele.Chat{ID: 1}}))
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{Token: " "}, logx.Nop())
	assert.Error(t, err)
}

func TestSendRejectsBadChatID(t *testing.T) {
	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, "telegram", a.Name())

	err = a.SendDirect(context.Background(), "not-a-number", "hi")
	assert.ErrorContains(t, err, "invalid chat id")
}

func TestSendUpdateDropsWhenFull(t *testing.T) {
	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)

	out := make(chan kit.Update, 1)
	a.out.Store((chan<- kit.Update)(out))
	a.sendUpdate(kit.Update{Kind: kit.UpdateMessage})
	a.sendUpdate(kit.Update{Kind: kit.UpdateMessage})
	assert.Len(t, out, 1)
	assert.Equal(t, uint64(1), a.dropped.Load())
}
