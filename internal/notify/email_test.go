package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/gomail.v2"
)

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailChannel_Send(t *testing.T) {
	sender := &fakeSender{}
	ch := NewEmailChannel(EmailConfig{
		From: "pantry@example.com",
		To:   []string{"me@example.com"},
	})
	ch.dialer = sender

	err := ch.Send(context.Background(), testAlert())
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, []string{"pantry@example.com"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"me@example.com"}, msg.GetHeader("To"))
	require.Len(t, msg.GetHeader("Subject"), 1)
	assert.Contains(t, msg.GetHeader("Subject")[0], "CRITICAL")
}

func TestEmailChannel_SendError(t *testing.T) {
	ch := NewEmailChannel(EmailConfig{})
	ch.dialer = &fakeSender{err: errors.New("421 service not available")}

	err := ch.Send(context.Background(), testAlert())
	require.Error(t, err)
}

func TestEmailChannel_CancelledContext(t *testing.T) {
	sender := &fakeSender{}
	ch := NewEmailChannel(EmailConfig{})
	ch.dialer = sender

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ch.Send(ctx, testAlert())
	require.Error(t, err)
	assert.Empty(t, sender.sent)
}
