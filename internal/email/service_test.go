package email

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captureSender struct {
	messages []*gomail.Message
	err      error
}

func (c *captureSender) DialAndSend(m ...*gomail.Message) error {
	c.messages = append(c.messages, m...)
	return c.err
}

func TestSendCustom(t *testing.T) {
	sender := &captureSender{}
	svc := NewServiceWithSender(sender, "notifications@example.com")

	require.NoError(t, svc.SendCustom(context.Background(), "nine@example.com", "Payment overdue", "Contract 42 is 3 days overdue"))
	require.Len(t, sender.messages, 1)

	m := sender.messages[0]
	assert.Equal(t, []string{"nine@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Payment overdue"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Contract 42 is 3 days overdue")
}

func TestSendCustomWrapsErrors(t *testing.T) {
	boom := errors.New("smtp down")
	svc := NewServiceWithSender(&captureSender{err: boom}, "from@example.com")

	err := svc.SendCustom(context.Background(), "x@example.com", "s", "c")
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.SendCustom(ctx, "x@example.com", "s", "c"), context.Canceled)
}
