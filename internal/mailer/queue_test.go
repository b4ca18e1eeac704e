package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/growhive/apiserver/config"
	"github.com/growhive/apiserver/internal/mq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

// loopback delivers published messages to the subscribed handler in-process.
type loopback struct {
	published  []published
	handler    mq.Handler
	results    []error
	subscribed chan struct{}
}

func (l *loopback) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	l.published = append(l.published, published{channel: channel, data: data, attrs: attrs})
	if l.handler != nil {
		l.results = append(l.results, l.handler(ctx, mq.Message{ID: "1", Data: data, Attributes: attrs}))
	}
	return "1", nil
}

func (l *loopback) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	l.handler = handler
	if l.subscribed != nil {
		close(l.subscribed)
	}
	<-ctx.Done()
	return ctx.Err()
}

type recordingMailer struct {
	calls []Job
	err   error
}

func (r *recordingMailer) SendOTP(ctx context.Context, email, code string) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, Job{Email: email, Code: code})
	return nil
}

func TestQueueMailerPublishesJob(t *testing.T) {
	broker := &loopback{}
	m := NewQueueMailer(broker, "otp-emails")

	require.NoError(t, m.SendOTP(context.Background(), "a@example.com", "123456"))

	require.Len(t, broker.published, 1)
	assert.Equal(t, "otp-emails", broker.published[0].channel)
	assert.Equal(t, map[string]string{"type": "otp"}, broker.published[0].attrs)

	var job Job
	require.NoError(t, json.Unmarshal(broker.published[0].data, &job))
	assert.Equal(t, Job{Email: "a@example.com", Code: "123456"}, job)
}

func TestConsumerDeliversQueuedJobs(t *testing.T) {
	broker := &loopback{subscribed: make(chan struct{})}
	delivery := &recordingMailer{}
	consumer := NewConsumer(broker, "otp-emails", delivery, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	select {
	case <-broker.subscribed:
	case <-time.After(time.Second):
		t.Fatal("consumer did not subscribe")
	}

	require.NoError(t, NewQueueMailer(broker, "otp-emails").SendOTP(ctx, "a@example.com", "654321"))
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []Job{{Email: "a@example.com", Code: "654321"}}, delivery.calls)
	assert.Equal(t, []error{nil}, broker.results)
}

func TestConsumerHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed job is permanent", func(t *testing.T) {
		consumer := NewConsumer(&loopback{}, "q", &recordingMailer{}, zap.NewNop())
		err := consumer.Handle(ctx, mq.Message{ID: "1", Data: []byte("{")})
		require.ErrorIs(t, err, mq.ErrPermanent)

		err = consumer.Handle(ctx, mq.Message{ID: "2", Data: []byte(`{"email":"a@example.com"}`)})
		require.ErrorIs(t, err, mq.ErrPermanent)
	})

	t.Run("delivery failure is retried", func(t *testing.T) {
		consumer := NewConsumer(&loopback{}, "q", &recordingMailer{err: errors.New("smtp down")}, zap.NewNop())
		err := consumer.Handle(ctx, mq.Message{ID: "1", Data: []byte(`{"email":"a@example.com","code":"123456"}`)})
		require.Error(t, err)
		assert.False(t, errors.Is(err, mq.ErrPermanent))
	})
}

func TestNewDeliveryFallsBackToLog(t *testing.T) {
	m, err := NewDelivery(config.SMTPConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)
	assert.NoError(t, m.SendOTP(context.Background(), "a@example.com", "123456"))

	m, err = NewDelivery(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "GrowHive <no-reply@example.com>"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)
}

func TestOTPBodyContainsCode(t *testing.T) {
	assert.Contains(t, otpBody("482913"), "482913")
}
