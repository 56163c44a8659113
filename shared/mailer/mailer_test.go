package mailer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizworx/bizworx-api/shared/utils"
)

type fakeSES struct {
	sesiface.SESAPI
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmailWithContext(_ aws.Context, in *ses.SendEmailInput, _ ...request.Option) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSESMailerBuildsRequest(t *testing.T) {
	fake := &fakeSES{}
	m := newSESMailer(fake, "billing@bizworx.app", quietLogger())

	err := m.Send(context.Background(), Message{
		To:      "client@example.com",
		ReplyTo: "owner@acme.test",
		Subject: "Invoice INV-0001",
		Text:    "Amount due: 100.00",
		HTML:    "<p>Amount due: 100.00</p>",
	})
	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "billing@bizworx.app", aws.StringValue(in.Source))
	assert.Equal(t, "client@example.com", aws.StringValue(in.Destination.ToAddresses[0]))
	assert.Equal(t, "owner@acme.test", aws.StringValue(in.ReplyToAddresses[0]))
	assert.Equal(t, "Invoice INV-0001", aws.StringValue(in.Message.Subject.Data))
	assert.NotNil(t, in.Message.Body.Html)
}

func TestSESMailerOpensBreaker(t *testing.T) {
	fake := &fakeSES{err: errors.New("throttled")}
	m := newSESMailer(fake, "billing@bizworx.app", quietLogger())
	msg := Message{To: "client@example.com", Subject: "s", Text: "t"}

	for i := 0; i < 5; i++ {
		assert.Error(t, m.Send(context.Background(), msg))
	}
	assert.ErrorIs(t, m.Send(context.Background(), msg), utils.ErrCircuitOpen)
	assert.Len(t, fake.inputs, 5)
}

func TestMailersRequireRecipient(t *testing.T) {
	assert.ErrorIs(t, newSESMailer(&fakeSES{}, "x", quietLogger()).Send(context.Background(), Message{}), ErrNoRecipient)
	assert.ErrorIs(t, NewLogMailer(quietLogger()).Send(context.Background(), Message{}), ErrNoRecipient)
	assert.NoError(t, NewLogMailer(quietLogger()).Send(context.Background(), Message{To: "a@b.c"}))
}
