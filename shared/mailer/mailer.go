// Package mailer sends transactional email.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/sirupsen/logrus"

	"github.com/bizworx/bizworx-api/shared/utils"
)

// ErrNoRecipient is returned for messages without an address
var ErrNoRecipient = errors.New("message has no recipient")

// Message is a single outbound email
type Message struct {
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SESMailer sends through Amazon SES
type SESMailer struct {
	client  sesiface.SESAPI
	from    string
	breaker *utils.CircuitBreaker
	log     *logrus.Logger
}

// NewSESMailer creates an SES client for region sending from the verified address from
func NewSESMailer(region, from string, log *logrus.Logger) (*SESMailer, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}
	return newSESMailer(ses.New(sess), from, log), nil
}

func newSESMailer(client sesiface.SESAPI, from string, log *logrus.Logger) *SESMailer {
	return &SESMailer{
		client:  client,
		from:    from,
		breaker: utils.NewCircuitBreaker("ses", 5, 30*time.Second, log),
		log:     log,
	}
}

func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	body := &ses.Body{Text: &ses.Content{Charset: aws.String("UTF-8"), Data: aws.String(msg.Text)}}
	if msg.HTML != "" {
		body.Html = &ses.Content{Charset: aws.String("UTF-8"), Data: aws.String(msg.HTML)}
	}
	input := &ses.SendEmailInput{
		Source:      aws.String(m.from),
		Destination: &ses.Destination{ToAddresses: []*string{aws.String(msg.To)}},
		Message: &ses.Message{
			Subject: &ses.Content{Charset: aws.String("UTF-8"), Data: aws.String(msg.Subject)},
			Body:    body,
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []*string{aws.String(msg.ReplyTo)}
	}

	return m.breaker.Execute(ctx, func(ctx context.Context) error {
		out, err := m.client.SendEmailWithContext(ctx, input)
		if err != nil {
			return fmt.Errorf("ses send: %w", err)
		}
		m.log.WithField("message_id", aws.StringValue(out.MessageId)).Debug("email sent")
		return nil
	})
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	log *logrus.Logger
}

func NewLogMailer(log *logrus.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	m.log.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("email (not sent)")
	return nil
}

// New returns an SES mailer for region, or a LogMailer when no region is configured
func New(region, from string, log *logrus.Logger) (Mailer, error) {
	if region == "" {
		log.Warn("AWS_REGION not set, emails will only be logged")
		return NewLogMailer(log), nil
	}
	return NewSESMailer(region, from, log)
}
