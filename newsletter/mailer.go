package newsletter

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/rs/zerolog"

	"garden/config"
	"garden/logging"
)

// Message is one batch email. Recipients never see each other.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer picks the mailer named by MAIL_DRIVER.
func NewMailer(cfg *config.Config) (Mailer, error) {
	switch cfg.MailDriver {
	case "ses":
		return NewSESMailer(cfg.AWSRegion)
	case "smtp":
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword), nil
	default:
		return NewLogMailer(logging.L), nil
	}
}

// sesMaxRecipients is the SES limit on To, CC and BCC destinations per SendEmail
// call. Every call addresses From in To, which leaves one less slot for BCC.
const (
	sesMaxRecipients = 50
	sesBccBatch      = sesMaxRecipients - 1
)

type SESMailer struct {
	client sesiface.SESAPI
}

func NewSESMailer(region string) (*SESMailer, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}
	return &SESMailer{client: ses.New(sess)}, nil
}

func NewSESMailerWithClient(client sesiface.SESAPI) *SESMailer {
	return &SESMailer{client: client}
}

// Send mails the recipients in BCC batches. A failing batch stops the send; batches
// before it were already delivered, which is logged and reported in the error.
func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	for start := 0; start < len(msg.To); start += sesBccBatch {
		end := start + sesBccBatch
		if end > len(msg.To) {
			end = len(msg.To)
		}

		input := &ses.SendEmailInput{
			Destination: &ses.Destination{
				ToAddresses:  []*string{aws.String(msg.From)},
				BccAddresses: aws.StringSlice(msg.To[start:end]),
			},
			Message: &ses.Message{
				Body: &ses.Body{
					Html: &ses.Content{
						Charset: aws.String("UTF-8"),
						Data:    aws.String(msg.HTML),
					},
				},
				Subject: &ses.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(msg.Subject),
				},
			},
			Source: aws.String(msg.From),
		}
		if _, err := m.client.SendEmailWithContext(ctx, input); err != nil {
			if start > 0 {
				logging.L.Warn().Err(err).
					Int("delivered", start).
					Int("recipients", len(msg.To)).
					Str("subject", msg.Subject).
					Msg("ses batch failed after partial delivery")
				return fmt.Errorf("ses send (delivered to %d of %d): %w", start, len(msg.To), err)
			}
			return fmt.Errorf("ses send: %w", err)
		}
	}
	return nil
}

type SMTPMailer struct {
	host     string
	port     string
	user     string
	password string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(host, port, user, password string) *SMTPMailer {
	return &SMTPMailer{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		send:     smtp.SendMail,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	message := fmt.Sprintf("From: %s\r\n"+
		"To: undisclosed-recipients:;\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=\"UTF-8\"\r\n"+
		"\r\n"+
		"%s\r\n", msg.From, msg.Subject, msg.HTML)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, m.host)
	}
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	if err := m.send(addr, auth, envelopeAddress(msg.From), msg.To, []byte(message)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// envelopeAddress strips the display name from "Name <addr>".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}

// LogMailer only logs. Used in development.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.log.Info().
		Str("from", msg.From).
		Int("recipients", len(msg.To)).
		Str("subject", msg.Subject).
		Msg("newsletter (not sent, log mailer)")
	return nil
}
