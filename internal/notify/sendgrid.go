package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGrid delivers mail through the SendGrid v3 API.
type SendGrid struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

type SendGridOption func(*SendGrid)

// WithHost points the client at another API host.
func WithHost(host string) SendGridOption {
	return func(s *SendGrid) { s.host = host }
}

func NewSendGrid(key, fromName, fromEmail string, opts ...SendGridOption) *SendGrid {
	s := &SendGrid{
		key:        key,
		host:       sendGridHost,
		from:       sgmail.NewEmail(fromName, fromEmail),
		subjPrefix: "[" + fromName + "] ",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SendGrid) SendCredentials(ctx context.Context, msg CredentialsMessage) error {
	email, err := RenderCredentials(msg)
	if err != nil {
		return err
	}
	return s.send(ctx, email)
}

func (s *SendGrid) SendPaymentConfirmation(ctx context.Context, msg ConfirmationMessage) error {
	email, err := RenderConfirmation(msg)
	if err != nil {
		return err
	}
	return s.send(ctx, email)
}

func (s *SendGrid) prepare(email Email) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + email.Subject
	p.AddTos(sgmail.NewEmail("", email.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", email.Text),
		sgmail.NewContent("text/html", email.HTML),
	)
	return m
}

func (s *SendGrid) send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(s.key, sendGridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(email))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
