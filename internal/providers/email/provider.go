package email

import "context"

// Message is a fully rendered outbound email. Dispatchers render
// subject and bodies up front so sends can be retried verbatim.
type Message struct {
	To       string
	From     string
	ReplyTo  string
	Subject  string
	HTMLBody string
	TextBody string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return nil
}
