// Package mail builds account emails and delivers them either directly
// over SMTP or through a RabbitMQ queue drained by cmd/mailer.
package mail

import (
	"context"
	"fmt"
)

const verificationSubject = "Account Verification Token"

// Message is also the queue payload.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// VerificationMessage is the plain-text email that carries the account
// confirmation link.
func VerificationMessage(from, to, link string) Message {
	return Message{
		From:    from,
		To:      to,
		Subject: verificationSubject,
		Body:    fmt.Sprintf("Hello,\n\nPlease verify your account by clicking the link: \n%s\n", link),
	}
}
