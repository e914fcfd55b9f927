package notify

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	gomail "gopkg.in/gomail.v2"

	"github.com/pantrysense/pantry-cli/internal/model"
)

// EmailConfig holds SMTP settings for the email channel.
type EmailConfig struct {
	Host     string   `yaml:"host" mapstructure:"host"`
	Port     int      `yaml:"port" mapstructure:"port"`
	Username string   `yaml:"username" mapstructure:"username"`
	Password string   `yaml:"password" mapstructure:"password"`
	From     string   `yaml:"from" mapstructure:"from"`
	To       []string `yaml:"to" mapstructure:"to"`
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel delivers alerts over SMTP.
type EmailChannel struct {
	cfg    EmailConfig
	dialer mailSender
}

func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	return &EmailChannel{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, alert model.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.cfg.From)
	m.SetHeader("To", c.cfg.To...)
	m.SetHeader("Subject", subject(alert))
	m.SetBody("text/plain", fmt.Sprintf("%s\n\nLevel: %s\nAlert ID: %s\n",
		alert.Message, alert.Level, alert.ID))

	// gomail has no context support; the dial carries its own TCP
	// timeout and the dispatcher bounds the whole send.
	if err := c.dialer.DialAndSend(m); err != nil {
		return eris.Wrap(err, "notify: send email")
	}
	return nil
}
