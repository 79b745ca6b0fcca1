package utils

import (
	"bytes"
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"pharmacie_back_end/internal/models"
)

const qrAttachmentName = "commande-qr.png"

// Mailer envoie les notifications transactionnelles.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, order models.Order) error
	SendOrderStatus(ctx context.Context, order models.Order) error
	SendWelcome(ctx context.Context, user models.User) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Lien encodé dans le QR code: FrontendURL + "/orders/<id>".
	FrontendURL string
}

type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendOrderConfirmation(ctx context.Context, order models.Order) error {
	qr, err := OrderQR(order, m.cfg.FrontendURL)
	if err != nil {
		return err
	}
	html, err := OrderConfirmationHTML(order, qrAttachmentName)
	if err != nil {
		return err
	}

	msg, err := m.newMsg(order.Email, fmt.Sprintf("✅ Commande %s enregistrée", order.Reference()), html)
	if err != nil {
		return err
	}
	if err := msg.EmbedReader(qrAttachmentName, bytes.NewReader(qr)); err != nil {
		return err
	}
	return m.send(ctx, order.Email, msg)
}

func (m *SMTPMailer) SendOrderStatus(ctx context.Context, order models.Order) error {
	html, err := OrderStatusHTML(order)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("📦 Commande %s : %s", order.Reference(), StatusLabel(order.Status))
	msg, err := m.newMsg(order.Email, subject, html)
	if err != nil {
		return err
	}
	return m.send(ctx, order.Email, msg)
}

func (m *SMTPMailer) SendWelcome(ctx context.Context, user models.User) error {
	html, err := WelcomeHTML(user.Name)
	if err != nil {
		return err
	}
	msg, err := m.newMsg(user.Email, "🎉 Bienvenue sur Pharmacie !", html)
	if err != nil {
		return err
	}
	return m.send(ctx, user.Email, msg)
}

func (m *SMTPMailer) newMsg(to, subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	return msg, nil
}

func (m *SMTPMailer) send(ctx context.Context, to string, msg *mail.Msg) error {
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}

	log.Println("📤 Envoi de l'e-mail à", to)
	return client.DialAndSendWithContext(ctx, msg)
}

// LogMailer remplace SMTP quand SMTP_HOST est vide (dev, tests).
type LogMailer struct{}

func (LogMailer) SendOrderConfirmation(_ context.Context, order models.Order) error {
	log.WithFields(log.Fields{"order": order.Reference(), "to": order.Email}).Info("📧 Confirmation de commande (SMTP désactivé)")
	return nil
}

func (LogMailer) SendOrderStatus(_ context.Context, order models.Order) error {
	log.WithFields(log.Fields{"order": order.Reference(), "status": order.Status}).Info("📧 Changement de statut (SMTP désactivé)")
	return nil
}

func (LogMailer) SendWelcome(_ context.Context, user models.User) error {
	log.WithField("to", user.Email).Info("📧 Bienvenue (SMTP désactivé)")
	return nil
}
