package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"saferental-service/internal/config"
	"saferental-service/internal/util"
)

// Mailer sends OTP codes and finished agreement documents over SMTP. When no
// SMTP host is configured, sends are simulated with a log line so local
// development works without a mail server.
type Mailer struct {
	client *mail.Client
	from   string
}

func NewMailer(cfg *config.Config) (*Mailer, error) {
	smtpConfig := cfg.SMTP

	m := &Mailer{from: smtpConfig.From}

	if smtpConfig.Host == "" {
		util.Warn("SMTP credentials missing, email delivery will be simulated")
		return m, nil
	}

	client, err := mail.NewClient(smtpConfig.Host,
		mail.WithPort(smtpConfig.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(smtpConfig.Username),
		mail.WithPassword(smtpConfig.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	m.client = client
	util.Info("SMTP mailer initialized",
		zap.String("host", smtpConfig.Host),
		zap.Int("port", smtpConfig.Port),
		zap.String("from", smtpConfig.From))

	return m, nil
}

// Close shuts down the SMTP connection pool.
func (m *Mailer) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Send implements OtpTransport for the email channel.
func (m *Mailer) Send(ctx context.Context, contactInfo, code string) error {
	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px; border: 1px solid #eee; padding: 20px;">
  <h2 style="color: #3b82f6;">SafeRental Verification</h2>
  <p>Your verification code is:</p>
  <div style="background: #f4f4f4; padding: 15px; text-align: center; font-size: 32px; font-weight: bold; letter-spacing: 5px;">%s</div>
  <p>This code expires in 10 minutes.</p>
</div>`, code)

	return m.send(ctx, contactInfo, "SafeRental Verification Code", html, "", nil)
}

// SendAgreementPdf emails the rendered document to both parties
// concurrently. Either failure fails the delivery as a whole.
func (m *Mailer) SendAgreementPdf(ctx context.Context, tenantEmail, landlordEmail, agreementNumber string, pdfData []byte) error {
	html := fmt.Sprintf(`<div style="font-family: sans-serif; padding: 20px;">
  <h2>Your Rental Agreement</h2>
  <p>Agreement <strong>%s</strong> is ready and attached.</p>
</div>`, agreementNumber)

	attachmentName := fmt.Sprintf("agreement-%s.pdf", agreementNumber)

	g, gctx := errgroup.WithContext(ctx)
	for _, recipient := range []string{tenantEmail, landlordEmail} {
		recipient := recipient
		g.Go(func() error {
			return m.send(gctx, recipient, "Your Agreement", html, attachmentName, pdfData)
		})
	}
	return g.Wait()
}

func (m *Mailer) send(ctx context.Context, to, subject, html, attachmentName string, attachment []byte) error {
	if m.client == nil {
		util.Info("SIMULATION: email would be sent",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Bool("has_attachment", attachment != nil))
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	if attachment != nil {
		if err := msg.AttachReader(attachmentName, bytes.NewReader(attachment)); err != nil {
			return fmt.Errorf("failed to attach document: %w", err)
		}
	}

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		util.Error("Failed to send email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	util.Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
