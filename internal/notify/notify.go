// Package notify emails the new passphrase after a successful rotation.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	gomail "github.com/wneessen/go-mail"

	"meraki-toolkit/internal/config"
	"meraki-toolkit/internal/executor"
	"meraki-toolkit/internal/logging"
	"meraki-toolkit/internal/record"
	"meraki-toolkit/internal/template"
)

// QRCodeName is the file name of the generated QR code image
const QRCodeName = "qrcode.png"

const qrCodeSize = 256

// dryRunPrefix marks the subject of a preview notification
const dryRunPrefix = "[DRYRUN] "

// Settings configures one notification
type Settings struct {
	Recipients  []string
	Sender      string
	TemplateDir string // empty for the built-in template set
	SMTP        config.SMTPConfig
}

// Deliverer sends composed messages. *gomail.Client satisfies it.
type Deliverer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// DialFunc builds a Deliverer for the given server settings
type DialFunc func(smtp config.SMTPConfig) (Deliverer, error)

// Mailer composes and delivers PSK change notifications
type Mailer struct {
	logger *logging.Logger
	dial   DialFunc
	now    func() time.Time
}

// NewMailer returns a Mailer delivering over SMTP
func NewMailer(logger *logging.Logger) *Mailer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Mailer{logger: logger, dial: NewClient, now: time.Now}
}

// Send emails rec to the configured recipients when the record may be
// notified. A dry-run record is sent too, marked as a preview in the
// subject and the templates. Errors are returned for the caller to report;
// they never change the rotation outcome.
func (m *Mailer) Send(ctx context.Context, rec *record.OperationRecord, settings Settings) error {
	if !record.CanNotify(rec) {
		m.logger.Debug("notification skipped", "reason", "no successful operation")
		return nil
	}
	if len(settings.Recipients) == 0 {
		return nil
	}

	msg, err := m.Compose(rec, settings)
	if err != nil {
		return err
	}

	client, err := m.dial(settings.SMTP)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}

	start := time.Now()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending notification via %s:%d: %w", settings.SMTP.Server, settings.SMTP.Port, err)
	}
	m.logger.Info("notification sent",
		"ssid", rec.SSID(),
		"dry_run", rec.DryRun,
		"recipients", len(settings.Recipients),
		"server", settings.SMTP.Server,
		"duration", time.Since(start))
	return nil
}

// Compose builds the multipart message for rec: a plain text body, an HTML
// alternative, the QR code and every image of the template set embedded by
// content id.
func (m *Mailer) Compose(rec *record.OperationRecord, settings Settings) (*gomail.Msg, error) {
	set, err := loadTemplates(settings.TemplateDir)
	if err != nil {
		return nil, err
	}

	qr, err := QRCode(rec.SSID(), rec.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("generating QR code: %w", err)
	}

	images := map[string]string{QRCodeName: template.ContentID(QRCodeName)}
	for _, image := range set.Images() {
		images[image.Name] = image.ContentID
	}

	now := m.now()
	data := template.EmailContext{
		SSID:     rec.SSID(),
		PSK:      rec.Passphrase,
		Date:     now,
		Networks: networks(rec),
		Images:   images,
		DryRun:   rec.DryRun,
	}

	text, err := set.RenderText(data)
	if err != nil {
		return nil, err
	}
	html, err := set.RenderHTML(data)
	if err != nil {
		return nil, err
	}

	msg := gomail.NewMsg()
	if err := setSender(msg, settings); err != nil {
		return nil, err
	}
	if err := msg.Bcc(settings.Recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	subject := Subject(rec.SSID(), now)
	if rec.DryRun {
		subject = dryRunPrefix + subject
	}
	msg.Subject(subject)
	msg.SetDateWithValue(now)
	msg.SetBodyString(gomail.TypeTextPlain, text)
	msg.AddAlternativeString(gomail.TypeTextHTML, html)

	for _, image := range set.Images() {
		if image.Name == QRCodeName {
			continue
		}
		msg.EmbedReadSeeker(image.Name, bytes.NewReader(image.Data), contentID(image.ContentID))
	}
	msg.EmbedReadSeeker(QRCodeName, bytes.NewReader(qr), contentID(template.ContentID(QRCodeName)))

	return msg, nil
}

// contentID sets the angle-bracketed Content-ID header that cid: URLs
// resolve against
func contentID(id string) gomail.FileOption {
	return gomail.WithFileContentID("<" + id + ">")
}

func loadTemplates(dir string) (*template.Set, error) {
	if dir == "" {
		return template.Default()
	}
	return template.LoadDir(dir)
}

// Subject returns "<ssid> PSK changed dd/mm/YYYY"
func Subject(ssid string, date time.Time) string {
	return fmt.Sprintf("%s PSK changed %s", ssid, date.Format("02/01/2006"))
}

// setSender uses the sender as address when it is one. Otherwise it is the
// display name, paired with the SMTP user or a no-reply address on the
// server's domain.
func setSender(msg *gomail.Msg, settings Settings) error {
	sender := settings.Sender
	if sender == "" {
		sender = config.DefaultSender
	}

	if _, err := mail.ParseAddress(sender); err == nil {
		return msg.From(sender)
	}

	address := settings.SMTP.User
	if _, err := mail.ParseAddress(address); err != nil {
		address = "noreply@" + settings.SMTP.Server
	}
	if err := msg.FromFormat(sender, address); err != nil {
		return fmt.Errorf("invalid sender %q: %w", sender, err)
	}
	return nil
}

func networks(rec *record.OperationRecord) []string {
	var out []string
	for _, o := range rec.Outcomes {
		if o.Status == executor.StatusFailed {
			continue
		}
		out = append(out, o.Target.OrganizationName+" / "+o.Target.NetworkName)
	}
	return out
}

// WiFiURI returns the Wi-Fi network QR payload for a WPA2 network
func WiFiURI(ssid, psk string) string {
	return fmt.Sprintf("WIFI:S:%s;T:WPA2;P:%s;;", escapeWiFi(ssid), escapeWiFi(psk))
}

var wifiEscaper = strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, `:`, `\:`, `"`, `\"`)

func escapeWiFi(s string) string {
	return wifiEscaper.Replace(s)
}

// QRCode renders the Wi-Fi QR code as PNG
func QRCode(ssid, psk string) ([]byte, error) {
	return qrcode.Encode(WiFiURI(ssid, psk), qrcode.Medium, qrCodeSize)
}

// NewClient returns an SMTP client for the given settings. TLS connects
// with implicit TLS, STARTTLS upgrades a plain connection and SMTP never
// encrypts. Authentication is only configured when both user and password
// are set.
func NewClient(smtp config.SMTPConfig) (Deliverer, error) {
	opts := []gomail.Option{gomail.WithPort(smtp.Port), gomail.WithTimeout(30 * time.Second)}

	switch smtp.Mode {
	case config.SMTPModeTLS, "":
		opts = append(opts, gomail.WithSSL())
	case config.SMTPModeSTARTTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	case config.SMTPModePlain:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	default:
		return nil, fmt.Errorf("unknown smtp mode %q", smtp.Mode)
	}

	if smtp.User != "" && smtp.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthAutoDiscover),
			gomail.WithUsername(smtp.User),
			gomail.WithPassword(smtp.Password))
	}

	client, err := gomail.NewClient(smtp.Server, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}
