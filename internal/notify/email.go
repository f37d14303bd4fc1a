package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/internal/ratelimit"
	urlutil "github.com/law-makers/sitewatch/internal/utils/url"
	"github.com/law-makers/sitewatch/pkg/models"
)

const (
	displayURLMax = 40
	smtpTimeout   = 30 * time.Second
)

// Message is a composed email ready for delivery.
type Message struct {
	From    string
	To      []string
	Subject string
	Raw     []byte
}

// SendFunc delivers a composed message.
type SendFunc func(ctx context.Context, msg *Message) error

// Email sends change notifications over SMTP.
type Email struct {
	cfg      config.EmailConfig
	password string
	limiter  ratelimit.RateLimiter
	send     SendFunc
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEmail creates an SMTP notifier. limiter may be nil.
func NewEmail(cfg config.EmailConfig, password string, limiter ratelimit.RateLimiter, logger zerolog.Logger) *Email {
	e := &Email{
		cfg:      cfg,
		password: password,
		limiter:  limiter,
		logger:   logger.With().Str("component", "email").Logger(),
		now:      time.Now,
	}
	e.send = e.deliver
	return e
}

// WithSendFunc replaces SMTP delivery, for tests and dry runs.
func (e *Email) WithSendFunc(fn SendFunc) *Email {
	e.send = fn
	return e
}

func (e *Email) Name() string { return "email" }

// Notify emails change to the site's recipients, or the global ones when the
// site has none. Having no recipients at all is logged, not an error.
func (e *Email) Notify(ctx context.Context, change models.ChangeRecord) error {
	recipients := Recipients(change.Recipients, e.cfg.Recipients)
	if len(recipients) == 0 {
		e.logger.Warn().Str("site_id", change.SiteID).Msg("No email recipients configured")
		return nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, e.cfg.SMTPServer); err != nil {
			return fmt.Errorf("email throttled: %w", err)
		}
	}

	msg, err := e.Compose(change, recipients)
	if err != nil {
		return err
	}
	if err := e.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info().
		Str("site_id", change.SiteID).
		Strs("recipients", recipients).
		Msgf("Email notification sent to %d recipient(s): %s", len(recipients), strings.Join(recipients, ", "))
	return nil
}

// Recipients returns site recipients if any, else global ones, without
// duplicates and in first-seen order.
func Recipients(site, global []string) []string {
	src := site
	if len(src) == 0 {
		src = global
	}
	seen := make(map[string]struct{}, len(src))
	out := make([]string, 0, len(src))
	for _, r := range src {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

type emailView struct {
	SiteName   string
	URL        string
	DisplayURL string
	Timestamp  string
	Year       int
	Old        string
	New        string
	Diff       htmltemplate.HTML
}

// Compose builds the multipart/alternative message for change.
func (e *Email) Compose(change models.ChangeRecord, recipients []string) (*Message, error) {
	ts := change.DetectedAt
	if ts.IsZero() {
		ts = e.now()
	}

	view := emailView{
		SiteName:   change.SiteName,
		URL:        change.URL,
		DisplayURL: urlutil.ShortenURL(change.URL, displayURLMax),
		Timestamp:  ts.Format(time.DateTime),
		Year:       ts.Year(),
		Old:        change.OldContent,
		New:        change.NewContent,
		Diff:       diffHTML(change.OldContent, change.NewContent),
	}

	var text, html bytes.Buffer
	if err := textBody.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}
	if err := htmlBody.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}

	subject := "Change Detected: " + change.SiteName

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := writePart(mw, "text/plain; charset=UTF-8", text.Bytes()); err != nil {
		return nil, err
	}
	if err := writePart(mw, "text/html; charset=UTF-8", html.Bytes()); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&raw, "%s: %s\r\n", k, v) }
	header("From", e.cfg.Sender)
	header("To", strings.Join(recipients, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", ts.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@sitewatch>", uuid.NewString()))
	header("MIME-Version", "1.0")
	header("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	raw.WriteString("\r\n")
	raw.Write(body.Bytes())

	return &Message{
		From:    e.cfg.Sender,
		To:      recipients,
		Subject: subject,
		Raw:     raw.Bytes(),
	}, nil
}

func writePart(mw *multipart.Writer, contentType string, content []byte) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write(content); err != nil {
		return err
	}
	return qp.Close()
}

// diffHTML renders a character diff of old and new. DiffPrettyHtml escapes
// the text it emits, so the result is safe to embed.
func diffHTML(old, new string) htmltemplate.HTML {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return htmltemplate.HTML(dmp.DiffPrettyHtml(diffs))
}

// deliver sends msg over SMTP, using implicit TLS (use_ssl) or STARTTLS (use_tls).
func (e *Email) deliver(ctx context.Context, msg *Message) error {
	host := e.cfg.SMTPServer
	addr := net.JoinHostPort(host, strconv.Itoa(e.cfg.SMTPPort))
	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}

	ctx, cancel := context.WithTimeout(ctx, smtpTimeout)
	defer cancel()

	var conn net.Conn
	var err error
	if e.cfg.UseSSL {
		dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if !e.cfg.UseSSL && e.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return errors.New("server does not support STARTTLS")
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if e.cfg.SMTPUsername != "" && e.password != "" {
		if err := client.Auth(smtp.PlainAuth("", e.cfg.SMTPUsername, e.password, host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	from, err := envelopeAddress(msg.From)
	if err != nil {
		return err
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.To {
		to, err := envelopeAddress(rcpt)
		if err != nil {
			return err
		}
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg.Raw); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return client.Quit()
}

// envelopeAddress extracts the bare address from "Name <addr>" forms.
func envelopeAddress(s string) (string, error) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", s, err)
	}
	return a.Address, nil
}

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`WEBSITE CHANGE DETECTED
Time: {{.Timestamp}}

A change has been detected on the website you're monitoring:

Website: {{.SiteName}}
URL: {{.URL}}

NEW CONTENT:
{{.New}}

PREVIOUS CONTENT:
{{.Old}}

This is an automated notification from sitewatch.
`))

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Website Change Alert</title>
<style>
  body { font-family: -apple-system, 'Segoe UI', system-ui, sans-serif; color: #e2e8f0; background: #0f172a; margin: 0; padding: 16px; }
  .container { max-width: 600px; margin: 0 auto; background: #1e293b; border: 1px solid #334155; border-radius: 8px; }
  .header, .content { padding: 24px; }
  .header { border-bottom: 1px solid #334155; }
  .timestamp { color: #94a3b8; font-size: 14px; }
  .site-url { color: #60a5fa; word-break: break-all; }
  .block { border: 1px solid #334155; border-radius: 6px; margin: 16px 0; }
  .label { padding: 10px 16px; font-size: 12px; font-weight: 600; text-transform: uppercase; }
  .new .label { background: #166534; color: #dcfce7; }
  .old .label { background: #991b1b; color: #fecaca; }
  .diff .label { background: #334155; }
  .body { padding: 16px; font-size: 14px; word-break: break-word; }
  ins { background: #166534; text-decoration: none; }
  del { background: #991b1b; }
  .button { display: block; background: #3b82f6; color: #fff; text-align: center; padding: 12px; border-radius: 6px; text-decoration: none; }
  .footer { padding: 16px; text-align: center; color: #64748b; font-size: 12px; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>{{.SiteName}}</h1>
    <p class="timestamp">{{.Timestamp}}</p>
  </div>
  <div class="content">
    <a href="{{.URL}}" class="site-url">{{.DisplayURL}}</a>
    <div class="block new"><div class="label">+ Added</div><div class="body">{{.New}}</div></div>
    <div class="block old"><div class="label">- Removed</div><div class="body">{{.Old}}</div></div>
    <div class="block diff"><div class="label">Diff</div><div class="body">{{.Diff}}</div></div>
    <a href="{{.URL}}" class="button">Visit Website</a>
  </div>
  <div class="footer">sitewatch &copy; {{.Year}}</div>
</div>
</body>
</html>
`))
