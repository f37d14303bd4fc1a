package notify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/pkg/models"
)

func sampleChange() models.ChangeRecord {
	return models.ChangeRecord{
		SiteID:     "shop",
		SiteName:   "Shop",
		URL:        "https://shop.example.com/products/very-long-product-path/widget?ref=newsletter",
		OldContent: "In Stock",
		NewContent: "Out of Stock <limited>",
		DetectedAt: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func testEmailConfig() config.EmailConfig {
	return config.EmailConfig{
		Enabled:    true,
		SMTPServer: "smtp.example.com",
		SMTPPort:   587,
		Sender:     "Sitewatch <alerts@example.com>",
		Recipients: []string{"ops@example.com"},
	}
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(context.Context, models.ChangeRecord) error {
	s.calls++
	return s.err
}

func TestConsole_PrintsBanner(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	if err := c.Notify(context.Background(), sampleChange()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	out := buf.String()
	banner := strings.Repeat("!", bannerWidth)
	if strings.Count(out, banner) != 2 {
		t.Errorf("Expected two banners, got:\n%s", out)
	}
	for _, want := range []string{
		"[2024-03-01 12:30:00] Change detected on Shop!",
		"URL: " + sampleChange().URL,
		"Out of Stock <limited>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("Expected no color codes when writing to a buffer")
	}
}

func TestMulti_RunsAllAndJoinsErrors(t *testing.T) {
	first := &stubNotifier{name: "first", err: errors.New("boom")}
	second := &stubNotifier{name: "second"}
	third := &stubNotifier{name: "third", err: errors.New("bang")}

	err := Multi{first, nil, second, third}.Notify(context.Background(), sampleChange())
	if err == nil {
		t.Fatal("Expected joined error")
	}
	if first.calls != 1 || second.calls != 1 || third.calls != 1 {
		t.Errorf("Expected every notifier to run once, got %d %d %d", first.calls, second.calls, third.calls)
	}
	msg := err.Error()
	if !strings.Contains(msg, "first: boom") || !strings.Contains(msg, "third: bang") {
		t.Errorf("Unexpected joined error %q", msg)
	}

	if err := (Multi{second}).Notify(context.Background(), sampleChange()); err != nil {
		t.Errorf("Expected nil when all succeed, got %v", err)
	}
}

func TestRecipients(t *testing.T) {
	tests := []struct {
		name   string
		site   []string
		global []string
		want   []string
	}{
		{"global when site empty", nil, []string{"a@x.com", "b@x.com"}, []string{"a@x.com", "b@x.com"}},
		{"site overrides global", []string{"s@x.com"}, []string{"a@x.com"}, []string{"s@x.com"}},
		{"dedupes in order", []string{"b@x.com", "a@x.com", "b@x.com", " "}, nil, []string{"b@x.com", "a@x.com"}},
		{"none", nil, nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recipients(tt.site, tt.global)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Recipients() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmail_NoRecipientsIsNotAnError(t *testing.T) {
	cfg := testEmailConfig()
	cfg.Recipients = nil

	sent := 0
	e := NewEmail(cfg, "", nil, zerolog.Nop()).WithSendFunc(func(context.Context, *Message) error {
		sent++
		return nil
	})

	if err := e.Notify(context.Background(), sampleChange()); err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if sent != 0 {
		t.Error("Expected nothing to be sent")
	}
}

func TestEmail_SiteRecipientsOverride(t *testing.T) {
	var got *Message
	e := NewEmail(testEmailConfig(), "", nil, zerolog.Nop()).WithSendFunc(func(_ context.Context, m *Message) error {
		got = m
		return nil
	})

	change := sampleChange()
	change.Recipients = []string{"buyer@example.com", "buyer@example.com"}
	if err := e.Notify(context.Background(), change); err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got.To) != 1 || got.To[0] != "buyer@example.com" {
		t.Fatalf("Expected only the site recipient, got %+v", got)
	}
}

func TestEmail_SendFailureIsReturned(t *testing.T) {
	e := NewEmail(testEmailConfig(), "", nil, zerolog.Nop()).WithSendFunc(func(context.Context, *Message) error {
		return errors.New("connection refused")
	})
	err := e.Notify(context.Background(), sampleChange())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Expected send error, got %v", err)
	}
}

type partContent struct {
	contentType string
	body        string
}

func parseMessage(t *testing.T, raw []byte) (*mail.Message, []partContent) {
	t.Helper()
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Failed to parse message: %v", err)
	}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("Bad Content-Type: %v", err)
	}
	if mediaType != "multipart/alternative" {
		t.Fatalf("Expected multipart/alternative, got %s", mediaType)
	}

	var parts []partContent
	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read part: %v", err)
		}
		// multipart.Reader decodes quoted-printable transparently.
		body, err := io.ReadAll(p)
		if err != nil {
			t.Fatal(err)
		}
		parts = append(parts, partContent{contentType: p.Header.Get("Content-Type"), body: string(body)})
	}
	return msg, parts
}

func TestEmail_Compose(t *testing.T) {
	e := NewEmail(testEmailConfig(), "", nil, zerolog.Nop())
	change := sampleChange()

	m, err := e.Compose(change, []string{"ops@example.com", "dev@example.com"})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if m.Subject != "Change Detected: Shop" {
		t.Errorf("Unexpected subject %q", m.Subject)
	}

	msg, parts := parseMessage(t, m.Raw)
	if got := msg.Header.Get("Subject"); got != "Change Detected: Shop" {
		t.Errorf("Unexpected Subject header %q", got)
	}
	to, err := msg.Header.AddressList("To")
	if err != nil || len(to) != 2 {
		t.Fatalf("Expected two To addresses, got %v (%v)", to, err)
	}
	if from, _ := msg.Header.AddressList("From"); len(from) != 1 || from[0].Address != "alerts@example.com" {
		t.Errorf("Unexpected From %v", from)
	}

	if len(parts) != 2 {
		t.Fatalf("Expected text and html parts, got %d", len(parts))
	}
	if !strings.HasPrefix(parts[0].contentType, "text/plain") || !strings.HasPrefix(parts[1].contentType, "text/html") {
		t.Errorf("Unexpected part order %q, %q", parts[0].contentType, parts[1].contentType)
	}

	text := parts[0].body
	for _, want := range []string{"Website: Shop", "URL: " + change.URL, "NEW CONTENT:\nOut of Stock <limited>", "PREVIOUS CONTENT:\nIn Stock"} {
		if !strings.Contains(text, want) {
			t.Errorf("Text part missing %q:\n%s", want, text)
		}
	}

	html := parts[1].body
	if strings.Contains(html, "<limited>") {
		t.Error("Expected new content to be escaped in the html part")
	}
	if !strings.Contains(html, "Out of Stock &lt;limited&gt;") {
		t.Errorf("Expected escaped new content in html part")
	}
	if !strings.Contains(html, "https://shop.example.com/products/ver...") {
		t.Errorf("Expected shortened display URL in html part")
	}
	if !strings.Contains(html, "<ins") && !strings.Contains(html, "<del") {
		t.Error("Expected a rendered diff in html part")
	}
}

// fakeSMTP accepts one plaintext session and records the envelope.
type fakeSMTP struct {
	ln   net.Listener
	mu   sync.Mutex
	from string
	rcpt []string
	data string
	done chan struct{}
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSMTP{ln: ln, done: make(chan struct{})}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { io.WriteString(conn, line+"\r\n") }
	reply("220 fake ESMTP")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250-fake")
			reply("250 8BITMIME")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			s.mu.Lock()
			s.from = strings.Trim(line[len("MAIL FROM:"):], "<> ")
			s.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, strings.Trim(line[len("RCPT TO:"):], "<> "))
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestEmail_DeliversOverSMTP(t *testing.T) {
	srv := newFakeSMTP(t)

	cfg := testEmailConfig()
	cfg.SMTPServer = "127.0.0.1"
	cfg.SMTPPort = srv.port()
	cfg.UseTLS = false

	e := NewEmail(cfg, "", nil, zerolog.Nop())
	change := sampleChange()
	change.Recipients = []string{"Buyer <buyer@example.com>", "ops@example.com"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Notify(ctx, change); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case <-srv.done:
	case <-time.After(5 * time.Second):
		t.Fatal("SMTP session did not finish")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.from != "alerts@example.com" {
		t.Errorf("Expected envelope sender alerts@example.com, got %q", srv.from)
	}
	if strings.Join(srv.rcpt, ",") != "buyer@example.com,ops@example.com" {
		t.Errorf("Unexpected envelope recipients %v", srv.rcpt)
	}
	if !strings.Contains(srv.data, "Subject: Change Detected: Shop") {
		t.Errorf("Expected subject header in DATA, got:\n%s", srv.data)
	}
}

func TestEmail_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := testEmailConfig()
	cfg.SMTPServer = "127.0.0.1"
	cfg.SMTPPort = port

	err = NewEmail(cfg, "", nil, zerolog.Nop()).Notify(context.Background(), sampleChange())
	if err == nil || !strings.Contains(err.Error(), "connect 127.0.0.1:"+strconv.Itoa(port)) {
		t.Errorf("Expected connect error, got %v", err)
	}
}
