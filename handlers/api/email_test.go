package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"docmail/mailbox"
	"docmail/models"
	"docmail/utils"
)

type stubSession struct {
	ids      []uint32
	messages map[uint32][]byte
	closed   bool
}

func (s *stubSession) ListMessageIDs(folder string) ([]uint32, error) { return s.ids, nil }

func (s *stubSession) FetchRaw(id uint32) ([]byte, error) {
	raw, ok := s.messages[id]
	if !ok {
		return nil, utils.ConnectionError("no such message", nil)
	}
	return raw, nil
}

func (s *stubSession) Close() error {
	s.closed = true
	return nil
}

var invoiceMessage = crlf(`From: Bob <bob@example.com>
Subject: March invoice
Date: Tue, 05 Mar 2024 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="frontier"

--frontier
Content-Type: text/plain

Please find the invoice attached.
--frontier
Content-Type: application/pdf
Content-Disposition: attachment; filename="invoice.pdf"
Content-Transfer-Encoding: base64

aGVsbG8gd29ybGQ=
--frontier--
`)

func stubDialer(session *stubSession) mailbox.DialFunc {
	return func(address, password string) (mailbox.Session, error) {
		return session, nil
	}
}

func TestInboxListing(t *testing.T) {
	session := &stubSession{
		ids:      []uint32{7},
		messages: map[uint32][]byte{7: []byte(invoiceMessage)},
	}
	env := newTestEnv(t, stubDialer(session))
	env.register(t, "alice@example.com", "s3cret")
	token := env.login(t, "alice@example.com", "s3cret")

	resp := env.get(t, "/api/emails", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inbox returned %d", resp.StatusCode)
	}

	var body struct {
		Emails  []models.EmailSummary `json:"emails"`
		Skipped int                   `json:"skipped"`
	}
	decodeBody(t, resp, &body)

	if len(body.Emails) != 1 {
		t.Fatalf("got %d emails, want 1", len(body.Emails))
	}
	email := body.Emails[0]
	if email.ID != "7" {
		t.Errorf("id = %q, want 7", email.ID)
	}
	if !strings.Contains(email.Sender, "bob@example.com") {
		t.Errorf("sender = %q", email.Sender)
	}
	if email.Subject != "March invoice" {
		t.Errorf("subject = %q", email.Subject)
	}
	want := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	if !email.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", email.Timestamp, want)
	}
	if !email.HasAttachments || len(email.Attachments) != 1 {
		t.Fatalf("attachments = %+v", email.Attachments)
	}
	meta := email.Attachments[0]
	if meta.Filename != "invoice.pdf" || meta.ContentType != "application/pdf" {
		t.Errorf("attachment meta = %+v", meta)
	}
	if meta.Size != len("hello world") {
		t.Errorf("attachment size = %d, want %d", meta.Size, len("hello world"))
	}
	if body.Skipped != 0 {
		t.Errorf("skipped = %d, want 0", body.Skipped)
	}
	if !session.closed {
		t.Error("mail session was not closed")
	}
}

func TestInboxReportsSkipped(t *testing.T) {
	session := &stubSession{
		ids: []uint32{1, 2},
		messages: map[uint32][]byte{
			1: []byte(invoiceMessage),
			2: []byte("no colon here\r\n\r\nbody"),
		},
	}
	env := newTestEnv(t, stubDialer(session))
	env.register(t, "alice@example.com", "s3cret")
	token := env.login(t, "alice@example.com", "s3cret")

	resp := env.get(t, "/api/emails", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inbox returned %d", resp.StatusCode)
	}
	var body struct {
		Emails  []models.EmailSummary `json:"emails"`
		Skipped int                   `json:"skipped"`
	}
	decodeBody(t, resp, &body)
	if len(body.Emails) != 1 || body.Skipped != 1 {
		t.Errorf("emails = %d, skipped = %d; want 1 and 1", len(body.Emails), body.Skipped)
	}
}

func TestInboxRequiresAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.get(t, "/api/emails", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token returned %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	resp.Body.Close()

	resp = env.get(t, "/api/emails", "not.a.token")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token returned %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	resp.Body.Close()
}

func TestDownloadAttachment(t *testing.T) {
	session := &stubSession{
		ids:      []uint32{7},
		messages: map[uint32][]byte{7: []byte(invoiceMessage)},
	}
	env := newTestEnv(t, stubDialer(session))
	env.register(t, "alice@example.com", "s3cret")
	token := env.login(t, "alice@example.com", "s3cret")

	// Listing fills the cache the download is served from.
	resp := env.get(t, "/api/emails", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inbox returned %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get(t, "/api/emails/7/attachments/invoice.pdf", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download returned %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q, want application/pdf", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "invoice.pdf") {
		t.Errorf("content disposition = %q", cd)
	}
	if got := string(readBody(t, resp)); got != "hello world" {
		t.Errorf("attachment body = %q, want %q", got, "hello world")
	}

	resp = env.get(t, "/api/emails/7/attachments/missing.txt", token)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown filename returned %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestDownloadBeforeListing(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice@example.com", "s3cret")
	token := env.login(t, "alice@example.com", "s3cret")

	// Nothing cached yet, so the download must not reach for the mail store.
	resp := env.get(t, "/api/emails/7/attachments/invoice.pdf", token)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("uncached download returned %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice@example.com", "s3cret")
	token := env.login(t, "alice@example.com", "s3cret")

	resp := env.get(t, "/api/user/profile", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile returned %d", resp.StatusCode)
	}
	var body struct {
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"created_at"`
	}
	decodeBody(t, resp, &body)
	if body.Email != "alice@example.com" {
		t.Errorf("email = %q", body.Email)
	}
	if body.CreatedAt.IsZero() {
		t.Error("created_at is zero")
	}
}
