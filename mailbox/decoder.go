package mailbox

import (
	"bytes"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"docmail/models"
	"docmail/utils"
)

const previewLength = 150

// stripPolicy removes all HTML when deriving previews from html-only bodies.
var stripPolicy = bluemonday.StrictPolicy()

// Decode parses a raw message into its structured form. Absent sender or
// subject headers decode to empty strings, and a date header that does not
// parse falls back to the current wall-clock time; neither is an error. A
// body part is captured as an attachment only when its content-disposition
// is exactly "attachment" and it carries a non-empty filename, in the
// traversal order of the original message.
func Decode(raw []byte) (models.Email, error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return models.Email{}, utils.DecodeError("unparseable message", err)
	}

	email := models.Email{Attachments: []models.Attachment{}}

	if sender, err := reader.Header.Text("From"); err == nil {
		email.Sender = sender
	}
	if subject, err := reader.Header.Subject(); err == nil {
		email.Subject = subject
	}

	timestamp, err := reader.Header.Date()
	if err != nil || timestamp.IsZero() {
		timestamp = time.Now()
	}
	email.Timestamp = timestamp

	var textBody, htmlBody string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.Email{}, utils.DecodeError("unreadable message part", err)
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case textBody == "" && (mediaType == "" || strings.HasPrefix(mediaType, "text/plain")):
				textBody = string(body)
			case htmlBody == "" && strings.HasPrefix(mediaType, "text/html"):
				htmlBody = string(body)
			}
		case *mail.AttachmentHeader:
			disposition, _, _ := header.ContentDisposition()
			if disposition != "attachment" {
				continue
			}
			filename, _ := header.Filename()
			if filename == "" {
				continue
			}
			contentType, _, _ := header.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				return models.Email{}, utils.DecodeError("unreadable attachment "+filename, err)
			}
			email.Attachments = append(email.Attachments, models.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        len(content),
				Content:     content,
			})
		}
	}

	email.HasAttachments = len(email.Attachments) > 0
	email.Preview = buildPreview(textBody, htmlBody)

	return email, nil
}

// buildPreview derives a short plain-text preview from the first text body,
// falling back to stripped HTML when the message has no plain part.
func buildPreview(textBody, htmlBody string) string {
	text := textBody
	if text == "" && htmlBody != "" {
		text = html.UnescapeString(stripPolicy.Sanitize(htmlBody))
	}

	// Normalize whitespace
	text = strings.Join(strings.Fields(text), " ")

	if len(text) > previewLength {
		// Try to break at a word boundary
		if idx := strings.LastIndex(text[:previewLength], " "); idx > 0 {
			return text[:idx] + "..."
		}
		return text[:previewLength] + "..."
	}
	return text
}
