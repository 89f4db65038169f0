package models

import "time"

// Email is a decoded inbox message. ID is the identifier assigned by the
// mail store, unique only within one mailbox folder.
type Email struct {
	ID             string       `json:"id"`
	Sender         string       `json:"sender"`
	Subject        string       `json:"subject"`
	Timestamp      time.Time    `json:"timestamp"`
	Preview        string       `json:"preview,omitempty"`
	Attachments    []Attachment `json:"attachments"`
	HasAttachments bool         `json:"has_attachments"`
}

// Attachment represents a file carried by an Email
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Content     []byte `json:"-"` // Excluded from JSON
}

// AttachmentMeta is the listing view of an Attachment: metadata only, never
// the raw bytes.
type AttachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// EmailSummary is the listing view of an Email returned to clients.
type EmailSummary struct {
	ID             string           `json:"id"`
	Sender         string           `json:"sender"`
	Subject        string           `json:"subject"`
	Timestamp      time.Time        `json:"timestamp"`
	Preview        string           `json:"preview,omitempty"`
	Attachments    []AttachmentMeta `json:"attachments"`
	HasAttachments bool             `json:"has_attachments"`
}

// Summary redacts an Email down to its listing view.
func (e Email) Summary() EmailSummary {
	attachments := make([]AttachmentMeta, 0, len(e.Attachments))
	for _, a := range e.Attachments {
		attachments = append(attachments, AttachmentMeta{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return EmailSummary{
		ID:             e.ID,
		Sender:         e.Sender,
		Subject:        e.Subject,
		Timestamp:      e.Timestamp,
		Preview:        e.Preview,
		Attachments:    attachments,
		HasAttachments: e.HasAttachments,
	}
}
