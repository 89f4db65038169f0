// handlers/api/email.go
package api

import (
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"docmail/mailbox"
	"docmail/models"
	"docmail/storage"
	"docmail/utils"
)

// EmailHandler serves the inbox listing and cached attachment downloads.
type EmailHandler struct {
	fetcher  *mailbox.Fetcher
	messages *storage.MessageStorage
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(fetcher *mailbox.Fetcher, messages *storage.MessageStorage) *EmailHandler {
	return &EmailHandler{
		fetcher:  fetcher,
		messages: messages,
	}
}

// HandleInbox retrieves the recent window of the user's mailbox, refreshes
// the cache and returns the redacted listing in recency-window order.
// Attachment bytes never appear in the response; the download endpoint
// serves them from the cache.
func (h *EmailHandler) HandleInbox(c *fiber.Ctx) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}

	emails, report, err := h.fetcher.FetchRecent(user.Email, user.MailPassword)
	if err != nil {
		return err
	}

	// Cache failures keep the listing alive; the next retrieval re-fills.
	for _, email := range emails {
		if err := h.messages.Upsert(user.Email, email); err != nil {
			utils.Log.WithField("user", user.Email).Warn("failed to cache message %s: %v", email.ID, err)
		}
	}

	summaries := make([]models.EmailSummary, 0, len(emails))
	for _, email := range emails {
		summaries = append(summaries, email.Summary())
	}

	return c.JSON(fiber.Map{
		"emails":  summaries,
		"skipped": len(report.Skipped),
	})
}

// HandleDownloadAttachment streams a cached attachment. It never re-contacts
// the mail store: a message or filename missing from the cache is a 404.
func (h *EmailHandler) HandleDownloadAttachment(c *fiber.Ctx) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}

	messageID := c.Params("id")
	filename := c.Params("filename")
	if decoded, err := url.PathUnescape(filename); err == nil {
		filename = decoded
	}
	if messageID == "" || filename == "" {
		return utils.NotFoundError("attachment not found", nil)
	}

	attachment, err := h.messages.GetAttachment(user.Email, messageID, filename)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, attachment.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", attachment.Filename))
	return c.Send(attachment.Content)
}

// HandleProfile returns the account's address and creation time.
func (h *EmailHandler) HandleProfile(c *fiber.Ctx) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}
