package storage

import (
	"context"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"docmail/models"
	"docmail/utils"
)

// messageRecord is the persisted form of a cached message. Attachment bytes
// ride along so downloads never re-contact the mail store; encoding/json
// base64-encodes them for storage.
type messageRecord struct {
	ID             string             `json:"id"`
	UserEmail      string             `json:"user_email"`
	Sender         string             `json:"sender"`
	Subject        string             `json:"subject"`
	Timestamp      time.Time          `json:"timestamp"`
	Preview        string             `json:"preview,omitempty"`
	Attachments    []attachmentRecord `json:"attachments"`
	HasAttachments bool               `json:"has_attachments"`
	CachedAt       time.Time          `json:"cached_at"`
}

type attachmentRecord struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Content     []byte `json:"content"`
}

func newMessageRecord(userEmail string, email models.Email, now time.Time) messageRecord {
	attachments := make([]attachmentRecord, 0, len(email.Attachments))
	for _, a := range email.Attachments {
		attachments = append(attachments, attachmentRecord{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			Content:     a.Content,
		})
	}
	return messageRecord{
		ID:             email.ID,
		UserEmail:      userEmail,
		Sender:         email.Sender,
		Subject:        email.Subject,
		Timestamp:      email.Timestamp,
		Preview:        email.Preview,
		Attachments:    attachments,
		HasAttachments: email.HasAttachments,
		CachedAt:       now,
	}
}

func (r messageRecord) email() models.Email {
	attachments := make([]models.Attachment, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		attachments = append(attachments, models.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			Content:     a.Content,
		})
	}
	return models.Email{
		ID:             r.ID,
		Sender:         r.Sender,
		Subject:        r.Subject,
		Timestamp:      r.Timestamp,
		Preview:        r.Preview,
		Attachments:    attachments,
		HasAttachments: r.HasAttachments,
	}
}

// MessageStorage caches decoded messages, keyed by (owning user, message
// id), so attachments can be served without re-contacting the mail store.
// Records older than the TTL are evicted lazily on read and by the sweeper;
// a TTL of zero disables expiry.
type MessageStorage struct {
	db  *bbolt.DB
	ttl time.Duration
}

// NewMessageStorage creates a message cache over the given database.
func NewMessageStorage(db *bbolt.DB, ttl time.Duration) *MessageStorage {
	return &MessageStorage{db: db, ttl: ttl}
}

func messageKey(userEmail, id string) []byte {
	return []byte(userEmail + "/" + id)
}

// Upsert writes the record for (message id, user), replacing any previous
// version in full. Repeating the same upsert yields the same stored state.
func (s *MessageStorage) Upsert(userEmail string, email models.Email) error {
	record := newMessageRecord(userEmail, email, time.Now())
	data, err := json.Marshal(record)
	if err != nil {
		return utils.InternalError("failed to marshal message", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(messagesBucket).Put(messageKey(userEmail, email.ID), data)
	})
	if err != nil {
		return utils.InternalError("failed to cache message", err)
	}
	return nil
}

// Get returns the cached message for (id, user). A record past its TTL is
// evicted and reported as not found.
func (s *MessageStorage) Get(userEmail, id string) (models.Email, error) {
	var record messageRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(messagesBucket).Get(messageKey(userEmail, id))
		if data == nil {
			return utils.NotFoundError("message not found", nil)
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return utils.InternalError("failed to unmarshal message", err)
		}
		return nil
	})
	if err != nil {
		return models.Email{}, err
	}

	if s.expired(record.CachedAt, time.Now()) {
		s.evict(userEmail, id)
		return models.Email{}, utils.NotFoundError("message not found", nil)
	}

	return record.email(), nil
}

// GetAttachment returns the named attachment of a cached message. The first
// attachment matching the filename wins.
func (s *MessageStorage) GetAttachment(userEmail, id, filename string) (models.Attachment, error) {
	email, err := s.Get(userEmail, id)
	if err != nil {
		return models.Attachment{}, err
	}
	for _, attachment := range email.Attachments {
		if attachment.Filename == filename {
			return attachment, nil
		}
	}
	return models.Attachment{}, utils.NotFoundError("attachment not found", nil)
}

// Sweep deletes every expired record and returns how many were removed.
// Records that no longer unmarshal are removed too.
func (s *MessageStorage) Sweep() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	now := time.Now()
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(messagesBucket)

		var stale [][]byte
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var record messageRecord
			if err := json.Unmarshal(v, &record); err != nil {
				stale = append(stale, append([]byte(nil), k...))
				continue
			}
			if s.expired(record.CachedAt, now) {
				stale = append(stale, append([]byte(nil), k...))
			}
		}

		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, utils.InternalError("cache sweep failed", err)
	}
	return removed, nil
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (s *MessageStorage) StartSweeper(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Sweep()
				if err != nil {
					utils.Log.Error("cache sweep: %v", err)
				} else if removed > 0 {
					utils.Log.Debug("cache sweep removed %d records", removed)
				}
			}
		}
	}()
}

func (s *MessageStorage) expired(cachedAt, now time.Time) bool {
	return s.ttl > 0 && now.Sub(cachedAt) > s.ttl
}

func (s *MessageStorage) evict(userEmail, id string) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(messagesBucket).Delete(messageKey(userEmail, id))
	})
	if err != nil {
		utils.Log.Warn("failed to evict expired message %s/%s: %v", userEmail, id, err)
	}
}
