package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"docmail/models"
	"docmail/utils"
)

// userRecord is the persisted form of a user. The mail password only ever
// reaches disk encrypted with the store's key.
type userRecord struct {
	ID                    string    `json:"id"`
	Email                 string    `json:"email"`
	PasswordHash          string    `json:"password_hash"`
	EncryptedMailPassword string    `json:"encrypted_mail_password"`
	CreatedAt             time.Time `json:"created_at"`
}

// UserStorage manages registered users, keyed by email.
type UserStorage struct {
	db  *bbolt.DB
	key []byte
}

// NewUserStorage creates a user storage over the given database. key is the
// AES key used to protect stored mail passwords.
func NewUserStorage(db *bbolt.DB, key []byte) *UserStorage {
	return &UserStorage{db: db, key: key}
}

// CreateUser registers a new user. The password serves double duty the way
// the mail provider expects it: its bcrypt hash authenticates logins, and an
// encrypted copy is kept for opening mail sessions later. A duplicate email
// is rejected before anything is written.
func (s *UserStorage) CreateUser(email, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, utils.InternalError("failed to hash password", err)
	}

	encrypted, err := encrypt(password, s.key)
	if err != nil {
		return nil, utils.InternalError("failed to encrypt mail password", err)
	}

	record := userRecord{
		ID:                    uuid.New().String(),
		Email:                 email,
		PasswordHash:          string(hash),
		EncryptedMailPassword: encrypted,
		CreatedAt:             time.Now(),
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		if bucket.Get([]byte(email)) != nil {
			return utils.CredentialError("email already registered", nil)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return utils.InternalError("failed to marshal user", err)
		}
		return bucket.Put([]byte(email), data)
	})
	if err != nil {
		return nil, err
	}

	return &models.User{
		ID:        record.ID,
		Email:     record.Email,
		CreatedAt: record.CreatedAt,
	}, nil
}

// GetUserByEmail retrieves a user with the mail password decrypted for use
// in this request only.
func (s *UserStorage) GetUserByEmail(email string) (*models.User, error) {
	record, err := s.loadUser(email)
	if err != nil {
		return nil, err
	}

	mailPassword, err := decrypt(record.EncryptedMailPassword, s.key)
	if err != nil {
		return nil, utils.InternalError("failed to decrypt mail password", err)
	}

	return &models.User{
		ID:           record.ID,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		MailPassword: mailPassword,
		CreatedAt:    record.CreatedAt,
	}, nil
}

// VerifyPassword checks a login password against the stored hash.
func (s *UserStorage) VerifyPassword(email, password string) error {
	record, err := s.loadUser(email)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		return utils.CredentialError("invalid password", err)
	}
	return nil
}

func (s *UserStorage) loadUser(email string) (*userRecord, error) {
	var record userRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(usersBucket).Get([]byte(email))
		if data == nil {
			return utils.NotFoundError("user not found", nil)
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return utils.InternalError("failed to unmarshal user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}
