package models

import "time"

// User is a registered account. MailPassword is the mail-provider password
// replayed to open IMAP sessions on the user's behalf; it lives encrypted in
// storage and is only decrypted in memory for the duration of a session.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose in JSON
	MailPassword string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
