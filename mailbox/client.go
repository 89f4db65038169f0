// mailbox/client.go
package mailbox

import (
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"docmail/utils"
)

// DefaultFolder is the folder all retrieval operates on.
const DefaultFolder = "INBOX"

// Client wraps an authenticated IMAP session.
type Client struct {
	conn *client.Client
}

// Dial establishes an encrypted session to the mail server and authenticates
// with the given address and password.
func Dial(server string, port int, address, password string) (*Client, error) {
	conn, err := client.DialTLS(fmt.Sprintf("%s:%d", server, port), nil)
	if err != nil {
		utils.Log.Error("DialTLS %s:%d connection err: %v", server, port, err)
		return nil, utils.ConnectionError("failed to connect to mail server", err)
	}

	if err := conn.Login(address, password); err != nil {
		conn.Logout()
		utils.Log.Error("IMAP login for %s failed: %v", address, err)
		return nil, utils.ConnectionError("mail server rejected login", err)
	}

	return &Client{conn: conn}, nil
}

// Probe verifies the session can select the given folder. Registration uses
// it to check mailbox credentials before anything is persisted.
func (c *Client) Probe(folder string) error {
	if folder == "" {
		folder = DefaultFolder
	}
	if _, err := c.conn.Select(folder, true); err != nil {
		return utils.ConnectionError(fmt.Sprintf("failed to select folder %s", folder), err)
	}
	return nil
}

// ListMessageIDs selects the folder and returns every message identifier in
// the server's natural order.
func (c *Client) ListMessageIDs(folder string) ([]uint32, error) {
	if folder == "" {
		folder = DefaultFolder
	}
	if _, err := c.conn.Select(folder, true); err != nil {
		return nil, utils.ConnectionError(fmt.Sprintf("failed to select folder %s", folder), err)
	}

	ids, err := c.conn.Search(imap.NewSearchCriteria())
	if err != nil {
		return nil, utils.ConnectionError("mailbox search failed", err)
	}
	return ids, nil
}

// FetchRaw returns the complete raw bytes of the message with the given
// identifier. The folder selected by ListMessageIDs stays selected on the
// connection.
func (c *Client) FetchRaw(id uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(id)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.conn.Fetch(seqSet, items, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		body, err := io.ReadAll(r)
		if err != nil {
			readErr = err
			continue
		}
		raw = body
	}

	if err := <-done; err != nil {
		return nil, utils.ConnectionError(fmt.Sprintf("fetch of message %d failed", id), err)
	}
	if readErr != nil {
		return nil, utils.ConnectionError(fmt.Sprintf("failed to read message %d", id), readErr)
	}
	if raw == nil {
		return nil, utils.ConnectionError(fmt.Sprintf("message %d not found", id), nil)
	}
	return raw, nil
}

// Close logs out of the mail server. Callers treat errors here as
// best-effort since the response has already been computed.
func (c *Client) Close() error {
	return c.conn.Logout()
}
