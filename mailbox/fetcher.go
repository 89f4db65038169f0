package mailbox

import (
	"strconv"

	"docmail/models"
	"docmail/utils"
)

// DefaultWindow is how many of the most recently listed messages a retrieval
// run covers.
const DefaultWindow = 20

// Session is the slice of the IMAP client the fetcher drives.
type Session interface {
	ListMessageIDs(folder string) ([]uint32, error)
	FetchRaw(id uint32) ([]byte, error)
	Close() error
}

// DialFunc opens an authenticated session for the given mailbox credentials.
type DialFunc func(address, password string) (Session, error)

// Skipped records a message left out of a batch because it could not be
// fetched or decoded.
type Skipped struct {
	ID    string
	Cause error
}

// FetchReport describes what a retrieval run produced.
type FetchReport struct {
	Listed  int
	Fetched int
	Skipped []Skipped
}

// Fetcher retrieves the recent window of a user's inbox.
type Fetcher struct {
	dial   DialFunc
	folder string
	window int
}

// NewFetcher creates a fetcher over the given dialer. Zero folder and window
// fall back to the defaults.
func NewFetcher(dial DialFunc, folder string, window int) *Fetcher {
	if folder == "" {
		folder = DefaultFolder
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Fetcher{dial: dial, folder: folder, window: window}
}

// FetchRecent opens a session, lists all message identifiers and decodes the
// last window of them in listed order. The session is always closed, whatever
// happens after it was opened. A message that cannot be fetched or decoded is
// skipped and recorded in the report rather than aborting the batch; failures
// to open the session or list the folder abort the whole run.
func (f *Fetcher) FetchRecent(address, password string) ([]models.Email, *FetchReport, error) {
	session, err := f.dial(address, password)
	if err != nil {
		return nil, nil, err
	}
	defer session.Close()

	ids, err := session.ListMessageIDs(f.folder)
	if err != nil {
		return nil, nil, err
	}

	report := &FetchReport{Listed: len(ids)}
	if len(ids) > f.window {
		ids = ids[len(ids)-f.window:]
	}

	log := utils.Log.WithField("user", address)
	emails := make([]models.Email, 0, len(ids))
	for _, id := range ids {
		raw, err := session.FetchRaw(id)
		if err != nil {
			log.Warn("skipping message %d: %v", id, err)
			report.Skipped = append(report.Skipped, Skipped{ID: formatID(id), Cause: err})
			continue
		}

		email, err := Decode(raw)
		if err != nil {
			log.Warn("skipping undecodable message %d: %v", id, err)
			report.Skipped = append(report.Skipped, Skipped{ID: formatID(id), Cause: err})
			continue
		}

		email.ID = formatID(id)
		emails = append(emails, email)
		report.Fetched++
	}

	return emails, report, nil
}

func formatID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
