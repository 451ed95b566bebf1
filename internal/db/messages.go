package db

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by mutations that target a missing message
var ErrNotFound = errors.New("message not found")

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

// timeFormats lists the layouts SQLite and the driver have been seen to return
var timeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 -0700",
	"2006-01-02 15:04:05 -0700 -0700",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
}

func parseTime(v string) (time.Time, error) {
	var err error
	for _, format := range timeFormats {
		var t time.Time
		t, err = time.Parse(format, v)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse time string %q: %w", v, err)
}

// NewNullTime wraps t, treating the zero time as NULL
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: !t.IsZero()}
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		t, err := parseTime(v)
		if err != nil {
			return err
		}
		nt.Time, nt.Valid = t, true
		return nil
	case []byte:
		return nt.Scan(string(v))
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// Message is an indexed email: header metadata plus the visible reply.
// The full fragment list is stored separately, see GetFragments.
type Message struct {
	ID              int64
	Source          string // relative path, "archive.mbox#3" for mbox members
	MessageID       string
	InReplyTo       string
	Subject         string
	Sender          string
	SenderName      string
	Recipients      string
	Date            NullTime
	Locale          string
	Reply           string
	FragmentCount   int
	AttachmentCount int
	IndexedAt       NullTime
}

// GetDate returns the date as time.Time, or zero time if NULL
func (m *Message) GetDate() time.Time {
	if m.Date.Valid {
		return m.Date.Time
	}
	return time.Time{}
}

// Fragment is one stored fragment of a message body, in reading order
type Fragment struct {
	ID         int64
	MessageRef int64
	Position   int
	Content    string
	Quoted     bool
	Headers    bool
	Signature  bool
	Hidden     bool
}

const messageColumns = `
	m.id, m.source, m.message_id, m.in_reply_to, m.subject, m.sender,
	m.sender_name, m.recipients, m.date, m.locale, m.reply,
	m.fragment_count, m.attachment_count, m.indexed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner, extra ...interface{}) (*Message, error) {
	m := &Message{}
	var messageID, inReplyTo, subject, senderName, recipients, reply sql.NullString
	dest := []interface{}{
		&m.ID, &m.Source, &messageID, &inReplyTo, &subject, &m.Sender,
		&senderName, &recipients, &m.Date, &m.Locale, &reply,
		&m.FragmentCount, &m.AttachmentCount, &m.IndexedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	m.MessageID = messageID.String
	m.InReplyTo = inReplyTo.String
	m.Subject = subject.String
	m.SenderName = senderName.String
	m.Recipients = recipients.String
	m.Reply = reply.String
	return m, nil
}

// InsertMessage stores a message and its fragments in a single transaction.
// FragmentCount is taken from len(fragments).
func (db *DB) InsertMessage(m *Message, fragments []*Fragment) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	m.FragmentCount = len(fragments)
	result, err := tx.Exec(`
		INSERT INTO messages (
			source, message_id, in_reply_to, subject, sender, sender_name,
			recipients, date, locale, reply, fragment_count, attachment_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.Source, m.MessageID, m.InReplyTo, m.Subject, m.Sender, m.SenderName,
		m.Recipients, m.Date, m.Locale, m.Reply, m.FragmentCount, m.AttachmentCount,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message %s: %w", m.Source, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := insertFragments(tx, id, fragments); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	m.ID = id
	return id, nil
}

func insertFragments(tx *sql.Tx, messageRef int64, fragments []*Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO fragments (message_ref, position, content, quoted, headers, signature, hidden)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, f := range fragments {
		f.MessageRef = messageRef
		f.Position = i
		_, err := stmt.Exec(messageRef, i, f.Content, f.Quoted, f.Headers, f.Signature, f.Hidden)
		if err != nil {
			return fmt.Errorf("failed to insert fragment %d: %w", i, err)
		}
	}
	return nil
}

// ReplaceReply overwrites the locale, reply and fragments of an existing message
func (db *DB) ReplaceReply(id int64, locale, reply string, fragments []*Fragment) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE messages SET locale = ?, reply = ?, fragment_count = ?, indexed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, locale, reply, len(fragments), id)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec("DELETE FROM fragments WHERE message_ref = ?", id); err != nil {
		return fmt.Errorf("failed to delete fragments: %w", err)
	}
	if err := insertFragments(tx, id, fragments); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MessageExists checks if a message with the given source already exists
func (db *DB) MessageExists(source string) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM messages WHERE source = ?)", source).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return exists, nil
}

// MessagesExistBatch checks which sources already exist in the database
func (db *DB) MessagesExistBatch(sources []string) (map[string]bool, error) {
	result := make(map[string]bool, len(sources))

	// SQLite caps the number of bound variables per statement
	const chunkSize = 500
	for i := 0; i < len(sources); i += chunkSize {
		end := min(i+chunkSize, len(sources))
		if err := db.checkExistenceChunk(sources[i:end], result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (db *DB) checkExistenceChunk(sources []string, result map[string]bool) error {
	if len(sources) == 0 {
		return nil
	}

	query := "SELECT source FROM messages WHERE source IN (?" +
		strings.Repeat(",?", len(sources)-1) + ")"

	args := make([]interface{}, len(sources))
	for i, s := range sources {
		args[i] = s
		result[s] = false
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to check message existence: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return fmt.Errorf("failed to scan source: %w", err)
		}
		result[source] = true
	}

	return rows.Err()
}

// GetMessageByID retrieves a message by its ID, or nil if there is none
func (db *DB) GetMessageByID(id int64) (*Message, error) {
	row := db.QueryRow("SELECT"+messageColumns+" FROM messages m WHERE m.id = ?", id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// GetFragments returns the stored fragments of a message in reading order
func (db *DB) GetFragments(messageRef int64) ([]*Fragment, error) {
	rows, err := db.Query(`
		SELECT id, message_ref, position, content, quoted, headers, signature, hidden
		FROM fragments WHERE message_ref = ?
		ORDER BY position
	`, messageRef)
	if err != nil {
		return nil, fmt.Errorf("failed to get fragments: %w", err)
	}
	defer rows.Close()

	var fragments []*Fragment
	for rows.Next() {
		f := &Fragment{}
		err := rows.Scan(&f.ID, &f.MessageRef, &f.Position, &f.Content,
			&f.Quoted, &f.Headers, &f.Signature, &f.Hidden)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fragment: %w", err)
		}
		fragments = append(fragments, f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fragments: %w", err)
	}

	return fragments, nil
}

// ListMessages retrieves the most recent messages with pagination
func (db *DB) ListMessages(limit, offset int) ([]*Message, error) {
	rows, err := db.Query(`SELECT`+messageColumns+`
		FROM messages m
		ORDER BY m.date DESC, m.id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// CountMessages returns the total number of messages
func (db *DB) CountMessages() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// DeleteMessage deletes a message; its fragments go with it
func (db *DB) DeleteMessage(id int64) error {
	result, err := db.Exec("DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Stats holds database statistics
type Stats struct {
	TotalMessages      int            `json:"total_messages"`
	TotalFragments     int            `json:"total_fragments"`
	QuotedFragments    int            `json:"quoted_fragments"`
	SignatureFragments int            `json:"signature_fragments"`
	HiddenFragments    int            `json:"hidden_fragments"`
	EmptyReplies       int            `json:"empty_replies"`
	ByLocale           map[string]int `json:"by_locale"`
	LastIndexed        time.Time      `json:"last_indexed"`
}

// GetStats returns current database statistics
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{ByLocale: make(map[string]int)}

	err := db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN reply IS NULL OR reply = '' THEN 1 ELSE 0 END), 0)
		FROM messages
	`).Scan(&stats.TotalMessages, &stats.EmptyReplies)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	err = db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(quoted), 0),
		       COALESCE(SUM(signature), 0),
		       COALESCE(SUM(hidden), 0)
		FROM fragments
	`).Scan(&stats.TotalFragments, &stats.QuotedFragments, &stats.SignatureFragments, &stats.HiddenFragments)
	if err != nil {
		return nil, fmt.Errorf("failed to count fragments: %w", err)
	}

	rows, err := db.Query("SELECT locale, COUNT(*) FROM messages GROUP BY locale")
	if err != nil {
		return nil, fmt.Errorf("failed to count locales: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var locale string
		var count int
		if err := rows.Scan(&locale, &count); err != nil {
			return nil, fmt.Errorf("failed to scan locale count: %w", err)
		}
		stats.ByLocale[locale] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locales: %w", err)
	}

	// MAX() loses the column type, so the driver hands back a string
	var lastIndexed sql.NullString
	if err := db.QueryRow("SELECT MAX(indexed_at) FROM messages").Scan(&lastIndexed); err != nil {
		return nil, fmt.Errorf("failed to get last indexed time: %w", err)
	}
	if lastIndexed.Valid {
		if t, err := parseTime(lastIndexed.String); err == nil {
			stats.LastIndexed = t
		}
	}

	return stats, nil
}

// SenderCount is a sender address and how many indexed messages it sent
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// GetUniqueSenders lists sender addresses starting with prefix, most frequent first
func (db *DB) GetUniqueSenders(prefix string, limit int) ([]SenderCount, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := db.Query(`
		SELECT sender, COUNT(*) AS message_count
		FROM messages
		WHERE sender != '' AND sender LIKE ? ESCAPE '\'
		GROUP BY sender
		ORDER BY message_count DESC, sender ASC
		LIMIT ?
	`, escaped+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique senders: %w", err)
	}
	defer rows.Close()

	senders := make([]SenderCount, 0)
	for rows.Next() {
		var s SenderCount
		if err := rows.Scan(&s.Sender, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan sender: %w", err)
		}
		senders = append(senders, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating senders: %w", err)
	}

	return senders, nil
}
