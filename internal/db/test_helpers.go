package db

import (
	"fmt"
	"testing"
	"time"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestMessage creates a test message with default values
func CreateTestMessage(subject, sender, reply string) *Message {
	return &Message{
		Source:     fmt.Sprintf("test/%s.eml", subject),
		MessageID:  fmt.Sprintf("<%s@test.com>", subject),
		Subject:    subject,
		Sender:     sender,
		SenderName: "Test Sender",
		Recipients: "recipient@test.com",
		Date:       NewNullTime(time.Now()),
		Locale:     "en",
		Reply:      reply,
	}
}

// CreateTestMessageWithDate creates a test message with a specific date
func CreateTestMessageWithDate(subject, sender, reply string, date time.Time) *Message {
	m := CreateTestMessage(subject, sender, reply)
	m.Date = NewNullTime(date)
	return m
}

// SampleFragments returns a reply, quote and signature triple
func SampleFragments(reply string) []*Fragment {
	return []*Fragment{
		{Content: reply},
		{Content: "> earlier message", Quoted: true, Hidden: true},
		{Content: "-- \nSender", Signature: true, Hidden: true},
	}
}

// InsertTestMessages inserts multiple test messages with default fragments
func InsertTestMessages(t *testing.T, db *DB, messages []*Message) []*Message {
	t.Helper()

	for i, m := range messages {
		if _, err := db.InsertMessage(m, SampleFragments(m.Reply)); err != nil {
			t.Fatalf("Failed to insert test message %d: %v", i, err)
		}
	}

	return messages
}
