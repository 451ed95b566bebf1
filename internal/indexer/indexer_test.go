package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/eml-reply/internal/db"
	"github.com/felo/eml-reply/internal/parser"
	"github.com/felo/eml-reply/internal/reply"
)

const replyEML = `From: Alice <alice@example.com>
To: bob@example.com
Subject: Re: Lunch
Message-ID: <a1@example.com>
In-Reply-To: <b0@example.com>
Date: Tue, 02 Jan 2024 10:00:00 +0000
Content-Type: text/plain; charset=utf-8

Friday works.

On Mon, Jan 1, 2024 at 9:00 AM Bob <bob@example.com> wrote:
> Lunch this week?
`

const signedEML = `From: Bob <bob@example.com>
To: alice@example.com
Subject: Report
Message-ID: <b1@example.com>
Date: Wed, 03 Jan 2024 10:00:00 +0000
Content-Type: text/plain; charset=utf-8

Report attached.

--
Bob
`

const brokenEML = "this line is not a header\n\nbody\n"

const archiveMbox = `From carol@example.com Thu Jan  4 10:00:00 2024
From: Carol <carol@example.com>
Subject: One
Message-ID: <c1@example.com>
Date: Thu, 04 Jan 2024 10:00:00 +0000

First member.

From dave@example.com Thu Jan  4 11:00:00 2024
From: Dave <dave@example.com>
Subject: Two
Message-ID: <d1@example.com>
Date: Thu, 04 Jan 2024 11:00:00 +0000

Second member.

> quoted
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func setupMailDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "inbox/a.eml", replyEML)
	writeFile(t, root, "inbox/b.eml", signedEML)
	writeFile(t, root, "broken.eml", brokenEML)
	writeFile(t, root, "archive.mbox", archiveMbox)
	writeFile(t, root, "notes.txt", "ignored")
	return root
}

func newTestIndexer(t *testing.T, root string) (*Indexer, *db.DB, *test.Hook) {
	t.Helper()
	database := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, database) })

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewIndexer(database, root, nil, logger).WithConcurrency(3), database, hook
}

// TestIndexAll tests a full first run over mixed sources
func TestIndexAll(t *testing.T) {
	root := setupMailDir(t)
	idx, database, hook := newTestIndexer(t, root)

	var calls []int
	result, err := idx.IndexWithProgress(context.Background(), func(current, total int, path string) {
		assert.Equal(t, 4, total)
		calls = append(calls, current)
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Files)
	assert.Equal(t, 5, result.TotalFound)
	assert.Equal(t, 4, result.NewIndexed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"broken.eml"}, result.FailedSources)
	assert.Equal(t, []int{1, 2, 3, 4}, calls)

	count, err := database.CountMessages()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	last, err := database.GetSetting(SettingLastIndexed)
	require.NoError(t, err)
	assert.NotEmpty(t, last)

	var sawFailure bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && entry.Data["path"] == "broken.eml" {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure, "Parse failure should be logged with its path")
}

// TestIndexAll_StoresReplies tests what ends up in the database
func TestIndexAll_StoresReplies(t *testing.T) {
	root := setupMailDir(t)
	idx, database, _ := newTestIndexer(t, root)

	_, err := idx.IndexAll(context.Background())
	require.NoError(t, err)

	results, err := database.SearchMessages("Friday", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	m := results[0].Message
	assert.Equal(t, "inbox/a.eml", m.Source)
	assert.Equal(t, "Friday works.", m.Reply)
	assert.Equal(t, "<b0@example.com>", m.InReplyTo)
	assert.Equal(t, "en", m.Locale)
	assert.Equal(t, 2, m.FragmentCount)

	fragments, err := database.GetFragments(m.ID)
	require.NoError(t, err)
	require.Len(t, fragments, 2)
	assert.True(t, fragments[1].Quoted)
	assert.True(t, fragments[1].Hidden)

	// Quoted history is not searchable
	results, err = database.SearchMessages("Lunch this week", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = database.SearchMessages("Report", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Report attached.", results[0].Reply)

	exists, err := database.MessageExists("archive.mbox#1")
	require.NoError(t, err)
	assert.True(t, exists)

	results, err = database.SearchMessages("Second", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Second member.", results[0].Reply)
}

// TestIndexAll_Incremental tests that a second run only skips
func TestIndexAll_Incremental(t *testing.T) {
	root := setupMailDir(t)
	idx, database, _ := newTestIndexer(t, root)

	_, err := idx.IndexAll(context.Background())
	require.NoError(t, err)

	result, err := idx.IndexAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.TotalFound)
	assert.Equal(t, 0, result.NewIndexed)
	assert.Equal(t, 4, result.Skipped)
	assert.Equal(t, 1, result.Failed)

	writeFile(t, root, "inbox/c.eml", replyEML)
	result, err = idx.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewIndexed)

	count, err := database.CountMessages()
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

// TestIndexAll_Cancelled tests that a cancelled context stops the run
func TestIndexAll_Cancelled(t *testing.T) {
	root := setupMailDir(t)
	idx, database, _ := newTestIndexer(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := idx.IndexAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.NewIndexed)

	last, err := database.GetSetting(SettingLastIndexed)
	require.NoError(t, err)
	assert.Empty(t, last)
}

// TestIndexAll_MissingRoot tests error handling for a missing directory
func TestIndexAll_MissingRoot(t *testing.T) {
	idx, _, _ := newTestIndexer(t, filepath.Join(t.TempDir(), "missing"))

	_, err := idx.IndexAll(context.Background())
	assert.Error(t, err)
}

// TestIndexAll_Locale tests that the configured reply parser is used
func TestIndexAll_Locale(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "de.eml", `From: Jan <jan@example.de>
Subject: AW: Termin
Message-ID: <de1@example.de>
Content-Type: text/plain; charset=utf-8

Passt mir gut.

Am 01.01.2024 um 09:00 schrieb Eva <eva@example.de>:
> Geht Freitag?
`)

	rp, err := reply.NewParser(reply.WithLocale("de"))
	require.NoError(t, err)

	database := db.SetupTestDB(t)
	defer db.CleanupTestDB(t, database)
	logger, _ := test.NewNullLogger()

	_, err = NewIndexer(database, root, rp, logger).IndexAll(context.Background())
	require.NoError(t, err)

	messages, err := database.ListMessages(10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "de", messages[0].Locale)
	assert.Equal(t, "Passt mir gut.", messages[0].Reply)
}

// TestRecord tests conversion of parsed emails into rows
func TestRecord(t *testing.T) {
	parsed := &parser.ParsedEmail{
		MessageID:   "<x@y>",
		Subject:     "Hi",
		Sender:      "a@b.c",
		Recipients:  []string{"one@x", "two@x"},
		Locale:      reply.French,
		Reply:       "Salut",
		Attachments: []parser.ParsedAttachment{{Filename: "a.pdf"}},
		Fragments: []parser.Fragment{
			{Position: 0, Content: "Salut"},
			{Position: 1, Content: "> avant", Quoted: true, Hidden: true},
		},
	}

	m, fragments := Record("x.eml", parsed)

	assert.Equal(t, "x.eml", m.Source)
	assert.Equal(t, "one@x, two@x", m.Recipients)
	assert.Equal(t, "fr", m.Locale)
	assert.Equal(t, 1, m.AttachmentCount)
	assert.False(t, m.Date.Valid, "Zero date should be stored as NULL")
	require.Len(t, fragments, 2)
	assert.True(t, fragments[1].Quoted)
	assert.Equal(t, 1, fragments[1].Position)
}

// TestRecord_Threading tests the Cc and References fallbacks
func TestRecord_Threading(t *testing.T) {
	parsed := &parser.ParsedEmail{
		Recipients: []string{"to@x"},
		CC:         []string{"cc1@x", "cc2@x"},
		References: []string{"<root@x>", "<parent@x>"},
	}

	m, _ := Record("x.eml", parsed)
	assert.Equal(t, "to@x, cc1@x, cc2@x", m.Recipients)
	assert.Equal(t, "<parent@x>", m.InReplyTo)

	parsed.InReplyTo = "<direct@x>"
	m, _ = Record("x.eml", parsed)
	assert.Equal(t, "<direct@x>", m.InReplyTo)
}
