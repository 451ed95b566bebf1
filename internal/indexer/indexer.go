package indexer

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/felo/eml-reply/internal/db"
	"github.com/felo/eml-reply/internal/parser"
	"github.com/felo/eml-reply/internal/reply"
	"github.com/felo/eml-reply/internal/scanner"
)

// SettingLastIndexed records when the last indexing run finished
const SettingLastIndexed = "last_indexed"

// Indexer walks the mail directory and stores every message it has not seen
type Indexer struct {
	db          *db.DB
	scanner     *scanner.Scanner
	parser      *reply.Parser
	logger      *logrus.Logger
	concurrency int
}

// NewIndexer creates a new indexer. The reply parser is shared by all workers.
func NewIndexer(database *db.DB, emailsPath string, rp *reply.Parser, logger *logrus.Logger) *Indexer {
	return &Indexer{
		db:          database,
		scanner:     scanner.NewScanner(emailsPath),
		parser:      rp,
		logger:      logger,
		concurrency: runtime.NumCPU() * 2, // mostly waiting on disk
	}
}

// WithConcurrency sets the number of concurrent workers
func (idx *Indexer) WithConcurrency(workers int) *Indexer {
	if workers < 1 {
		workers = 1
	}
	idx.concurrency = workers
	return idx
}

// IndexResult contains statistics about an indexing operation.
// Counts are per message; an mbox archive contributes one per member.
type IndexResult struct {
	Files         int      `json:"files"`
	TotalFound    int      `json:"total_found"`
	NewIndexed    int      `json:"new_indexed"`
	Skipped       int      `json:"skipped"`
	Failed        int      `json:"failed"`
	FailedSources []string `json:"failed_sources"`
}

func (r *IndexResult) add(fr fileResult) {
	r.TotalFound += fr.indexed + fr.skipped + len(fr.failed)
	r.NewIndexed += fr.indexed
	r.Skipped += fr.skipped
	r.Failed += len(fr.failed)
	r.FailedSources = append(r.FailedSources, fr.failed...)
}

// ProgressFunc is called once per processed file
type ProgressFunc func(current, total int, path string)

// IndexAll scans and indexes all sources using concurrent workers
func (idx *Indexer) IndexAll(ctx context.Context) (*IndexResult, error) {
	return idx.IndexWithProgress(ctx, nil)
}

// IndexWithProgress indexes all sources and reports progress via a callback.
// Cancelling ctx stops handing out files; files already taken are finished.
func (idx *Indexer) IndexWithProgress(ctx context.Context, progress ProgressFunc) (*IndexResult, error) {
	files, err := idx.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	result := &IndexResult{
		Files:         len(files),
		FailedSources: make([]string, 0),
	}

	// Single .eml files are checked up front in one pass; archives are
	// checked member by member since their sources are unknown until read.
	pending, known, err := idx.filterKnown(files)
	if err != nil {
		return nil, err
	}
	result.TotalFound += known
	result.Skipped += known

	idx.logger.WithFields(logrus.Fields{
		"files":   len(files),
		"pending": len(pending),
		"workers": idx.concurrency,
	}).Info("Starting indexing")

	fileChan := make(chan string, len(pending))
	resultChan := make(chan fileResult, len(pending))

	var wg sync.WaitGroup
	for i := 0; i < idx.concurrency; i++ {
		wg.Add(1)
		go idx.indexWorker(ctx, &wg, fileChan, resultChan)
	}

	for _, file := range pending {
		fileChan <- file
	}
	close(fileChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	processed := known
	for res := range resultChan {
		processed++
		if progress != nil {
			progress(processed, result.Files, res.path)
		}
		result.add(res)
	}

	if err := ctx.Err(); err != nil {
		idx.logger.WithError(err).Warn("Indexing interrupted")
		return result, err
	}

	if err := idx.db.SetSetting(SettingLastIndexed, time.Now().UTC().Format(time.RFC3339)); err != nil {
		idx.logger.WithError(err).Warn("Failed to record indexing time")
	}

	idx.logger.WithFields(logrus.Fields{
		"new":     result.NewIndexed,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}).Info("Indexing complete")

	return result, nil
}

// filterKnown drops .eml files that are already indexed
func (idx *Indexer) filterKnown(files []string) ([]string, int, error) {
	var eml []string
	for _, f := range files {
		if !scanner.IsMbox(f) {
			eml = append(eml, f)
		}
	}

	exists, err := idx.db.MessagesExistBatch(eml)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to check indexed files: %w", err)
	}

	pending := make([]string, 0, len(files))
	known := 0
	for _, f := range files {
		if exists[f] {
			known++
			continue
		}
		pending = append(pending, f)
	}
	return pending, known, nil
}

type fileResult struct {
	path    string
	indexed int
	skipped int
	failed  []string
}

func (idx *Indexer) indexWorker(ctx context.Context, wg *sync.WaitGroup, fileChan <-chan string, resultChan chan<- fileResult) {
	defer wg.Done()

	for relPath := range fileChan {
		if ctx.Err() != nil {
			// Drain without work so the sender never blocks
			continue
		}
		resultChan <- idx.processFile(relPath)
	}
}

// processFile indexes one .eml file or every member of one mbox archive
func (idx *Indexer) processFile(relPath string) fileResult {
	res := fileResult{path: relPath}
	log := idx.logger.WithField("path", relPath)

	absPath, err := idx.scanner.Resolve(relPath)
	if err != nil {
		log.WithError(err).Error("Refusing to index file")
		res.failed = append(res.failed, relPath)
		return res
	}

	if !scanner.IsMbox(relPath) {
		parsed, err := parser.ParseEMLFile(absPath, idx.parser)
		if err != nil {
			log.WithError(err).Error("Failed to parse email")
			res.failed = append(res.failed, relPath)
			return res
		}
		idx.store(relPath, parsed, &res)
		return res
	}

	err = parser.WalkMboxFile(absPath, idx.parser, func(i int, parsed *parser.ParsedEmail, err error) error {
		source := scanner.MemberSource(relPath, i)
		if err != nil {
			log.WithError(err).WithField("member", i).Error("Failed to parse mbox member")
			res.failed = append(res.failed, source)
			return nil
		}

		exists, err := idx.db.MessageExists(source)
		if err != nil {
			log.WithError(err).WithField("member", i).Error("Failed to check message existence")
			res.failed = append(res.failed, source)
			return nil
		}
		if exists {
			res.skipped++
			return nil
		}

		idx.store(source, parsed, &res)
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to read mbox archive")
		res.failed = append(res.failed, relPath)
	}

	return res
}

func (idx *Indexer) store(source string, parsed *parser.ParsedEmail, res *fileResult) {
	m, fragments := Record(source, parsed)
	if _, err := idx.db.InsertMessage(m, fragments); err != nil {
		idx.logger.WithError(err).WithField("source", source).Error("Failed to store message")
		res.failed = append(res.failed, source)
		return
	}

	idx.logger.WithFields(logrus.Fields{
		"source":    source,
		"fragments": len(fragments),
	}).Debug("Indexed message")
	res.indexed++
}

// Record converts a parsed email into its database rows
// Recipients holds To followed by Cc. Without In-Reply-To the parent is the
// last References entry.
func Record(source string, parsed *parser.ParsedEmail) (*db.Message, []*db.Fragment) {
	inReplyTo := parsed.InReplyTo
	if inReplyTo == "" && len(parsed.References) > 0 {
		inReplyTo = parsed.References[len(parsed.References)-1]
	}

	recipients := make([]string, 0, len(parsed.Recipients)+len(parsed.CC))
	recipients = append(recipients, parsed.Recipients...)
	recipients = append(recipients, parsed.CC...)

	m := &db.Message{
		Source:          source,
		MessageID:       parsed.MessageID,
		InReplyTo:       inReplyTo,
		Subject:         parsed.Subject,
		Sender:          parsed.Sender,
		SenderName:      parsed.SenderName,
		Recipients:      strings.Join(recipients, ", "),
		Date:            db.NewNullTime(parsed.Date),
		Locale:          string(parsed.Locale),
		Reply:           parsed.Reply,
		AttachmentCount: len(parsed.Attachments),
	}

	return m, DBFragments(parsed.Fragments)
}

// DBFragments converts parser fragments to storage rows
func DBFragments(in []parser.Fragment) []*db.Fragment {
	fragments := make([]*db.Fragment, len(in))
	for i, f := range in {
		fragments[i] = &db.Fragment{
			Position:  f.Position,
			Content:   f.Content,
			Quoted:    f.Quoted,
			Headers:   f.Headers,
			Signature: f.Signature,
			Hidden:    f.Hidden,
		}
	}
	return fragments
}
