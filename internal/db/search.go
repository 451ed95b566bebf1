package db

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MessageSearchResult represents a search result with snippet
type MessageSearchResult struct {
	Message
	Snippet string
}

// SearchOptions narrows a search. Empty fields are ignored.
type SearchOptions struct {
	Query    string
	Sender   string
	Locale   string
	DateFrom string
	DateTo   string
	Limit    int
	Offset   int
}

// SearchMessages performs a full-text search over subjects, senders and
// extracted replies. Quoted history is never indexed, so a match is always
// in something the sender actually wrote.
func (db *DB) SearchMessages(query string, limit int) ([]*MessageSearchResult, error) {
	return db.SearchMessagesWithFilters(SearchOptions{Query: query, Limit: limit})
}

// buildMatchQuery turns free text into an FTS5 prefix query:
// `john doe` -> `"john"* "doe"*`. Each term is quoted so punctuation
// such as @ or - is handed to the tokenizer instead of the query parser.
func buildMatchQuery(query string) string {
	var terms []string
	for _, term := range strings.Fields(query) {
		if !strings.ContainsFunc(term, isWordRune) {
			continue
		}
		term = strings.ReplaceAll(term, `"`, `""`)
		terms = append(terms, `"`+term+`"*`)
	}
	return strings.Join(terms, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// SearchMessagesWithFilters performs a search with additional filters and pagination
func (db *DB) SearchMessagesWithFilters(opts SearchOptions) ([]*MessageSearchResult, error) {
	var conditions []string
	var args []interface{}

	match := buildMatchQuery(opts.Query)
	if match != "" {
		conditions = append(conditions, "messages_fts MATCH ?")
		args = append(args, match)
	}

	if opts.Sender != "" {
		conditions = append(conditions, "(m.sender LIKE ? OR m.sender_name LIKE ?)")
		args = append(args, "%"+opts.Sender+"%", "%"+opts.Sender+"%")
	}

	if opts.Locale != "" {
		conditions = append(conditions, "m.locale = ?")
		args = append(args, opts.Locale)
	}

	if opts.DateFrom != "" {
		conditions = append(conditions, "m.date >= ?")
		args = append(args, opts.DateFrom)
	}
	if opts.DateTo != "" {
		conditions = append(conditions, "m.date <= ?")
		args = append(args, opts.DateTo)
	}

	sqlQuery := "SELECT" + messageColumns
	if match != "" {
		sqlQuery += `, snippet(messages_fts, 3, '<mark>', '</mark>', '...', 32) as snippet
		FROM messages m
		JOIN messages_fts ON m.id = messages_fts.rowid
		`
	} else {
		sqlQuery += `, '' as snippet
		FROM messages m
		`
	}

	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	if match != "" {
		sqlQuery += " ORDER BY rank"
	} else {
		sqlQuery += " ORDER BY m.date DESC, m.id DESC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	sqlQuery += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var results []*MessageSearchResult
	for rows.Next() {
		var snippet string
		m, err := scanMessage(rows, &snippet)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		// The snippet is empty when nothing matched inside the reply column
		if snippet == "" {
			snippet = truncateText(m.Reply, 200)
		}

		results = append(results, &MessageSearchResult{Message: *m, Snippet: snippet})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// truncateText truncates text to maxLen bytes without splitting a rune
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
