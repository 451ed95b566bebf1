package db

// Messages hold metadata plus the extracted reply; the labeled fragments of
// each body live in their own table. Only the reply is indexed for search.
const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT UNIQUE NOT NULL,    -- relative file path, "#n" suffix for mbox members
    message_id TEXT,
    in_reply_to TEXT,
    subject TEXT,
    sender TEXT NOT NULL DEFAULT '',
    sender_name TEXT,
    recipients TEXT,
    date DATETIME,
    locale TEXT NOT NULL,
    reply TEXT,
    fragment_count INTEGER DEFAULT 0,
    attachment_count INTEGER DEFAULT 0,
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS fragments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_ref INTEGER NOT NULL,
    position INTEGER NOT NULL,
    content TEXT NOT NULL,
    quoted BOOLEAN DEFAULT 0,
    headers BOOLEAN DEFAULT 0,
    signature BOOLEAN DEFAULT 0,
    hidden BOOLEAN DEFAULT 0,
    UNIQUE(message_ref, position),
    FOREIGN KEY(message_ref) REFERENCES messages(id) ON DELETE CASCADE
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    subject,
    sender,
    sender_name,
    reply,
    content='messages',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, subject, sender, sender_name, reply)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.reply);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, sender, sender_name, reply)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.reply);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, sender, sender_name, reply)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.reply);
    INSERT INTO messages_fts(rowid, subject, sender, sender_name, reply)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.reply);
END;

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date DESC);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages(message_id);
CREATE INDEX IF NOT EXISTS idx_fragments_message_ref ON fragments(message_ref);
`
