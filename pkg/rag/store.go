package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"
)

const corpusSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	content   TEXT NOT NULL,
	embedding BLOB NOT NULL,
	source    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
`

// Document is one retrieval unit: a single textbook page with its embedding
// and provenance. Immutable once stored.
type Document struct {
	ID        int64
	Content   string
	Embedding []float32
	Source    Source
}

// Store is the SQLite-backed corpus. Ingestion appends documents; search
// reads them all back for the linear scan.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent ingestion.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(corpusSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create corpus schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append stores one document and returns its assigned id.
func (s *Store) Append(ctx context.Context, content string, embedding []float32, source Source) (int64, error) {
	if len(embedding) == 0 {
		return 0, fmt.Errorf("document embedding must not be empty")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (content, embedding, source) VALUES (?, ?, ?)`,
		content, packVector(embedding), source.String())
	if err != nil {
		return 0, fmt.Errorf("failed to append document: %w", err)
	}
	return res.LastInsertId()
}

// ForEach streams every document to fn in ascending id order. fn returning
// an error stops the scan.
func (s *Store) ForEach(ctx context.Context, fn func(doc Document) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, embedding, source FROM documents ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("failed to scan corpus: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			doc  Document
			blob []byte
			raw  string
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &blob, &raw); err != nil {
			return err
		}
		doc.Embedding = unpackVector(blob)
		doc.Source, err = ParseSource(raw)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of documents in the corpus.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// packVector encodes a float32 slice as little-endian bytes, the corpus
// BLOB format.
func packVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func unpackVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
