package sqlitestore

import (
	"context"
	"database/sql"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Storage владеет локальной базой агента. Предполагается ровно один
// пишущий процесс; внутри процесса сериализацию даёт sqlite + один *sql.DB.
type Storage struct {
	db *sql.DB
}

func New(path string) (*Storage, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_loc":          {"UTC"},
		"_busy_timeout": {"5000"},
		"_journal_mode": {"WAL"},
		"_foreign_keys": {"on"},
	}.Encode()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// Один writer: пул соединений не нужен и только мешает WAL.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}

	s := &Storage{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}
