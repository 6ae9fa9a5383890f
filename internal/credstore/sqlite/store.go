// Package sqlite is a banksdk.CredentialStore that survives restarts. Values
// are sealed with AES-GCM under a key derived from the configured master key.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/banksdk"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/cryptox"

	_ "modernc.org/sqlite"
)

const saltKey = "seal_salt"

type Store struct {
	db     *sql.DB
	sealer *cryptox.Sealer
	dsn    string
}

var _ banksdk.CredentialStore = (*Store)(nil)

// NewStore opens dsn, applies migrations and prepares the sealer. The salt
// is created on first open and kept in the database, so the same master key
// opens the file again later.
func NewStore(ctx context.Context, dsn string, masterKey []byte) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One connection: ":memory:" databases are per connection, and writers
	// never contend for the file lock.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, dsn: dsn}
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate credential store: %w", err)
	}

	salt, err := s.salt(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s.sealer, err = cryptox.NewSealer(masterKey, salt)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) salt(ctx context.Context) ([]byte, error) {
	fresh, err := cryptox.NewSalt()
	if err != nil {
		return nil, err
	}

	var salt []byte
	err = s.withTx(ctx, func(tx execer) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO store_meta (key, value) VALUES (?, ?)`, saltKey, fresh); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT value FROM store_meta WHERE key = ?`, saltKey).Scan(&salt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load store salt: %w", err)
	}
	return salt, nil
}

func (s *Store) Get(ctx context.Context, kind banksdk.CredentialKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown credential kind %q", kind)
	}

	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE kind = ?`, string(kind)).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	plaintext, err := s.sealer.Open(sealed, []byte(kind))
	if err != nil {
		return "", fmt.Errorf("failed to open %s credential: %w", kind, err)
	}
	return string(plaintext), nil
}

func (s *Store) Set(ctx context.Context, kind banksdk.CredentialKind, value string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown credential kind %q", kind)
	}
	return s.withTx(ctx, func(tx execer) error {
		return s.put(ctx, tx, kind, value)
	})
}

func (s *Store) SetPair(ctx context.Context, access, refresh string) error {
	return s.withTx(ctx, func(tx execer) error {
		if err := s.put(ctx, tx, banksdk.KindAccess, access); err != nil {
			return err
		}
		return s.put(ctx, tx, banksdk.KindRefresh, refresh)
	})
}

func (s *Store) Clear(ctx context.Context, kinds ...banksdk.CredentialKind) error {
	if len(kinds) == 0 {
		kinds = banksdk.Kinds()
	}
	return s.withTx(ctx, func(tx execer) error {
		for _, kind := range kinds {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM credentials WHERE kind = ?`, string(kind)); err != nil {
				return err
			}
		}
		return nil
	})
}

// put writes one slot inside tx. An empty value deletes it.
func (s *Store) put(ctx context.Context, tx execer, kind banksdk.CredentialKind, value string) error {
	if value == "" {
		_, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE kind = ?`, string(kind))
		return err
	}

	sealed, err := s.sealer.Seal([]byte(value), []byte(kind))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (kind, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (kind) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(kind), sealed, time.Now().UTC(),
	)
	return err
}
