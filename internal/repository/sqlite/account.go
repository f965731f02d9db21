package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/model"
	"github.com/studentfolio/studentfolio/internal/repository"
)

var _ repository.AccountRepository = (*DB)(nil)

// Create inserts a new account, generating its ID and timestamps. A taken
// username yields apperror.ErrUserCreate.
func (db *DB) Create(ctx context.Context, account *model.Account) error {
	now := time.Now()
	account.ID = xid.New().String()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, username, password_hash, catalog_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Username,
		account.PasswordHash,
		account.CatalogID,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.UserCreate(fmt.Sprintf("username %s is taken", account.Username))
		}
		return fmt.Errorf("sqlite: inserting account %s: %w", account.Username, err)
	}
	return nil
}

// GetByID retrieves an account by its internal ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return db.getAccount(ctx, `WHERE id = ?`, id)
}

// GetByUsername retrieves an account by its login name.
func (db *DB) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	return db.getAccount(ctx, `WHERE username = ?`, username)
}

func (db *DB) getAccount(ctx context.Context, where string, arg any) (*model.Account, error) {
	var a model.Account

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, catalog_id, created_at, updated_at
		 FROM accounts `+where, arg,
	).Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&a.CatalogID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting account %v: %w", arg, err)
	}

	return &a, nil
}

// Delete removes an account row. The linked catalog user is soft-deleted
// separately by the service layer.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting account %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: deleting account %s: %w", id, err)
	}
	if affected == 0 {
		return apperror.NotFound("account", id)
	}
	return nil
}
