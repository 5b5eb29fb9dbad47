package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cardauth/internal/common/database"
	"cardauth/internal/threeds/domain"
)

// PostgresStore persists attempts in the threeds_attempts table. The
// INITIATED-to-terminal transition is a single conditional UPDATE, which
// gives the compare-and-transition semantics duplicate callbacks require.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a Postgres-backed attempt store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, orderID, bankName string) (*domain.Attempt, error) {
	now := time.Now().UTC()

	query := `
		INSERT INTO threeds_attempts (order_id, bank_name, status, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.Exec(ctx, query, orderID, bankName, domain.StatusInitiated, now)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, domain.ErrDuplicateAttempt
		}
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	return &domain.Attempt{
		OrderID:   orderID,
		BankName:  bankName,
		Status:    domain.StatusInitiated,
		CreatedAt: now,
	}, nil
}

// Finalize implements Store.
func (s *PostgresStore) Finalize(ctx context.Context, orderID string, result *domain.AuthenticationResult) (*domain.Attempt, bool, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, false, fmt.Errorf("marshal result: %w", err)
	}

	now := time.Now().UTC()

	query := `
		UPDATE threeds_attempts
		SET status = $2, result = $3, finalized_at = $4
		WHERE order_id = $1 AND status = $5
	`
	tag, err := s.db.Exec(ctx, query, orderID, result.Status, resultJSON, now, domain.StatusInitiated)
	if err != nil {
		return nil, false, fmt.Errorf("finalize attempt: %w", err)
	}

	if tag.RowsAffected() == 1 {
		attempt, err := s.Get(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
		return attempt, true, nil
	}

	// No row transitioned: either unknown, or already terminal (replay).
	attempt, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return attempt, false, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, orderID string) (*domain.Attempt, error) {
	query := `
		SELECT order_id, bank_name, status, result, created_at, finalized_at
		FROM threeds_attempts
		WHERE order_id = $1
	`
	row := s.db.QueryRow(ctx, query, orderID)

	var a domain.Attempt
	var resultJSON []byte
	err := row.Scan(&a.OrderID, &a.BankName, &a.Status, &resultJSON, &a.CreatedAt, &a.FinalizedAt)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, domain.ErrUnknownAttempt
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	if len(resultJSON) > 0 {
		var result domain.AuthenticationResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("unmarshal stored result: %w", err)
		}
		a.Result = &result
	}

	return &a, nil
}
