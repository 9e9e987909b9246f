package plaid

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrBankAccountNotFound = errors.New("bank account not found")

// BankAccount keeps the Plaid credentials server-side. AccessToken and
// AccountID never leave the process over the API.
type BankAccount struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	BankName    string    `json:"bank_name"`
	BankType    string    `json:"bank_type"`
	AccountID   string    `json:"-"`
	AccessToken string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

type BankRepository interface {
	Create(ctx context.Context, account *BankAccount) error
	FindByID(ctx context.Context, accountID uuid.UUID, userID string) (*BankAccount, error)
	FindAllByUserID(ctx context.Context, userID string) ([]BankAccount, error)
	Delete(ctx context.Context, accountID uuid.UUID, userID string) (int64, error)
}

type bankRepository struct {
	db *sql.DB
}

func NewBankRepository(db *sql.DB) BankRepository {
	return &bankRepository{db: db}
}

func (r *bankRepository) Create(ctx context.Context, account *BankAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	query := `
		INSERT INTO bank_accounts (id, user_id, bank_name, bank_type, account_id, access_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return r.db.QueryRowContext(ctx, query,
		account.ID, account.UserID, account.BankName, account.BankType, account.AccountID, account.AccessToken,
	).Scan(&account.CreatedAt)
}

func (r *bankRepository) FindByID(ctx context.Context, accountID uuid.UUID, userID string) (*BankAccount, error) {
	query := `
		SELECT id, user_id, bank_name, bank_type, account_id, access_token, created_at
		FROM bank_accounts
		WHERE id = $1 AND user_id = $2
	`
	var account BankAccount
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(
		&account.ID, &account.UserID, &account.BankName, &account.BankType,
		&account.AccountID, &account.AccessToken, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBankAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *bankRepository) FindAllByUserID(ctx context.Context, userID string) ([]BankAccount, error) {
	query := `
		SELECT id, user_id, bank_name, bank_type, created_at
		FROM bank_accounts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []BankAccount
	for rows.Next() {
		var account BankAccount
		if err := rows.Scan(&account.ID, &account.UserID, &account.BankName, &account.BankType, &account.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *bankRepository) Delete(ctx context.Context, accountID uuid.UUID, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bank_accounts WHERE id = $1 AND user_id = $2`, accountID, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type BankService interface {
	CreateLinkToken(ctx context.Context, userID string) (*LinkTokenResponse, error)
	LinkBankAccount(ctx context.Context, userID, publicToken string) ([]BankAccount, error)
	ListBankAccounts(ctx context.Context, userID string) ([]BankAccount, error)
	GetBankAccount(ctx context.Context, accountID uuid.UUID, userID string) (*BankAccount, error)
	RemoveBankAccount(ctx context.Context, accountID uuid.UUID, userID string) error
}

type bankService struct {
	client *Client
	repo   BankRepository
}

func NewBankService(client *Client, repo BankRepository) BankService {
	return &bankService{client: client, repo: repo}
}

func (s *bankService) CreateLinkToken(ctx context.Context, userID string) (*LinkTokenResponse, error) {
	return s.client.CreateLinkToken(ctx, userID)
}

// LinkBankAccount exchanges the Link public token and stores one row per
// account the user connected. The mask is folded into the display name so
// the raw account number is never needed again for listing.
func (s *bankService) LinkBankAccount(ctx context.Context, userID, publicToken string) ([]BankAccount, error) {
	accessToken, _, err := s.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}
	plaidAccounts, err := s.client.GetAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	linked := make([]BankAccount, 0, len(plaidAccounts))
	for _, pa := range plaidAccounts {
		name := pa.Name
		if pa.Mask != "" {
			name = pa.Name + " ****" + pa.Mask
		}
		account := BankAccount{
			UserID:      userID,
			BankName:    name,
			BankType:    pa.Subtype,
			AccountID:   pa.AccountID,
			AccessToken: accessToken,
		}
		if err := s.repo.Create(ctx, &account); err != nil {
			return nil, err
		}
		linked = append(linked, account)
	}
	return linked, nil
}

func (s *bankService) ListBankAccounts(ctx context.Context, userID string) ([]BankAccount, error) {
	return s.repo.FindAllByUserID(ctx, userID)
}

func (s *bankService) GetBankAccount(ctx context.Context, accountID uuid.UUID, userID string) (*BankAccount, error) {
	return s.repo.FindByID(ctx, accountID, userID)
}

func (s *bankService) RemoveBankAccount(ctx context.Context, accountID uuid.UUID, userID string) error {
	rows, err := s.repo.Delete(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBankAccountNotFound
	}
	return nil
}
