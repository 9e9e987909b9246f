package plaid

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	payments "github.com/homevest/backend/internal/payment"
)

var ErrMissingBankAccount = errors.New("bank account is required for transfers")

// Provider adapts Plaid ACH transfers to the payment rail interface.
// Transfers settle asynchronously, so Finalize reports a pending status
// until Plaid marks the intent succeeded.
type Provider struct {
	client *Client
	banks  BankService
}

func NewProvider(client *Client, banks BankService) *Provider {
	return &Provider{client: client, banks: banks}
}

func (p *Provider) Kind() string {
	return payments.ProviderPlaid
}

func (p *Provider) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	if req.BankAccountID == nil {
		return nil, ErrMissingBankAccount
	}
	account, err := p.banks.GetBankAccount(ctx, *req.BankAccountID, req.UserID)
	if err != nil {
		return nil, err
	}

	intent, err := p.client.CreateTransferIntent(ctx, account.AccountID, req.LegalName, req.Amount, req.Description)
	if err != nil {
		return nil, err
	}

	// Without a link token bound to the intent the client has no way to
	// open Plaid Link, so the transfer could never be authorized.
	linkToken, err := p.client.CreateTransferLinkToken(ctx, req.UserID, account.AccessToken, intent.ID)
	if err != nil {
		return nil, err
	}
	return &payments.Intent{ID: intent.ID, Status: intent.Status, LinkToken: linkToken.LinkToken}, nil
}

func (p *Provider) Finalize(ctx context.Context, intentID string) (*payments.Confirmation, error) {
	intent, err := p.client.GetTransferIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	status := payments.StatusPending
	switch intent.Status {
	case IntentStatusSucceeded:
		status = payments.StatusCompleted
	case IntentStatusFailed:
		status = payments.StatusFailed
	}

	amount, err := strconv.ParseFloat(intent.Amount, 64)
	if err != nil {
		amount = 0
	}

	raw, _ := json.Marshal(intent)
	transactionID := intent.TransferID
	if transactionID == "" {
		transactionID = intent.ID
	}
	return &payments.Confirmation{
		TransactionID: transactionID,
		Status:        status,
		Amount:        amount,
		NetAmount:     amount,
		Raw:           raw,
	}, nil
}
