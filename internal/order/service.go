package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	emailService "github.com/homevest/backend/internal/email"
	payments "github.com/homevest/backend/internal/payment"
	"github.com/homevest/backend/internal/payment/plaid"
	portfolios "github.com/homevest/backend/internal/portfolio"
)

var (
	ErrCartNotFound        = errors.New("cart not found")
	ErrInvalidQuantity     = errors.New("invalid share quantity")
	ErrInvalidAction       = errors.New("invalid quantity action")
	ErrBankAccountRequired = errors.New("bank account must be attached before checkout")
	ErrPaymentPending      = errors.New("payment is still pending")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrIntentForbidden     = errors.New("transfer intent belongs to another user")
)

const (
	ActionIncrement = "INCREMENT"
	ActionDecrement = "DECREMENT"
)

// UserDirectory resolves the recipient of settlement notifications.
type UserDirectory interface {
	EmailAndName(ctx context.Context, userID string) (email, name string, err error)
}

type CartView struct {
	Cart      *Cart                 `json:"cart"`
	Portfolio *portfolios.Portfolio `json:"portfolio"`
	Amount    string                `json:"amount"`
}

type CheckoutResult struct {
	Intent   *payments.Intent `json:"intent"`
	Provider string           `json:"provider"`
	Amount   string           `json:"amount"`
}

type Service interface {
	AddToCart(ctx context.Context, userID string, portfolioID uuid.UUID, shares int) (*Cart, error)
	UpdateQuantity(ctx context.Context, userID, action string) (*CartView, error)
	GetCart(ctx context.Context, userID string) (*CartView, error)
	AttachBankAccount(ctx context.Context, userID string, bankAccountID uuid.UUID) error
	RemoveCart(ctx context.Context, userID string) error
	Checkout(ctx context.Context, userID, providerKind string) (*CheckoutResult, error)
	CompleteOrder(ctx context.Context, userID, providerKind, intentID string) (*payments.Payment, error)
	SettlePendingIntents(ctx context.Context)
	UserCheckouts(ctx context.Context, userID string) ([]Checkout, error)
}

type service struct {
	db               *sql.DB
	repo             OrderRepository
	portfolioService portfolios.Service
	paymentRepo      payments.PaymentRepository
	providers        payments.Registry
	bankService      plaid.BankService
	emailSender      emailService.EmailSender
	users            UserDirectory
}

func NewOrderService(
	db *sql.DB,
	repo OrderRepository,
	portfolioService portfolios.Service,
	paymentRepo payments.PaymentRepository,
	providers payments.Registry,
	bankService plaid.BankService,
	emailSender emailService.EmailSender,
	users UserDirectory,
) Service {
	return &service{
		db:               db,
		repo:             repo,
		portfolioService: portfolioService,
		paymentRepo:      paymentRepo,
		providers:        providers,
		bankService:      bankService,
		emailSender:      emailSender,
		users:            users,
	}
}

func formatAmount(shares int, sharePrice float64) string {
	return fmt.Sprintf("%.2f", float64(shares)*sharePrice)
}

func (s *service) AddToCart(ctx context.Context, userID string, portfolioID uuid.UUID, shares int) (*Cart, error) {
	if shares <= 0 {
		return nil, ErrInvalidQuantity
	}
	portfolio, err := s.portfolioService.GetPortfolioByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if shares > portfolio.RemainingShares {
		return nil, portfolios.ErrInsufficientShares
	}

	cart := &Cart{UserID: userID, PortfolioID: portfolioID, Shares: shares}
	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *service) loadCartView(ctx context.Context, cart *Cart) (*CartView, error) {
	portfolio, err := s.portfolioService.GetPortfolioByID(ctx, cart.PortfolioID)
	if err != nil {
		return nil, err
	}
	return &CartView{
		Cart:      cart,
		Portfolio: portfolio,
		Amount:    formatAmount(cart.Shares, portfolio.SharePrice),
	}, nil
}

func (s *service) UpdateQuantity(ctx context.Context, userID, action string) (*CartView, error) {
	cart, err := s.repo.FindCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	portfolio, err := s.portfolioService.GetPortfolioByID(ctx, cart.PortfolioID)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionIncrement:
		if cart.Shares+1 > portfolio.RemainingShares {
			return nil, portfolios.ErrInsufficientShares
		}
		cart.Shares++
	case ActionDecrement:
		if cart.Shares <= 1 {
			return nil, ErrInvalidQuantity
		}
		cart.Shares--
	default:
		return nil, ErrInvalidAction
	}

	if _, err := s.repo.UpdateCartShares(ctx, userID, cart.Shares); err != nil {
		return nil, err
	}
	return &CartView{
		Cart:      cart,
		Portfolio: portfolio,
		Amount:    formatAmount(cart.Shares, portfolio.SharePrice),
	}, nil
}

func (s *service) GetCart(ctx context.Context, userID string) (*CartView, error) {
	cart, err := s.repo.FindCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	return s.loadCartView(ctx, cart)
}

// AttachBankAccount freezes a masked copy of the account into the cart so
// the checkout audit row never needs the live bank_accounts row.
func (s *service) AttachBankAccount(ctx context.Context, userID string, bankAccountID uuid.UUID) error {
	account, err := s.bankService.GetBankAccount(ctx, bankAccountID, userID)
	if err != nil {
		return err
	}
	details, err := json.Marshal(map[string]string{
		"bank_name": account.BankName,
		"bank_type": account.BankType,
	})
	if err != nil {
		return err
	}
	rows, err := s.repo.AttachBankAccount(ctx, userID, bankAccountID, details)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (s *service) RemoveCart(ctx context.Context, userID string) error {
	return s.repo.DeleteCart(ctx, s.db, userID)
}

func (s *service) Checkout(ctx context.Context, userID, providerKind string) (*CheckoutResult, error) {
	cart, err := s.repo.FindCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	portfolio, err := s.portfolioService.GetPortfolioByID(ctx, cart.PortfolioID)
	if err != nil {
		return nil, err
	}
	if cart.Shares > portfolio.RemainingShares {
		return nil, portfolios.ErrInsufficientShares
	}

	provider, err := s.providers.Get(providerKind)
	if err != nil {
		return nil, err
	}
	if providerKind == payments.ProviderPlaid && cart.BankAccountID == nil {
		return nil, ErrBankAccountRequired
	}

	_, name, err := s.users.EmailAndName(ctx, userID)
	if err != nil {
		return nil, err
	}

	amount := formatAmount(cart.Shares, portfolio.SharePrice)
	intent, err := provider.CreateIntent(ctx, payments.IntentRequest{
		UserID:        userID,
		Amount:        amount,
		Currency:      "USD",
		Description:   fmt.Sprintf("%d share(s) of %s", cart.Shares, portfolio.Title),
		BankAccountID: cart.BankAccountID,
		LegalName:     name,
	})
	if err != nil {
		return nil, err
	}

	// Bank transfers settle later. Remember the intent so the sweeper can
	// finish the order once Plaid reports success.
	if providerKind == payments.ProviderPlaid {
		if err := s.repo.InsertPendingIntent(ctx, &PendingIntent{
			IntentID: intent.ID,
			UserID:   userID,
			Provider: providerKind,
		}); err != nil {
			return nil, err
		}
	}

	return &CheckoutResult{Intent: intent, Provider: providerKind, Amount: amount}, nil
}

// CompleteOrder finalizes the provider charge and settles the order in one
// transaction. Replays with an already-settled transaction id return the
// existing payment without touching inventory again.
func (s *service) CompleteOrder(ctx context.Context, userID, providerKind, intentID string) (*payments.Payment, error) {
	provider, err := s.providers.Get(providerKind)
	if err != nil {
		return nil, err
	}

	// The intent id is caller-supplied. A recorded intent must belong to
	// the caller, or anyone could settle their cart against a stranger's
	// transfer.
	if pending, err := s.repo.FindPendingIntent(ctx, intentID); err == nil {
		if pending.UserID != userID {
			return nil, ErrIntentForbidden
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	confirmation, err := provider.Finalize(ctx, intentID)
	if err != nil {
		return nil, err
	}
	switch confirmation.Status {
	case payments.StatusPending:
		return nil, ErrPaymentPending
	case payments.StatusFailed:
		_ = s.repo.DeletePendingIntent(ctx, intentID)
		return nil, ErrPaymentFailed
	}

	// A previous attempt may have settled and deleted the cart already.
	if existing, err := s.paymentRepo.FindByTransactionID(ctx, s.db, confirmation.TransactionID); err == nil {
		_ = s.repo.DeletePendingIntent(ctx, intentID)
		return existing, nil
	} else if !errors.Is(err, payments.ErrPaymentNotFound) {
		return nil, err
	}

	cart, err := s.repo.FindCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	portfolio, err := s.portfolioService.GetPortfolioByID(ctx, cart.PortfolioID)
	if err != nil {
		return nil, err
	}

	payment, err := s.settle(ctx, cart, portfolio, providerKind, confirmation)
	if err != nil {
		return nil, err
	}
	_ = s.repo.DeletePendingIntent(ctx, intentID)

	s.notifyInvestor(ctx, cart, portfolio)
	return payment, nil
}

// settle runs the whole settlement in one transaction: payment row, share
// deduction, investment row, checkout audit row and cart removal commit or
// roll back together.
func (s *service) settle(ctx context.Context, cart *Cart, portfolio *portfolios.Portfolio, providerKind string, confirmation *payments.Confirmation) (*payments.Payment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Re-check under the transaction: two concurrent completions race to
	// the unique transaction_id, and the loser must return the winner's row.
	if existing, err := s.paymentRepo.FindByTransactionID(ctx, tx, confirmation.TransactionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, payments.ErrPaymentNotFound) {
		return nil, err
	}

	amount := confirmation.Amount
	if amount == 0 {
		amount = float64(cart.Shares) * portfolio.SharePrice
	}
	netAmount := confirmation.NetAmount
	if netAmount == 0 {
		netAmount = amount - confirmation.Fee
	}

	payment := &payments.Payment{
		UserID:         cart.UserID,
		PortfolioID:    portfolio.ID,
		Amount:         amount,
		Fee:            confirmation.Fee,
		NetAmount:      netAmount,
		Currency:       "USD",
		InvestedShares: cart.Shares,
		Status:         payments.StatusCompleted,
		Provider:       providerKind,
		TransactionID:  confirmation.TransactionID,
		Description:    fmt.Sprintf("%d share(s) of %s", cart.Shares, portfolio.Title),
		Metadata:       confirmation.Raw,
	}
	if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
		return nil, err
	}

	if err := s.portfolioService.DeductInventory(ctx, tx, portfolio.ID, cart.Shares); err != nil {
		return nil, err
	}

	investment := &portfolios.Investment{
		InvestorID:      cart.UserID,
		PortfolioID:     portfolio.ID,
		Shares:          cart.Shares,
		SharePrice:      portfolio.SharePrice,
		TotalInvestment: float64(cart.Shares) * portfolio.SharePrice,
	}
	if err := s.portfolioService.RecordInvestment(ctx, tx, investment); err != nil {
		return nil, err
	}

	portfolioDetails, err := json.Marshal(map[string]interface{}{
		"title":       portfolio.Title,
		"slug":        portfolio.Slug,
		"share_price": portfolio.SharePrice,
	})
	if err != nil {
		return nil, err
	}
	checkout := &Checkout{
		UserID:             cart.UserID,
		PortfolioID:        portfolio.ID,
		PortfolioDetails:   portfolioDetails,
		BankAccountID:      cart.BankAccountID,
		BankAccountDetails: cart.BankAccountDetails,
		Shares:             cart.Shares,
		PaymentID:          payment.ID,
	}
	if err := s.repo.CreateCheckout(ctx, tx, checkout); err != nil {
		return nil, err
	}

	if err := s.repo.DeleteCart(ctx, tx, cart.UserID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) notifyInvestor(ctx context.Context, cart *Cart, portfolio *portfolios.Portfolio) {
	email, name, err := s.users.EmailAndName(ctx, cart.UserID)
	if err != nil {
		log.Printf("Could not resolve investor %s for confirmation email: %v", cart.UserID, err)
		return
	}
	s.emailSender.QueueEmail(email, emailService.InvestmentConfirmationData{
		UserName:       name,
		PortfolioTitle: portfolio.Title,
		Shares:         cart.Shares,
		Amount:         formatAmount(cart.Shares, portfolio.SharePrice),
	})
}

// SettlePendingIntents is the cron sweep for bank transfers. Intents that
// are still pending stay in the table for the next run.
func (s *service) SettlePendingIntents(ctx context.Context) {
	intents, err := s.repo.ListPendingIntents(ctx)
	if err != nil {
		log.Printf("Could not list pending transfer intents: %v", err)
		return
	}
	for _, intent := range intents {
		_, err := s.CompleteOrder(ctx, intent.UserID, intent.Provider, intent.IntentID)
		switch {
		case err == nil:
			log.Printf("Settled pending transfer intent %s", intent.IntentID)
		case errors.Is(err, ErrPaymentPending):
			// next sweep
		case errors.Is(err, ErrPaymentFailed):
			log.Printf("Pending transfer intent %s failed", intent.IntentID)
		default:
			log.Printf("Could not settle transfer intent %s: %v", intent.IntentID, err)
		}
	}
}

func (s *service) UserCheckouts(ctx context.Context, userID string) ([]Checkout, error) {
	return s.repo.FindCheckoutsByUserID(ctx, userID)
}
