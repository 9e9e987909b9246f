package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	database "github.com/homevest/backend/internal/db"
	emailService "github.com/homevest/backend/internal/email"
	payments "github.com/homevest/backend/internal/payment"
	"github.com/homevest/backend/internal/payment/plaid"
	portfolios "github.com/homevest/backend/internal/portfolio"
)

type mockOrderRepository struct {
	carts          map[string]*Cart
	pendingIntents map[string]*PendingIntent
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{
		carts:          make(map[string]*Cart),
		pendingIntents: make(map[string]*PendingIntent),
	}
}

func (m *mockOrderRepository) UpsertCart(_ context.Context, cart *Cart) error {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	cart.CreatedAt = time.Now()
	cart.UpdatedAt = cart.CreatedAt
	copied := *cart
	m.carts[cart.UserID] = &copied
	return nil
}

func (m *mockOrderRepository) FindCartByUserID(_ context.Context, userID string) (*Cart, error) {
	cart, ok := m.carts[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *cart
	return &copied, nil
}

func (m *mockOrderRepository) UpdateCartShares(_ context.Context, userID string, shares int) (int64, error) {
	cart, ok := m.carts[userID]
	if !ok {
		return 0, nil
	}
	cart.Shares = shares
	return 1, nil
}

func (m *mockOrderRepository) AttachBankAccount(_ context.Context, userID string, bankAccountID uuid.UUID, details json.RawMessage) (int64, error) {
	cart, ok := m.carts[userID]
	if !ok {
		return 0, nil
	}
	cart.BankAccountID = &bankAccountID
	cart.BankAccountDetails = details
	return 1, nil
}

func (m *mockOrderRepository) DeleteCart(_ context.Context, _ database.Queryer, userID string) error {
	delete(m.carts, userID)
	return nil
}

func (m *mockOrderRepository) CreateCheckout(_ context.Context, _ database.Queryer, checkout *Checkout) error {
	checkout.CreatedAt = time.Now()
	return nil
}

func (m *mockOrderRepository) FindCheckoutsByUserID(_ context.Context, _ string) ([]Checkout, error) {
	return nil, nil
}

func (m *mockOrderRepository) InsertPendingIntent(_ context.Context, intent *PendingIntent) error {
	m.pendingIntents[intent.IntentID] = intent
	return nil
}

func (m *mockOrderRepository) FindPendingIntent(_ context.Context, intentID string) (*PendingIntent, error) {
	intent, ok := m.pendingIntents[intentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *intent
	return &copied, nil
}

func (m *mockOrderRepository) ListPendingIntents(_ context.Context) ([]PendingIntent, error) {
	var all []PendingIntent
	for _, intent := range m.pendingIntents {
		all = append(all, *intent)
	}
	return all, nil
}

func (m *mockOrderRepository) DeletePendingIntent(_ context.Context, intentID string) error {
	delete(m.pendingIntents, intentID)
	return nil
}

type mockPortfolioService struct {
	portfolio *portfolios.Portfolio
}

func (m *mockPortfolioService) CreatePortfolio(_ context.Context, _ string, _ portfolios.CreatePortfolioRequest) (*portfolios.Portfolio, error) {
	return nil, nil
}

func (m *mockPortfolioService) UpdatePortfolio(_ context.Context, _ uuid.UUID, _ portfolios.UpdatePortfolioRequest) (*portfolios.Portfolio, error) {
	return nil, nil
}

func (m *mockPortfolioService) GetPortfolioByID(_ context.Context, portfolioID uuid.UUID) (*portfolios.Portfolio, error) {
	if m.portfolio == nil || m.portfolio.ID != portfolioID {
		return nil, portfolios.ErrPortfolioNotFound
	}
	copied := *m.portfolio
	return &copied, nil
}

func (m *mockPortfolioService) GetPortfolioBySlug(_ context.Context, _ string) (*portfolios.Portfolio, error) {
	return nil, portfolios.ErrPortfolioNotFound
}

func (m *mockPortfolioService) ListPortfolios(_ context.Context) ([]portfolios.Portfolio, error) {
	return nil, nil
}

func (m *mockPortfolioService) DeletePortfolio(_ context.Context, _ uuid.UUID) error {
	return nil
}

func (m *mockPortfolioService) GalleryImages(_ context.Context, _ uuid.UUID) ([]portfolios.GalleryImage, error) {
	return nil, nil
}

func (m *mockPortfolioService) DeductInventory(_ context.Context, _ database.Queryer, _ uuid.UUID, shares int) error {
	if shares > m.portfolio.RemainingShares {
		return portfolios.ErrInsufficientShares
	}
	m.portfolio.RemainingShares -= shares
	return nil
}

func (m *mockPortfolioService) RecordInvestment(_ context.Context, _ database.Queryer, _ *portfolios.Investment) error {
	return nil
}

func (m *mockPortfolioService) EligibleInvestments(_ context.Context, _ uuid.UUID, _ time.Time) ([]portfolios.Investment, error) {
	return nil, nil
}

type mockPaymentRepository struct {
	byTransactionID map[string]*payments.Payment
}

func newMockPaymentRepository() *mockPaymentRepository {
	return &mockPaymentRepository{byTransactionID: make(map[string]*payments.Payment)}
}

func (m *mockPaymentRepository) Create(_ context.Context, _ database.Queryer, payment *payments.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now()
	copied := *payment
	m.byTransactionID[payment.TransactionID] = &copied
	return nil
}

func (m *mockPaymentRepository) FindByTransactionID(_ context.Context, _ database.Queryer, transactionID string) (*payments.Payment, error) {
	payment, ok := m.byTransactionID[transactionID]
	if !ok {
		return nil, payments.ErrPaymentNotFound
	}
	copied := *payment
	return &copied, nil
}

func (m *mockPaymentRepository) FindAllByUserID(_ context.Context, _ string) ([]payments.Payment, error) {
	return nil, nil
}

func (m *mockPaymentRepository) FindAll(_ context.Context) ([]payments.Payment, error) {
	return nil, nil
}

func (m *mockPaymentRepository) TotalCapital(_ context.Context) (float64, error) {
	return 0, nil
}

func (m *mockPaymentRepository) CapitalRows(_ context.Context) ([]payments.CapitalRow, error) {
	return nil, nil
}

func (m *mockPaymentRepository) UserHoldings(_ context.Context, _ string) ([]payments.Holding, error) {
	return nil, nil
}

type fakeProvider struct {
	kind          string
	linkToken     string
	lastIntentReq payments.IntentRequest
	intentCount   int
	confirmation  *payments.Confirmation
	finalizeCount int
}

func (f *fakeProvider) Kind() string { return f.kind }

func (f *fakeProvider) CreateIntent(_ context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	f.lastIntentReq = req
	f.intentCount++
	return &payments.Intent{ID: "intent-1", Status: "PENDING", LinkToken: f.linkToken}, nil
}

func (f *fakeProvider) Finalize(_ context.Context, _ string) (*payments.Confirmation, error) {
	f.finalizeCount++
	return f.confirmation, nil
}

type mockBankService struct {
	account *plaid.BankAccount
}

func (m *mockBankService) CreateLinkToken(_ context.Context, _ string) (*plaid.LinkTokenResponse, error) {
	return nil, nil
}

func (m *mockBankService) LinkBankAccount(_ context.Context, _, _ string) ([]plaid.BankAccount, error) {
	return nil, nil
}

func (m *mockBankService) ListBankAccounts(_ context.Context, _ string) ([]plaid.BankAccount, error) {
	return nil, nil
}

func (m *mockBankService) GetBankAccount(_ context.Context, accountID uuid.UUID, _ string) (*plaid.BankAccount, error) {
	if m.account == nil || m.account.ID != accountID {
		return nil, plaid.ErrBankAccountNotFound
	}
	return m.account, nil
}

func (m *mockBankService) RemoveBankAccount(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

type recordingEmailSender struct {
	sent []emailService.EmailData
}

func (r *recordingEmailSender) QueueEmail(_ string, data emailService.EmailData) {
	r.sent = append(r.sent, data)
}

type mockUserDirectory struct{}

func (m *mockUserDirectory) EmailAndName(_ context.Context, _ string) (string, string, error) {
	return "investor@example.com", "Jordan Investor", nil
}

type orderFixture struct {
	repo        *mockOrderRepository
	portfolioSv *mockPortfolioService
	paymentRepo *mockPaymentRepository
	plaid       *fakeProvider
	paypal      *fakeProvider
	emails      *recordingEmailSender
	service     Service
}

func newOrderFixture(portfolio *portfolios.Portfolio) *orderFixture {
	f := &orderFixture{
		repo:        newMockOrderRepository(),
		portfolioSv: &mockPortfolioService{portfolio: portfolio},
		paymentRepo: newMockPaymentRepository(),
		plaid:       &fakeProvider{kind: payments.ProviderPlaid, linkToken: "link-test-1"},
		paypal:      &fakeProvider{kind: payments.ProviderPayPal},
		emails:      &recordingEmailSender{},
	}
	bankID := uuid.New()
	f.service = NewOrderService(
		nil,
		f.repo,
		f.portfolioSv,
		f.paymentRepo,
		payments.Registry{
			payments.ProviderPlaid:  f.plaid,
			payments.ProviderPayPal: f.paypal,
		},
		&mockBankService{account: &plaid.BankAccount{ID: bankID, BankName: "First Test Bank ****1234", BankType: "checking"}},
		f.emails,
		&mockUserDirectory{},
	)
	return f
}

func testPortfolio() *portfolios.Portfolio {
	return &portfolios.Portfolio{
		ID:              uuid.New(),
		Title:           "Harbor View",
		Slug:            "harbor-view",
		Shares:          100,
		SharePrice:      250,
		RemainingShares: 100,
	}
}

func TestAddToCart_RejectsInvalidQuantity(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	_, err := f.service.AddToCart(context.Background(), "user-1", portfolio.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.service.AddToCart(context.Background(), "user-1", portfolio.ID, 101)
	assert.ErrorIs(t, err, portfolios.ErrInsufficientShares)
}

func TestUpdateQuantity_DecrementCannotDropBelowOne(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	_, err := f.service.AddToCart(context.Background(), "user-1", portfolio.ID, 1)
	require.NoError(t, err)

	_, err = f.service.UpdateQuantity(context.Background(), "user-1", ActionDecrement)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestUpdateQuantity_IncrementCappedByRemainingShares(t *testing.T) {
	portfolio := testPortfolio()
	portfolio.RemainingShares = 2
	f := newOrderFixture(portfolio)

	_, err := f.service.AddToCart(context.Background(), "user-1", portfolio.ID, 2)
	require.NoError(t, err)

	_, err = f.service.UpdateQuantity(context.Background(), "user-1", ActionIncrement)
	assert.ErrorIs(t, err, portfolios.ErrInsufficientShares)
}

func TestUpdateQuantity_RejectsUnknownAction(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	_, err := f.service.AddToCart(context.Background(), "user-1", portfolio.ID, 2)
	require.NoError(t, err)

	_, err = f.service.UpdateQuantity(context.Background(), "user-1", "DOUBLE")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestCheckout_FormatsAmountWithTwoDecimals(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	_, err := f.service.AddToCart(context.Background(), "user-1", portfolio.ID, 2)
	require.NoError(t, err)

	result, err := f.service.Checkout(context.Background(), "user-1", payments.ProviderPayPal)
	require.NoError(t, err)
	assert.Equal(t, "500.00", result.Amount)
	assert.Equal(t, "500.00", f.paypal.lastIntentReq.Amount)
}

func TestCheckout_PlaidRequiresAttachedBankAccount(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	_, err := f.service.AddToCart(context.Background(), "user-1", portfolio.ID, 2)
	require.NoError(t, err)

	_, err = f.service.Checkout(context.Background(), "user-1", payments.ProviderPlaid)
	assert.ErrorIs(t, err, ErrBankAccountRequired)
}

func TestCheckout_PlaidRecordsPendingIntent(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	_, err := f.service.AddToCart(context.Background(), "user-1", portfolio.ID, 2)
	require.NoError(t, err)

	cart := f.repo.carts["user-1"]
	bankID := uuid.New()
	cart.BankAccountID = &bankID

	result, err := f.service.Checkout(context.Background(), "user-1", payments.ProviderPlaid)
	require.NoError(t, err)
	assert.Contains(t, f.repo.pendingIntents, result.Intent.ID)
	// Without the hosted link token the client cannot authorize the transfer.
	assert.Equal(t, "link-test-1", result.Intent.LinkToken)
}

func TestCheckout_RejectsUnknownProvider(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	_, err := f.service.AddToCart(context.Background(), "user-1", portfolio.ID, 2)
	require.NoError(t, err)

	_, err = f.service.Checkout(context.Background(), "user-1", "STRIPE")
	assert.ErrorIs(t, err, payments.ErrUnknownProvider)
}

func TestCompleteOrder_ReplayReturnsExistingPayment(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	settled := &payments.Payment{
		ID:            uuid.New(),
		UserID:        "user-1",
		PortfolioID:   portfolio.ID,
		Amount:        500,
		TransactionID: "txn-1",
		Status:        payments.StatusCompleted,
	}
	f.paymentRepo.byTransactionID["txn-1"] = settled
	f.paypal.confirmation = &payments.Confirmation{
		TransactionID: "txn-1",
		Status:        payments.StatusCompleted,
		Amount:        500,
	}

	payment, err := f.service.CompleteOrder(context.Background(), "user-1", payments.ProviderPayPal, "order-1")
	require.NoError(t, err)
	assert.Equal(t, settled.ID, payment.ID)
	// Replay must not touch inventory.
	assert.Equal(t, 100, portfolio.RemainingShares)
}

func TestCompleteOrder_PendingTransferStaysPending(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	f.plaid.confirmation = &payments.Confirmation{
		TransactionID: "txn-2",
		Status:        payments.StatusPending,
	}

	_, err := f.service.CompleteOrder(context.Background(), "user-1", payments.ProviderPlaid, "intent-2")
	assert.ErrorIs(t, err, ErrPaymentPending)
}

func TestCompleteOrder_RejectsForeignIntent(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	f.repo.pendingIntents["intent-9"] = &PendingIntent{IntentID: "intent-9", UserID: "user-2", Provider: payments.ProviderPlaid}
	f.plaid.confirmation = &payments.Confirmation{
		TransactionID: "txn-9",
		Status:        payments.StatusCompleted,
		Amount:        500,
	}

	_, err := f.service.CompleteOrder(context.Background(), "user-1", payments.ProviderPlaid, "intent-9")
	assert.ErrorIs(t, err, ErrIntentForbidden)
	// The provider must not even be asked to finalize a stranger's intent.
	assert.Zero(t, f.plaid.finalizeCount)
	assert.Contains(t, f.repo.pendingIntents, "intent-9")
}

func TestCompleteOrder_FailedPaymentClearsPendingIntent(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	f.repo.pendingIntents["intent-3"] = &PendingIntent{IntentID: "intent-3", UserID: "user-1", Provider: payments.ProviderPlaid}
	f.plaid.confirmation = &payments.Confirmation{
		TransactionID: "txn-3",
		Status:        payments.StatusFailed,
	}

	_, err := f.service.CompleteOrder(context.Background(), "user-1", payments.ProviderPlaid, "intent-3")
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.NotContains(t, f.repo.pendingIntents, "intent-3")
}

func TestAttachBankAccount_RequiresExistingCart(t *testing.T) {
	portfolio := testPortfolio()
	f := newOrderFixture(portfolio)

	err := f.service.AttachBankAccount(context.Background(), "user-1", uuid.New())
	assert.ErrorIs(t, err, plaid.ErrBankAccountNotFound)
}
