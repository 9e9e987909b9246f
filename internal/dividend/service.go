package dividends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	emailService "github.com/homevest/backend/internal/email"
	portfolios "github.com/homevest/backend/internal/portfolio"
	wallets "github.com/homevest/backend/internal/wallet"
)

var (
	ErrInvalidRevenue        = errors.New("total revenue must be greater than zero")
	ErrNoEligibleInvestments = errors.New("no investments were found for this portfolio")
)

// UserDirectory resolves the recipient of dividend notifications.
type UserDirectory interface {
	EmailAndName(ctx context.Context, userID string) (email, name string, err error)
}

type Distribution struct {
	Dividend *PortfolioDividend `json:"dividend"`
	PerShare float64            `json:"per_share"`
	Payouts  []UserDividend     `json:"payouts"`
}

type Service interface {
	Distribute(ctx context.Context, portfolioID uuid.UUID, netRentalIncome, expenses float64) (*Distribution, error)
	PortfolioDividends(ctx context.Context, portfolioID uuid.UUID) ([]PortfolioDividend, error)
	UserDividends(ctx context.Context, userID string) ([]UserDividend, error)
	UserDividendTotal(ctx context.Context, userID string) (float64, error)
}

type service struct {
	db               *sql.DB
	repo             DividendRepository
	portfolioService portfolios.Service
	walletService    wallets.Service
	emailSender      emailService.EmailSender
	users            UserDirectory
}

func NewDividendService(
	db *sql.DB,
	repo DividendRepository,
	portfolioService portfolios.Service,
	walletService wallets.Service,
	emailSender emailService.EmailSender,
	users UserDirectory,
) Service {
	return &service{
		db:               db,
		repo:             repo,
		portfolioService: portfolioService,
		walletService:    walletService,
		emailSender:      emailSender,
		users:            users,
	}
}

func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// computePayouts aggregates eligible investments per investor and splits the
// revenue at totalRevenue / totalShares per share. Each payout is rounded to
// cents and the rounding residual lands on the largest payout, so the paid
// sum always equals the eligible total to the cent.
func computePayouts(portfolioID uuid.UUID, totalShares int, totalRevenue float64, eligible []portfolios.Investment) (float64, []UserDividend) {
	perShare := totalRevenue / float64(totalShares)

	sharesByInvestor := make(map[string]int)
	for _, inv := range eligible {
		sharesByInvestor[inv.InvestorID] += inv.Shares
	}
	investors := make([]string, 0, len(sharesByInvestor))
	for investorID := range sharesByInvestor {
		investors = append(investors, investorID)
	}
	sort.Strings(investors)

	eligibleShares := 0
	payouts := make([]UserDividend, 0, len(investors))
	paid := 0.0
	largest := 0
	for i, investorID := range investors {
		shares := sharesByInvestor[investorID]
		eligibleShares += shares
		payout := roundCents(float64(shares) * perShare)
		paid += payout
		payouts = append(payouts, UserDividend{
			UserID:      investorID,
			PortfolioID: portfolioID,
			TotalShares: shares,
			Dividend:    payout,
		})
		if shares > payouts[largest].TotalShares {
			largest = i
		}
	}

	residual := roundCents(roundCents(perShare*float64(eligibleShares)) - paid)
	if residual != 0 {
		payouts[largest].Dividend = roundCents(payouts[largest].Dividend + residual)
	}
	return perShare, payouts
}

// Distribute declares a dividend and pays every vested investor their
// pro-rata share. The per-share rate divides by the portfolio's TOTAL share
// count, so unsold shares simply earn nothing. Per-investor payouts are
// rounded to cents and the rounding residual lands on the largest payout,
// which keeps the paid sum equal to the eligible total to the cent.
func (s *service) Distribute(ctx context.Context, portfolioID uuid.UUID, netRentalIncome, expenses float64) (*Distribution, error) {
	totalRevenue := netRentalIncome - expenses
	if totalRevenue <= 0 {
		return nil, ErrInvalidRevenue
	}

	portfolio, err := s.portfolioService.GetPortfolioByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	eligible, err := s.portfolioService.EligibleInvestments(ctx, portfolioID, time.Now())
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleInvestments
	}

	perShare, payouts := computePayouts(portfolioID, portfolio.Shares, totalRevenue, eligible)

	dividend := &PortfolioDividend{
		PortfolioID:     portfolioID,
		NetRentalIncome: netRentalIncome,
		Expenses:        expenses,
		TotalRevenue:    totalRevenue,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.repo.CreatePortfolioDividend(ctx, tx, dividend); err != nil {
		return nil, err
	}
	for i := range payouts {
		payouts[i].PortfolioDividendID = dividend.ID
		if err := s.repo.CreateUserDividend(ctx, tx, &payouts[i]); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.creditWallets(ctx, portfolio, payouts)

	return &Distribution{Dividend: dividend, PerShare: perShare, Payouts: payouts}, nil
}

// creditWallets pays every investor in parallel. The advisory lock inside
// the wallet service serializes writers per user, so concurrent credits for
// different users never contend.
func (s *service) creditWallets(ctx context.Context, portfolio *portfolios.Portfolio, payouts []UserDividend) {
	var wg sync.WaitGroup
	for _, payout := range payouts {
		wg.Add(1)
		go func(payout UserDividend) {
			defer wg.Done()
			if _, err := s.walletService.Credit(ctx, payout.UserID, payout.Dividend); err != nil {
				log.Printf("Could not credit wallet of user %s with dividend %.2f: %v", payout.UserID, payout.Dividend, err)
				return
			}
			s.notifyInvestor(ctx, portfolio, payout)
		}(payout)
	}
	wg.Wait()
}

func (s *service) notifyInvestor(ctx context.Context, portfolio *portfolios.Portfolio, payout UserDividend) {
	email, name, err := s.users.EmailAndName(ctx, payout.UserID)
	if err != nil {
		log.Printf("Could not resolve investor %s for dividend email: %v", payout.UserID, err)
		return
	}
	s.emailSender.QueueEmail(email, emailService.DividendNoticeData{
		UserName:       name,
		PortfolioTitle: portfolio.Title,
		Amount:         fmt.Sprintf("%.2f", payout.Dividend),
	})
}

func (s *service) PortfolioDividends(ctx context.Context, portfolioID uuid.UUID) ([]PortfolioDividend, error) {
	return s.repo.FindByPortfolioID(ctx, portfolioID)
}

func (s *service) UserDividends(ctx context.Context, userID string) ([]UserDividend, error) {
	return s.repo.FindUserDividends(ctx, userID)
}

func (s *service) UserDividendTotal(ctx context.Context, userID string) (float64, error) {
	return s.repo.SumUserDividends(ctx, userID)
}
