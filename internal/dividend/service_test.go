package dividends

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	portfolios "github.com/homevest/backend/internal/portfolio"
)

func TestComputePayouts_ProRataPerShare(t *testing.T) {
	portfolioID := uuid.New()
	// 1000 total shares, 5000 revenue: 5.00 per share, 10 shares earn 50.00.
	perShare, payouts := computePayouts(portfolioID, 1000, 5000, []portfolios.Investment{
		{InvestorID: "investor-a", PortfolioID: portfolioID, Shares: 10},
	})

	assert.Equal(t, 5.0, perShare)
	require.Len(t, payouts, 1)
	assert.Equal(t, 50.0, payouts[0].Dividend)
	assert.Equal(t, 10, payouts[0].TotalShares)
}

func TestComputePayouts_AggregatesMultipleInvestmentsPerInvestor(t *testing.T) {
	portfolioID := uuid.New()
	perShare, payouts := computePayouts(portfolioID, 100, 1000, []portfolios.Investment{
		{InvestorID: "investor-a", PortfolioID: portfolioID, Shares: 3},
		{InvestorID: "investor-a", PortfolioID: portfolioID, Shares: 7},
		{InvestorID: "investor-b", PortfolioID: portfolioID, Shares: 5},
	})

	assert.Equal(t, 10.0, perShare)
	require.Len(t, payouts, 2)
	assert.Equal(t, "investor-a", payouts[0].UserID)
	assert.Equal(t, 10, payouts[0].TotalShares)
	assert.Equal(t, 100.0, payouts[0].Dividend)
	assert.Equal(t, "investor-b", payouts[1].UserID)
	assert.Equal(t, 50.0, payouts[1].Dividend)
}

func TestComputePayouts_UnsoldSharesEarnNothing(t *testing.T) {
	portfolioID := uuid.New()
	// Only 10 of 1000 shares are held: the rate still divides by 1000.
	_, payouts := computePayouts(portfolioID, 1000, 5000, []portfolios.Investment{
		{InvestorID: "investor-a", PortfolioID: portfolioID, Shares: 10},
	})

	paid := 0.0
	for _, p := range payouts {
		paid += p.Dividend
	}
	assert.Equal(t, 50.0, paid)
}

func TestComputePayouts_RoundingResidualLandsOnLargestPayout(t *testing.T) {
	portfolioID := uuid.New()
	// 100.00 over 3 shares: 33.333... per share. Naive rounding pays
	// 33.33 * 3 = 99.99, so the largest payout absorbs the remaining cent.
	_, payouts := computePayouts(portfolioID, 3, 100, []portfolios.Investment{
		{InvestorID: "investor-a", PortfolioID: portfolioID, Shares: 1},
		{InvestorID: "investor-b", PortfolioID: portfolioID, Shares: 1},
		{InvestorID: "investor-c", PortfolioID: portfolioID, Shares: 1},
	})

	paid := 0.0
	for _, p := range payouts {
		paid += p.Dividend
	}
	assert.InDelta(t, 100.0, paid, 0.001)
}

func TestComputePayouts_SumMatchesEligibleTotal(t *testing.T) {
	portfolioID := uuid.New()
	eligible := []portfolios.Investment{
		{InvestorID: "investor-a", PortfolioID: portfolioID, Shares: 7},
		{InvestorID: "investor-b", PortfolioID: portfolioID, Shares: 11},
		{InvestorID: "investor-c", PortfolioID: portfolioID, Shares: 13},
	}
	perShare, payouts := computePayouts(portfolioID, 97, 1234.56, eligible)

	paid := 0.0
	for _, p := range payouts {
		paid += p.Dividend
	}
	assert.InDelta(t, roundCents(perShare*31), paid, 0.001)
}
