package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/homevest/backend/internal/auth"
	database "github.com/homevest/backend/internal/db"
	dividends "github.com/homevest/backend/internal/dividend"
	emailService "github.com/homevest/backend/internal/email"
	"github.com/homevest/backend/internal/media"
	orders "github.com/homevest/backend/internal/order"
	payments "github.com/homevest/backend/internal/payment"
	"github.com/homevest/backend/internal/payment/paypal"
	"github.com/homevest/backend/internal/payment/plaid"
	portfolios "github.com/homevest/backend/internal/portfolio"
	"github.com/homevest/backend/internal/user"
	wallets "github.com/homevest/backend/internal/wallet"
)

type Response struct {
	Message string `json:"message"`
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("Started %s %s", r.Method, r.URL.Path)

		next.ServeHTTP(w, r)

		log.Printf("Completed %s in %v", r.URL.Path, time.Since(start))
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, errorsList ...[]string) {
	payload := map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	}
	if len(errorsList) > 0 {
		payload["errors"] = errorsList[0]
	}
	respondJSON(w, status, payload)
}

type Server struct {
	router           *http.ServeMux
	authHandler      *auth.Handler
	userHandler      *user.Handler
	authService      auth.Service
	portfolioHandler *portfolios.Handler
	orderHandler     *orders.Handler
	paymentHandler   *payments.Handler
	bankHandler      *plaid.Handler
	dividendHandler  *dividends.Handler
	walletHandler    *wallets.Handler
	mediaHandler     *media.Handler
}

func NewServer(
	authHandler *auth.Handler,
	authService auth.Service,
	userHandler *user.Handler,
	portfolioHandler *portfolios.Handler,
	orderHandler *orders.Handler,
	paymentHandler *payments.Handler,
	bankHandler *plaid.Handler,
	dividendHandler *dividends.Handler,
	walletHandler *wallets.Handler,
	mediaHandler *media.Handler,
) *Server {
	return &Server{
		router:           http.NewServeMux(),
		authHandler:      authHandler,
		authService:      authService,
		userHandler:      userHandler,
		portfolioHandler: portfolioHandler,
		orderHandler:     orderHandler,
		paymentHandler:   paymentHandler,
		bankHandler:      bankHandler,
		dividendHandler:  dividendHandler,
		walletHandler:    walletHandler,
		mediaHandler:     mediaHandler,
	}
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(Response{Message: "Path not found"})
}

func checkConfiguration() error {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file, continuing with system environment variables")
	}

	required := []string{
		"JWT_SECRET",
		"DB_CONNECTION_STRING",
		"PLAID_CLIENT_ID",
		"PLAID_SECRET",
		"PAYPAL_CLIENT_ID",
		"PAYPAL_CLIENT_SECRET",
		"EMAIL_ADDRESS",
		"EMAIL_PASSWORD",
		"TEMPLATES_DIR",
	}
	for _, name := range required {
		if os.Getenv(name) == "" {
			return errors.New("no " + name + " Provided")
		}
	}
	return nil
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ready",
	})
}

func (s *Server) RegisterRoutes() {
	authMW := s.authService.JWTAccessTokenMiddleware()
	adminMW := s.authService.RequireAdminMiddleware()

	// Public routes
	publicRoutes := http.NewServeMux()
	publicRoutes.Handle("POST /api/register", http.HandlerFunc(s.userHandler.HandleRegister))
	publicRoutes.Handle("POST /api/email/verify", http.HandlerFunc(s.userHandler.HandleVerifyEmail))
	publicRoutes.Handle("POST /api/auth/login", http.HandlerFunc(s.authHandler.HandleLogin))
	publicRoutes.Handle("POST /api/auth/logout", http.HandlerFunc(s.authHandler.HandleLogout))
	publicRoutes.Handle("POST /api/auth/2fa/verify", http.HandlerFunc(s.authHandler.HandleVerifyTwoFactor))
	publicRoutes.Handle("POST /api/password-reset/request", http.HandlerFunc(s.authHandler.RequestPasswordResetHandler))
	publicRoutes.Handle("POST /api/password-reset/confirm", http.HandlerFunc(s.authHandler.ResetPasswordHandler))
	publicRoutes.Handle("GET /api/ready", http.HandlerFunc(s.handleReady))

	// Portfolio listing is public so prospective investors can browse
	// before registering.
	publicRoutes.Handle("GET /api/portfolios", http.HandlerFunc(s.portfolioHandler.HandleGetAllPortfolios))
	publicRoutes.Handle("GET /api/portfolios/slug/{slug}", http.HandlerFunc(s.portfolioHandler.HandleGetPortfolioBySlug))
	publicRoutes.Handle("GET /api/portfolios/{portfolioID}",
		s.portfolioHandler.ValidatePortfolioPathParamsMiddleware(http.HandlerFunc(s.portfolioHandler.HandleGetPortfolio), "portfolioID"))
	publicRoutes.Handle("GET /api/portfolios/{portfolioID}/gallery",
		s.portfolioHandler.ValidatePortfolioPathParamsMiddleware(http.HandlerFunc(s.portfolioHandler.HandleGetGalleryImages), "portfolioID"))
	publicRoutes.Handle("GET /api/media/{mediaID}", http.HandlerFunc(s.mediaHandler.HandleGetMedia))
	publicRoutes.Handle("GET /api/media", http.HandlerFunc(s.mediaHandler.HandleResolveMedia))

	// Protected routes (using JWT Access Token Middleware)
	protectedRoutes := http.NewServeMux()
	protectedRoutes.Handle("POST /api/protected/email/change-request", authMW(http.HandlerFunc(s.userHandler.HandleRequestEmailChange)))
	protectedRoutes.Handle("POST /api/protected/email/change-confirm", authMW(http.HandlerFunc(s.userHandler.HandleConfirmEmailChange)))

	protectedRoutes.Handle("GET /api/protected/profile", authMW(http.HandlerFunc(s.userHandler.HandleGetUserProfile)))
	protectedRoutes.Handle("GET /api/protected/overview", authMW(http.HandlerFunc(s.userHandler.HandleGetUserOverview)))

	protectedRoutes.Handle("POST /api/protected/2fa/register", authMW(http.HandlerFunc(s.authHandler.HandleRegisterTwoFactor)))
	protectedRoutes.Handle("POST /api/protected/2fa/verify-registration", authMW(http.HandlerFunc(s.authHandler.HandleVerifyTwoFactorCode)))
	protectedRoutes.Handle("POST /api/protected/2fa/request-email-code", authMW(http.HandlerFunc(s.authHandler.HandleRequestEmail2FACode)))
	protectedRoutes.Handle("DELETE /api/protected/2fa/disable", authMW(http.HandlerFunc(s.authHandler.HandleDisableTwoFactor)))
	protectedRoutes.Handle("POST /api/protected/change-password", authMW(http.HandlerFunc(s.userHandler.HandleChangePassword)))

	// CART / CHECKOUT API
	protectedRoutes.Handle("POST /api/protected/cart", authMW(http.HandlerFunc(s.orderHandler.HandleAddToCart)))
	protectedRoutes.Handle("GET /api/protected/cart", authMW(http.HandlerFunc(s.orderHandler.HandleGetCart)))
	protectedRoutes.Handle("PATCH /api/protected/cart/quantity", authMW(http.HandlerFunc(s.orderHandler.HandleUpdateQuantity)))
	protectedRoutes.Handle("POST /api/protected/cart/bank-account", authMW(http.HandlerFunc(s.orderHandler.HandleAttachBankAccount)))
	protectedRoutes.Handle("DELETE /api/protected/cart", authMW(http.HandlerFunc(s.orderHandler.HandleRemoveCart)))
	protectedRoutes.Handle("POST /api/protected/checkout", authMW(http.HandlerFunc(s.orderHandler.HandleCheckout)))
	protectedRoutes.Handle("POST /api/protected/checkout/complete", authMW(http.HandlerFunc(s.orderHandler.HandleCompleteOrder)))
	protectedRoutes.Handle("GET /api/protected/checkouts", authMW(http.HandlerFunc(s.orderHandler.HandleUserCheckouts)))

	// BANK ACCOUNTS API
	protectedRoutes.Handle("POST /api/protected/bank-accounts/link-token", authMW(http.HandlerFunc(s.bankHandler.HandleCreateLinkToken)))
	protectedRoutes.Handle("POST /api/protected/bank-accounts", authMW(http.HandlerFunc(s.bankHandler.HandleLinkBankAccount)))
	protectedRoutes.Handle("GET /api/protected/bank-accounts", authMW(http.HandlerFunc(s.bankHandler.HandleListBankAccounts)))
	protectedRoutes.Handle("DELETE /api/protected/bank-accounts/{bankAccountID}", authMW(http.HandlerFunc(s.bankHandler.HandleRemoveBankAccount)))

	// WALLET API
	protectedRoutes.Handle("GET /api/protected/wallet/balance", authMW(http.HandlerFunc(s.walletHandler.HandleGetBalance)))
	protectedRoutes.Handle("GET /api/protected/wallet/history", authMW(http.HandlerFunc(s.walletHandler.HandleGetHistory)))
	protectedRoutes.Handle("POST /api/protected/wallet/withdraw", authMW(http.HandlerFunc(s.walletHandler.HandleWithdraw)))

	// PAYMENTS / DIVIDENDS API
	protectedRoutes.Handle("GET /api/protected/transactions", authMW(http.HandlerFunc(s.paymentHandler.HandleUserTransactions)))
	protectedRoutes.Handle("GET /api/protected/portfolio-value", authMW(http.HandlerFunc(s.paymentHandler.HandleUserPortfolioValue)))
	protectedRoutes.Handle("GET /api/protected/dividends", authMW(http.HandlerFunc(s.dividendHandler.HandleUserDividends)))
	protectedRoutes.Handle("GET /api/protected/dividends/total", authMW(http.HandlerFunc(s.dividendHandler.HandleUserDividendTotal)))

	// ADMIN API
	protectedRoutes.Handle("POST /api/protected/admin/portfolios",
		authMW(adminMW(http.HandlerFunc(s.portfolioHandler.HandleCreatePortfolio))))
	protectedRoutes.Handle("PUT /api/protected/admin/portfolios/{portfolioID}",
		authMW(adminMW(s.portfolioHandler.ValidatePortfolioPathParamsMiddleware(http.HandlerFunc(s.portfolioHandler.HandleUpdatePortfolio), "portfolioID"))))
	protectedRoutes.Handle("DELETE /api/protected/admin/portfolios/{portfolioID}",
		authMW(adminMW(s.portfolioHandler.ValidatePortfolioPathParamsMiddleware(http.HandlerFunc(s.portfolioHandler.HandleDeletePortfolio), "portfolioID"))))
	protectedRoutes.Handle("POST /api/protected/admin/dividends",
		authMW(adminMW(http.HandlerFunc(s.dividendHandler.HandleDistributeDividend))))
	protectedRoutes.Handle("GET /api/protected/admin/portfolios/{portfolioID}/dividends",
		authMW(adminMW(s.portfolioHandler.ValidatePortfolioPathParamsMiddleware(http.HandlerFunc(s.dividendHandler.HandlePortfolioDividends), "portfolioID"))))
	protectedRoutes.Handle("GET /api/protected/admin/transactions",
		authMW(adminMW(http.HandlerFunc(s.paymentHandler.HandleAllTransactions))))
	protectedRoutes.Handle("GET /api/protected/admin/raised-capital",
		authMW(adminMW(http.HandlerFunc(s.paymentHandler.HandleRaisedCapital))))
	protectedRoutes.Handle("GET /api/protected/admin/capital",
		authMW(adminMW(http.HandlerFunc(s.paymentHandler.HandleCapital))))
	protectedRoutes.Handle("GET /api/protected/admin/overview",
		authMW(adminMW(http.HandlerFunc(s.userHandler.HandleGetAdminOverview))))
	protectedRoutes.Handle("POST /api/protected/admin/media",
		authMW(adminMW(http.HandlerFunc(s.mediaHandler.HandleRegisterMedia))))
	protectedRoutes.Handle("DELETE /api/protected/admin/media/{mediaID}",
		authMW(adminMW(http.HandlerFunc(s.mediaHandler.HandleDeleteMedia))))

	// Refresh token routes
	refreshTokenRoutes := http.NewServeMux()
	refreshTokenRoutes.Handle("PUT /api/refresh/token", s.authService.JWTRefreshTokenMiddleware()(http.HandlerFunc(s.authHandler.RefreshAccessToken)))

	// Main router
	mainRouter := http.NewServeMux()

	mainRouter.Handle("/api/", publicRoutes)
	mainRouter.Handle("/api/protected/", protectedRoutes)
	mainRouter.Handle("/api/refresh/", refreshTokenRoutes)
	mainRouter.Handle("/", http.HandlerFunc(notFoundHandler))

	s.router = mainRouter
}

// walletOpener adapts the wallet service to the user package's verification
// hook. New accounts start with an empty ledger.
type walletOpener struct {
	wallets wallets.Service
}

func (w walletOpener) Open(ctx context.Context, userID string) error {
	_, err := w.wallets.Open(ctx, userID, 0)
	return err
}

func main() {
	if err := checkConfiguration(); err != nil {
		log.Fatalf("Missing configuration, update to start server")
	}

	dbService, err := database.NewDBService()
	if err != nil {
		log.Fatalf("Could not initialize database: %v", err)
	}
	defer dbService.Close()

	if err := database.EnsureSchema(context.Background(), dbService.DB); err != nil {
		log.Fatalf("Could not ensure database schema: %v", err)
	}

	newEmailService := emailService.NewEmailService()

	walletRepo := wallets.NewWalletRepository(dbService.DB)
	walletService := wallets.NewWalletService(dbService.DB, walletRepo)

	authRepo := auth.NewUserRepository(dbService.DB)
	userRepo := user.NewUserRepository(dbService.DB)

	sessionManager := auth.NewSessionManager()
	jwtManager := auth.NewJWTManager()
	authenticator := auth.Authenticator{}

	userService := user.NewUserService(userRepo, newEmailService, walletOpener{wallets: walletService})
	userHandler := user.NewHandler(userService)
	authService := auth.NewAuthService(authRepo, userService, sessionManager, jwtManager, newEmailService, authenticator)
	authHandler := auth.NewHandler(authService)
	sessionManager.StartSessionTokenCleanup(10 * time.Minute)

	portfolioRepo := portfolios.NewPortfolioRepository(dbService.DB)
	portfolioService := portfolios.NewPortfolioService(portfolioRepo)
	portfolioHandler := portfolios.NewHandler(portfolioService, respondJSON, respondError)

	mediaRepo := media.NewMediaRepository(dbService.DB)
	mediaService := media.NewMediaService(mediaRepo)
	mediaHandler := media.NewHandler(mediaService, respondJSON, respondError)

	plaidClient := plaid.NewClient()
	bankRepo := plaid.NewBankRepository(dbService.DB)
	bankService := plaid.NewBankService(plaidClient, bankRepo)
	bankHandler := plaid.NewHandler(bankService, respondJSON, respondError)

	paypalClient := paypal.NewClient()

	providers := payments.Registry{}
	providers.Register(plaid.NewProvider(plaidClient, bankService))
	providers.Register(paypal.NewProvider(paypalClient))

	paymentRepo := payments.NewPaymentRepository(dbService.DB)
	paymentService := payments.NewPaymentService(paymentRepo, providers)
	paymentHandler := payments.NewHandler(paymentService, respondJSON, respondError)

	orderRepo := orders.NewOrderRepository(dbService.DB)
	orderService := orders.NewOrderService(dbService.DB, orderRepo, portfolioService, paymentRepo, providers, bankService, newEmailService, userService)
	orderHandler := orders.NewHandler(orderService, respondJSON, respondError)

	dividendRepo := dividends.NewDividendRepository(dbService.DB)
	dividendService := dividends.NewDividendService(dbService.DB, dividendRepo, portfolioService, walletService, newEmailService, userService)
	dividendHandler := dividends.NewHandler(dividendService, respondJSON, respondError)

	walletHandler := wallets.NewHandler(walletService, respondJSON, respondError)

	server := NewServer(authHandler, authService, userHandler, portfolioHandler, orderHandler, paymentHandler, bankHandler, dividendHandler, walletHandler, mediaHandler)
	server.RegisterRoutes()

	if err := StartTransferSettlementScheduler(orderService); err != nil {
		log.Fatalf("Scheduler didn't start, stoping the app ...")
	}

	loggingHandler := loggingMiddleware(http.HandlerFunc(server.router.ServeHTTP))
	log.Println("Starting perf on port 6060...")
	go func() {
		log.Println(http.ListenAndServe("localhost:6060", nil))
	}()
	log.Println("Server starting on port 8080...")
	if err := http.ListenAndServe(":8080", loggingHandler); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// StartTransferSettlementScheduler sweeps pending bank transfer intents.
// Plaid transfers settle asynchronously, so completed orders are picked up
// here rather than on the checkout request.
func StartTransferSettlementScheduler(orderService orders.Service) error {
	c := cron.New()
	_, err := c.AddFunc("@every 1m", func() {
		orderService.SettlePendingIntents(context.Background())
	})
	if err != nil {
		return err
	}
	c.Start()
	return nil
}
