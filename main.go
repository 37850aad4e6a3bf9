package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/username/limoney/backend/src/bankdata"
	"github.com/username/limoney/backend/src/config"
	"github.com/username/limoney/backend/src/database"
	"github.com/username/limoney/backend/src/handlers"
	"github.com/username/limoney/backend/src/ledger"
	"github.com/username/limoney/backend/src/logger"
	"github.com/username/limoney/backend/src/security"
	"github.com/username/limoney/backend/src/services"
	"github.com/username/limoney/backend/src/transfer"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newBankProvider() bankdata.Provider {
	if config.Cfg.BankProvider == "http" {
		logger.L.Info("Using HTTP banking-data provider", "baseURL", config.Cfg.BankProviderBaseURL)
		return bankdata.NewHTTPProvider(config.Cfg.BankProviderBaseURL, config.Cfg.BankProviderSecret)
	}
	logger.L.Info("Using sandbox banking-data provider")
	return bankdata.NewSandboxProvider()
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Limoney backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}
	if len(config.Cfg.CSRFAuthKey) < 32 {
		logger.L.Error("CSRF_AUTH_KEY must be at least 32 bytes long.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	emailService := services.NewEmailService()
	handlers.InitializeGoogleOAuthConfig()

	engine := ledger.NewEngine(database.DB)
	machine := transfer.NewMachine(database.DB)
	balanceService := services.NewBalanceService(engine, config.Cfg.BalanceCacheTTL)
	engine.SetChangeListener(balanceService.Invalidate)
	machine.SetChangeListener(balanceService.Invalidate)

	userHandler := handlers.NewUserHandler(authService)
	txHandler := handlers.NewTransactionHandler(engine)
	accountHandler := handlers.NewAccountHandler(balanceService)
	bankDataHandler := handlers.NewBankDataHandler(newBankProvider(), engine)
	reimbursementHandler := handlers.NewReimbursementHandler(machine, emailService)
	budgetHandler := handlers.NewBudgetHandler()

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	// Public routes.
	apiRouter.HandleFunc("GET /api/auth/csrf", handlers.GetCSRFToken)
	apiRouter.HandleFunc("GET /api/auth/google/login", userHandler.HandleGoogleLogin)
	apiRouter.HandleFunc("GET /api/auth/google/callback", userHandler.HandleGoogleCallback)

	authActionRouter := http.NewServeMux()
	authActionRouter.HandleFunc("POST /login", userHandler.LoginUserHandler)
	authActionRouter.HandleFunc("POST /register", userHandler.RegisterUserHandler)
	authActionRouter.HandleFunc("POST /refresh", userHandler.RefreshTokenHandler)
	authActionRouter.HandleFunc("POST /logout", userHandler.LogoutUserHandler)
	apiRouter.Handle("/api/auth/", http.StripPrefix("/api/auth", handlers.CSRFMiddleware()(authActionRouter)))

	csrfProtection := handlers.CSRFMiddleware()
	protected := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(userHandler.AuthMiddleware(handler))
	}
	adminOnly := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(userHandler.AuthMiddleware(handlers.RequireAdmin(handler)))
	}

	apiRouter.Handle("GET /api/user/me", protected(userHandler.HandleGetCurrentUser))

	apiRouter.Handle("GET /api/accounts", protected(accountHandler.HandleListAccounts))
	apiRouter.Handle("GET /api/accounts/balance", protected(accountHandler.HandleGetBalance))

	apiRouter.Handle("GET /api/transactions", protected(txHandler.HandleListTransactions))
	apiRouter.Handle("POST /api/transactions", protected(txHandler.HandleCreateTransaction))
	apiRouter.Handle("GET /api/transactions/search", protected(txHandler.HandleSearchTransactions))
	apiRouter.Handle("GET /api/transactions/recent", protected(txHandler.HandleRecentTransactions))
	apiRouter.Handle("POST /api/transactions/reset", protected(txHandler.HandleResetTransactions))
	apiRouter.Handle("PUT /api/transactions/{id}", protected(txHandler.HandleUpdateTransaction))
	apiRouter.Handle("DELETE /api/transactions/{id}", protected(txHandler.HandleDeleteTransaction))
	apiRouter.Handle("PUT /api/transactions/{id}/notes", protected(txHandler.HandleUpdateNotes))
	apiRouter.Handle("POST /api/transactions/{id}/flag", protected(txHandler.HandleToggleFlag))

	apiRouter.Handle("POST /api/bankdata/link", protected(bankDataHandler.HandleLinkItem))
	apiRouter.Handle("GET /api/bankdata/items", protected(bankDataHandler.HandleListLinkedItems))
	apiRouter.Handle("POST /api/bankdata/import", protected(bankDataHandler.HandleImportSnapshots))
	apiRouter.Handle("POST /api/bankdata/sandbox/public-token", protected(bankDataHandler.HandleSandboxPublicToken))

	apiRouter.Handle("GET /api/reimbursements", protected(reimbursementHandler.HandleListRequests))
	apiRouter.Handle("POST /api/reimbursements", protected(reimbursementHandler.HandleCreateRequest))
	apiRouter.Handle("GET /api/reimbursements/pending", protected(reimbursementHandler.HandleListPendingApprovals))
	apiRouter.Handle("GET /api/reimbursements/{id}", protected(reimbursementHandler.HandleGetRequest))
	apiRouter.Handle("POST /api/reimbursements/{id}/approve", protected(reimbursementHandler.HandleApproveRequest))
	apiRouter.Handle("POST /api/reimbursements/{id}/reject", protected(reimbursementHandler.HandleRejectRequest))
	apiRouter.Handle("DELETE /api/reimbursements/{id}", protected(reimbursementHandler.HandleCancelRequest))
	apiRouter.Handle("POST /api/reimbursements/{id}/flag", protected(reimbursementHandler.HandleToggleFlag))

	apiRouter.Handle("GET /api/budgets", protected(budgetHandler.HandleGetBudgets))
	apiRouter.Handle("POST /api/budgets", protected(budgetHandler.HandleSetBudget))
	apiRouter.Handle("DELETE /api/budgets", protected(budgetHandler.HandleDeleteBudget))

	// Admin console.
	apiRouter.Handle("GET /api/admin/reimbursements", adminOnly(reimbursementHandler.HandleListAllRequests))
	apiRouter.Handle("POST /api/admin/reimbursements/{id}/override", adminOnly(reimbursementHandler.HandleAdminOverride))
	apiRouter.Handle("GET /api/admin/transactions/flagged", adminOnly(txHandler.HandleFlaggedTransactions))
	apiRouter.Handle("POST /api/admin/transactions/{id}/clear-flag", adminOnly(txHandler.HandleClearFlag))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "LIMONEY Backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
