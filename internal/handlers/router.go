package handlers

import (
	"net/http"

	"github.com/finxlab/finx/internal/handlers/middleware"
	"github.com/finxlab/finx/internal/logger"
)

type Services struct {
	Auth      authServiceFull
	Market    marketService
	Portfolio portfolioService
}

// authServiceFull is everything the HTTP surface needs from auth:
// the handler operations plus Authenticate for the middleware.
type authServiceFull interface {
	authService
	wsAuthenticator
}

// NewRouter wires every route. The websocket endpoint is mounted outside
// the logging chain: the status-capturing writer would hide the Hijacker
// the upgrade needs.
func NewRouter(services Services, ws *WSHandler, log logger.Logger) http.Handler {
	authHandler := NewAuth(services.Auth, log)
	marketHandler := NewMarket(services.Market, log)
	portfolioHandler := NewPortfolio(services.Portfolio, log)

	requireAuth := middleware.AuthMiddleware(services.Auth)

	api := http.NewServeMux()

	api.HandleFunc("POST /api/auth/register", authHandler.Register)
	api.HandleFunc("POST /api/auth/login", authHandler.Login)
	api.HandleFunc("POST /api/auth/refresh", authHandler.Refresh)
	api.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	api.Handle("POST /api/auth/logout_all", requireAuth(http.HandlerFunc(authHandler.LogoutAll)))

	api.Handle("GET /api/market/quotes", requireAuth(http.HandlerFunc(marketHandler.Quotes)))
	api.Handle("GET /api/market/quote/{symbol}", requireAuth(http.HandlerFunc(marketHandler.Quote)))
	api.Handle("GET /api/market/symbols", requireAuth(http.HandlerFunc(marketHandler.Symbols)))
	api.Handle("GET /api/market/search", requireAuth(http.HandlerFunc(marketHandler.Search)))

	api.Handle("GET /api/portfolios", requireAuth(http.HandlerFunc(portfolioHandler.List)))
	api.Handle("POST /api/portfolios", requireAuth(http.HandlerFunc(portfolioHandler.Create)))
	api.Handle("GET /api/portfolios/{id}", requireAuth(http.HandlerFunc(portfolioHandler.Get)))
	api.Handle("GET /api/portfolios/{id}/trades", requireAuth(http.HandlerFunc(portfolioHandler.RecentTrades)))
	api.Handle("POST /api/portfolios/{id}/trades", requireAuth(http.HandlerFunc(portfolioHandler.CreateTrade)))

	api.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	root := http.NewServeMux()
	root.Handle("/api/", middleware.LoggerMiddleware(log)(api))
	root.HandleFunc("GET /ws", ws.Serve)

	return root
}
