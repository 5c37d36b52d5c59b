package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/jackpot/internal/chat"
	"github.com/MikeSquared-Agency/jackpot/internal/pool"
	"github.com/MikeSquared-Agency/jackpot/internal/store"
)

// MessageHandler is satisfied by *processor.Processor.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg chat.Message) chat.Reply
}

// PoolReader is satisfied by *pool.Ledger.
type PoolReader interface {
	Bind(threadID, contract string) error
	Reconcile(ctx context.Context, threadID string) (pool.Status, error)
	GetStatus(threadID string) (pool.Status, error)
	Members(threadID string) ([]pool.Member, error)
	ProjectPayout(threadID string, winnings int64) (map[string]int64, error)
	Len() int
}

// Counter reports how many live entries a store holds.
type Counter interface {
	Len() int
}

// WalletStore is satisfied by *store.Store.
type WalletStore interface {
	LinkWallet(ctx context.Context, participantID, wallet string) error
	ListPurchases(ctx context.Context, threadID string, limit int) ([]store.PurchaseRecord, error)
}

// Deps are the components the API exposes. Wallets may be nil when no
// database is configured.
type Deps struct {
	Messages MessageHandler
	Pools    PoolReader
	Contexts Counter
	Wallets  WalletStore
}

type Server struct {
	router   *chi.Mux
	port     int
	apiToken string
	deps     Deps
	logger   *slog.Logger
}

func NewServer(port int, apiToken string, deps Deps, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		apiToken: apiToken,
		deps:     deps,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/jackpot/status", s.status)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/messages", s.postMessage)
		r.Get("/pools/{threadID}", s.getPool)
		r.Put("/pools/{threadID}/contract", s.putPoolContract)
		r.Get("/pools/{threadID}/purchases", s.listPurchases)
		r.Put("/wallets/{participantID}", s.putWallet)
	})

	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"agent":  "jackpot",
		"status": "live",
	}
	if s.deps.Contexts != nil {
		body["conversations"] = s.deps.Contexts.Len()
	}
	if s.deps.Pools != nil {
		body["pools"] = s.deps.Pools.Len()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
