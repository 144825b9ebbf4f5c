// Package api serves the auction and trait engine over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cloudx-io/scionauction/core"
	"github.com/cloudx-io/scionauction/store"
)

// CallerHeader carries the address a request acts as.
const CallerHeader = "X-Caller"

// Server routes HTTP requests to an Engine.
type Server struct {
	engine  *core.Engine
	journal store.Journal
	hub     *Hub
	origins []string
	log     *zap.Logger
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.log = logger }
}

// WithJournal serves /v1/events from journal.
func WithJournal(journal store.Journal) Option {
	return func(s *Server) { s.journal = journal }
}

// WithHub serves /v1/events/stream from hub.
func WithHub(hub *Hub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithAllowedOrigins restricts CORS and websocket origins. Empty allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer builds the router for engine.
func NewServer(engine *core.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", CallerHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/auction", s.handleAuctionStatus)
		r.With(s.requireCaller).Post("/auction/start", s.handleStartAuction)
		r.With(s.requireCaller).Post("/auction/finish", s.handleFinishAuction)

		r.Route("/bids", func(r chi.Router) {
			r.Get("/", s.handleListBids)
			r.Get("/count", s.handleCountBids)
			r.Get("/{index}", s.handleGetBid)
			r.Group(func(r chi.Router) {
				r.Use(s.requireCaller)
				r.Post("/", s.handlePlaceBid)
				r.Post("/{index}/increase", s.handleIncreaseBid)
				r.Delete("/{index}", s.handleCancelBid)
			})
		})

		r.Get("/classes", s.handleClassTable)
		r.Get("/classes/resolve", s.handleResolveTier)
		r.With(s.requireCaller).Put("/classes", s.handleSetBands)

		r.Get("/weight-bands", s.handleWeightBands)
		r.With(s.requireCaller).Put("/weight-bands", s.handleSetWeightBands)

		r.Get("/catalog", s.handleCategories)
		r.Get("/catalog/{category}", s.handleCatalog)
		r.With(s.requireCaller).Put("/catalog/{category}", s.handleSetCategory)

		r.Get("/passes/{id}", s.handleGetPass)
		r.With(s.requireCaller).Post("/passes/claim", s.handleClaimPasses)

		r.Get("/promotion/prices", s.handlePromotionPrices)
		r.Group(func(r chi.Router) {
			r.Use(s.requireCaller)
			r.Post("/promotion/mint", s.handleMintPromotion)
			r.Put("/promotion/prices", s.handleSetPromotionPrices)
			r.Post("/promotion/whitelist", s.handleAddPromotionAddresses)
			r.Post("/promotion/buy", s.handleBuyPromotion)
		})

		r.Get("/scions/{id}", s.handleGetScion)
		r.Get("/reroll/price", s.handleRerollPrice)
		r.With(s.requireCaller).Post("/scions", s.handleGenerate)
		r.With(s.requireCaller).Post("/scions/{id}/reroll", s.handleReroll)

		r.Route("/creatures", func(r chi.Router) {
			r.Get("/", s.handleCreatureLines)
			r.Get("/{line}/sale", s.handleBatchSale)
			r.Get("/{line}/{id}", s.handleGetCreature)
			r.Group(func(r chi.Router) {
				r.Use(s.requireCaller)
				r.Post("/{line}/sale", s.handleTriggerBatchSale)
				r.Post("/{line}/claim", s.handleClaimCreature)
			})
		})

		r.Get("/events", s.handleEvents)
		r.Get("/events/stream", s.handleEventStream)
	})

	return r
}

// logRequests logs one line per request with zap.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.requestLogger(r).Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.log.With(zap.String("request_id", middleware.GetReqID(r.Context())))
}

type callerKey struct{}

// requireCaller rejects requests without an X-Caller address.
func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := core.NormalizeAddress(r.Header.Get(CallerHeader))
		if caller == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error: "missing " + CallerHeader + " header",
				Kind:  string(core.KindAuthorization),
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}
