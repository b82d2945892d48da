package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/wakala/bankrecon/internal/ingestion"
	"github.com/wakala/bankrecon/internal/reconciliation"
	"github.com/wakala/bankrecon/internal/repository"
)

// Deps are the services and stores the API is built on.
type Deps struct {
	Statements     *repository.StatementRepo
	Transactions   *repository.TransactionRepo
	Bookings       *repository.BookingRepo
	Payments       *repository.PaymentRepo
	Ingestion      *ingestion.Service
	Reconciliation *reconciliation.Service
	Log            zerolog.Logger
	MaxUploadBytes int64
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(d Deps) http.Handler {
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	h := &Handlers{
		statementRepo: d.Statements,
		txnRepo:       d.Transactions,
		bookingRepo:   d.Bookings,
		paymentRepo:   d.Payments,
		ingestionSvc:  d.Ingestion,
		reconSvc:      d.Reconciliation,
		validate:      validator.New(),
		maxUpload:     maxUpload,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(requestLogger(d.Log.With().Str("component", "api").Logger()))
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/organisations/{orgID}", func(r chi.Router) {
			r.Post("/statements", h.ImportStatements)
			r.Get("/statements", h.ListStatements)
			r.Get("/transactions", h.ListTransactions)
			r.Get("/transactions/unreconciled", h.ListUnreconciled)
			r.Get("/bookings/open", h.ListOpenBookings)
			r.Post("/bookings", h.CreateBooking)
			r.Get("/suggestions", h.ListSuggestions)
		})

		// Statements.
		r.Get("/statements/{id}", h.GetStatement)
		r.Delete("/statements/{id}", h.DeleteStatement)
		r.Post("/statements/{id}/auto-reconcile", h.AutoReconcile)

		// Transactions.
		r.Post("/transactions/{id}/reconcile", h.ManualReconcile)

		// Bookings.
		r.Get("/bookings/{id}", h.GetBooking)
		r.Put("/bookings/{id}/total", h.UpdateBookingTotal)
		r.Post("/bookings/{id}/cash-payments", h.RecordCashPayment)
		r.Get("/bookings/{id}/payments", h.ListPayments)
		r.Get("/bookings/{id}/reference", h.BookingReference)

		// Structured references.
		r.Get("/references/{ref}", h.ValidateReference)
	})

	return r
}
