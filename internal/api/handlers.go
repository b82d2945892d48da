package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wakala/bankrecon/internal/domain"
	"github.com/wakala/bankrecon/internal/ingestion"
	"github.com/wakala/bankrecon/internal/logger"
	"github.com/wakala/bankrecon/internal/ogm"
	"github.com/wakala/bankrecon/internal/reconciliation"
	"github.com/wakala/bankrecon/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	statementRepo *repository.StatementRepo
	txnRepo       *repository.TransactionRepo
	bookingRepo   *repository.BookingRepo
	paymentRepo   *repository.PaymentRepo
	ingestionSvc  *ingestion.Service
	reconSvc      *reconciliation.Service
	validate      *validator.Validate
	maxUpload     int64
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logger.FromContext(r.Context())
		l.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto status codes. Anything unknown
// is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *ingestion.ParseError
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &perr):
		writeJSON(w, r, http.StatusUnprocessableEntity, map[string]any{
			"error": err.Error(), "line": perr.Line, "record": string(perr.Record),
		})
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyReconciled), errors.Is(err, domain.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		l := logger.FromContext(r.Context())
		l.Error().Err(err).Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return h.validate.Struct(v)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.DateOnly, s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- Statements ---

func (h *Handlers) ImportStatements(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, r, http.StatusBadRequest, "file field is required")
		return
	}

	files := make([]ingestion.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "open file: "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "read file: "+err.Error())
			return
		}
		files = append(files, ingestion.File{Name: fh.Filename, Data: data})
	}

	var results []ingestion.ImportResult
	if len(files) == 1 {
		res, err := h.ingestionSvc.ImportStatement(r.Context(), orgID, files[0].Name, files[0].Data)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		results = append(results, *res)
	} else {
		results, err = h.ingestionSvc.ImportBatch(r.Context(), orgID, files)
		if err != nil {
			if len(results) > 0 {
				// Earlier files of the batch are committed; tell the caller which.
				l := logger.FromContext(r.Context())
				l.Error().Err(err).Int("stored", len(results)).Msg("batch import stopped")
				writeJSON(w, r, http.StatusInternalServerError, map[string]any{
					"error":   "internal error",
					"results": results,
				})
				return
			}
			writeServiceError(w, r, err)
			return
		}
	}

	writeJSON(w, r, http.StatusCreated, map[string]any{"results": results})
}

func (h *Handlers) ListStatements(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	filter := repository.StatementFilter{
		OrganisationID: orgID,
		From:           parseTime(q.Get("from")),
		To:             parseTime(q.Get("to")),
		Page:           parseIntDefault(q.Get("page"), 1),
		Limit:          parseIntDefault(q.Get("limit"), 50),
	}

	stmts, total, err := h.statementRepo.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"statements": stmts,
		"total":      total,
		"page":       filter.Page,
		"limit":      filter.Limit,
	})
}

// --- Transactions ---

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	filter := repository.TransactionFilter{
		OrganisationID: orgID,
		From:           parseTime(q.Get("from")),
		To:             parseTime(q.Get("to")),
		Page:           parseIntDefault(q.Get("page"), 1),
		Limit:          parseIntDefault(q.Get("limit"), 50),
	}
	if v := q.Get("statement_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid statement_id")
			return
		}
		filter.StatementID = id
	}
	if v := q.Get("reconciled"); v != "" {
		reconciled, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid reconciled flag")
			return
		}
		filter.Reconciled = &reconciled
	}

	txns, total, err := h.txnRepo.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        total,
		"page":         filter.Page,
		"limit":        filter.Limit,
	})
}

func (h *Handlers) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stmt, err := h.statementRepo.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if stmt.Transactions, err = h.txnRepo.ListByStatement(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, stmt)
}

func (h *Handlers) DeleteStatement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stmt, err := h.statementRepo.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.statementRepo.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.reconSvc.InvalidateSuggestions(stmt.OrganisationID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AutoReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.statementRepo.GetByID(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	report, err := h.reconSvc.AutoReconcileWithReport(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// --- Reconciliation ---

func (h *Handlers) ListUnreconciled(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	txns, err := h.reconSvc.UnreconciledTransactions(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"transactions": txns, "total": len(txns)})
}

func (h *Handlers) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	suggestions, err := h.reconSvc.Suggestions(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"suggestions": suggestions, "total": len(suggestions)})
}

type reconcileRequest struct {
	BookingID int64 `json:"booking_id" validate:"required,gt=0"`
}

func (h *Handlers) ManualReconcile(w http.ResponseWriter, r *http.Request) {
	txnID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req reconcileRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.reconSvc.ManualReconcile(r.Context(), txnID, req.BookingID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, outcomeStatus(res.Outcome), res)
}

func outcomeStatus(o reconciliation.Outcome) int {
	switch o {
	case reconciliation.OutcomeReconciled:
		return http.StatusOK
	case reconciliation.OutcomeTransactionNotFound, reconciliation.OutcomeBookingNotFound:
		return http.StatusNotFound
	case reconciliation.OutcomeAlreadyReconciled, reconciliation.OutcomeConflict:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// --- Bookings ---

type createBookingRequest struct {
	TotalAmount       string `json:"total_amount" validate:"required,numeric"`
	Confirmed         bool   `json:"confirmed"`
	GuardianFirstName string `json:"guardian_first_name" validate:"max=100"`
	GuardianLastName  string `json:"guardian_last_name" validate:"max=100"`
	ActivityName      string `json:"activity_name" validate:"max=200"`
	ActivityStartDate string `json:"activity_start_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req createBookingRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	total, err := decimal.NewFromString(req.TotalAmount)
	if err != nil || total.IsNegative() {
		writeError(w, r, http.StatusBadRequest, "total_amount must be a non-negative number")
		return
	}

	b := &domain.Booking{
		OrganisationID: orgID,
		TotalAmount:    total,
		Confirmed:      req.Confirmed,
		Guardian:       domain.Guardian{FirstName: req.GuardianFirstName, LastName: req.GuardianLastName},
		ActivityName:   req.ActivityName,
	}
	if start := parseTime(req.ActivityStartDate); start != nil {
		b.ActivityStartDate = *start
	}
	if err := h.bookingRepo.Create(r.Context(), b); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.reconSvc.InvalidateSuggestions(orgID)

	writeJSON(w, r, http.StatusCreated, b)
}

func (h *Handlers) ListOpenBookings(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	bookings, err := h.reconSvc.OpenBookings(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"bookings": bookings, "total": len(bookings)})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.bookingRepo.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

type updateTotalRequest struct {
	TotalAmount string `json:"total_amount" validate:"required,numeric"`
}

func (h *Handlers) UpdateBookingTotal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req updateTotalRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	total, err := decimal.NewFromString(req.TotalAmount)
	if err != nil || total.IsNegative() {
		writeError(w, r, http.StatusBadRequest, "total_amount must be a non-negative number")
		return
	}

	b, err := h.bookingRepo.UpdateTotal(r.Context(), id, total)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.reconSvc.InvalidateSuggestions(b.OrganisationID)

	writeJSON(w, r, http.StatusOK, b)
}

type cashPaymentRequest struct {
	Amount    string `json:"amount" validate:"required,numeric"`
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reference string `json:"reference" validate:"max=64"`
}

func (h *Handlers) RecordCashPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req cashPaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "amount must be a number")
		return
	}
	date := time.Now().UTC()
	if d := parseTime(req.Date); d != nil {
		date = *d
	}

	p, b, err := h.reconSvc.RecordCashPayment(r.Context(), id, amount, date, req.Reference)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{"payment": p, "booking": b})
}

func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.bookingRepo.GetByID(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	payments, err := h.paymentRepo.ListByBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"payments": payments, "total": len(payments)})
}

// --- Structured references ---

func (h *Handlers) BookingReference(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ref, err := ogm.Generate(id)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"booking_id": id, "reference": ref})
}

// ValidateReference checks a reference given either in display form, with
// the slashes percent-encoded, or as its twelve bare digits.
func (h *Handlers) ValidateReference(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid reference encoding")
		return
	}
	ref := raw
	if formatted, ok := ogm.FormatDigits(raw); ok {
		ref = formatted
	}

	resp := map[string]any{"reference": ref, "valid": false}
	id, ok := ogm.ExtractBookingID(ref)
	if !ok {
		writeJSON(w, r, http.StatusOK, resp)
		return
	}
	resp["valid"] = true
	resp["booking_id"] = id

	// A valid reference need not belong to a stored booking.
	b, err := h.bookingRepo.GetByReference(r.Context(), ref)
	switch {
	case err == nil:
		resp["booking"] = b
	case !errors.Is(err, domain.ErrNotFound):
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}
