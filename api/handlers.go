/*
handlers.go - HTTP API handlers for the royalty service

PURPOSE:
  Exposes the royalty ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to royalty.Ledger.

ENDPOINTS:
  Public:
    GET    /health
    POST   /api/auth/login                      Email/password → bearer token

  Admin (allow-listed emails):
    GET    /api/admin/authors                   List authors, newest first
    POST   /api/admin/authors                   Create login + author profile
    GET    /api/admin/authors/{id}              Get author
    PUT    /api/admin/authors/{id}              Partial edit
    DELETE /api/admin/authors/{id}              Delete author and login
    GET    /api/admin/authors/{id}/books        Books by title
    GET    /api/admin/authors/{id}/withdrawals  Withdrawal history
    POST   /api/admin/authors/{id}/withdrawals  Withdraw on the author's behalf
    POST   /api/admin/books                     Create book
    GET    /api/admin/books/{id}/sales          Sales of a book
    POST   /api/admin/sales                     Record sale (Idempotency-Key)
    POST   /api/admin/covers                    Upload cover image (multipart "cover")
    GET    /api/admin/withdrawals/pending       Payout queue, oldest first

  Author (signed-in author):
    GET    /api/me                              Own profile
    GET    /api/me/earnings                     Dashboard
    GET    /api/me/withdrawals                  Withdrawal history
    POST   /api/me/withdrawals                  Withdraw full balance (Idempotency-Key)

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with:
  - 400: Validation errors, invalid input
  - 401: Missing or bad credentials
  - 403: Not an admin / no author profile
  - 404: Author, book or wallet not found
  - 409: Duplicate email or idempotency key, lost concurrent update
  - 422: Withdrawal below the minimum (body carries "minimum")
  - 500: Storage failures and partial writes needing reconciliation

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Authentication and request logging
  - server.go: Router setup
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ritera/royalty-engine/covers"
	"github.com/ritera/royalty-engine/identity"
	"github.com/ritera/royalty-engine/royalty"
)

const (
	maxBodyBytes         = 1 << 20
	maxIdempotencyKeyLen = 200
	idempotencyHeader    = "Idempotency-Key"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *royalty.Ledger
	Auth   *identity.Local
	Tokens *identity.Tokens
	Covers covers.Store // nil disables uploads
	Log    *zap.Logger

	isAdmin     func(email string) bool
	corsOrigins []string
	scenarios   bool

	mu              sync.Mutex
	currentScenario string
}

type Options struct {
	Auth        *identity.Local
	Tokens      *identity.Tokens
	Covers      covers.Store
	Logger      *zap.Logger
	// IsAdmin reports whether a login email belongs to an operator.
	IsAdmin     func(email string) bool
	CORSOrigins []string
	// Scenarios mounts the demo loader, which deletes every author.
	Scenarios bool
}

// NewHandler creates a new handler over the ledger.
func NewHandler(ledger *royalty.Ledger, opts Options) *Handler {
	h := &Handler{
		Ledger:      ledger,
		Auth:        opts.Auth,
		Tokens:      opts.Tokens,
		Covers:      opts.Covers,
		Log:         opts.Logger,
		isAdmin:     opts.IsAdmin,
		corsOrigins: opts.CORSOrigins,
		scenarios:   opts.Scenarios,
	}
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	if h.isAdmin == nil {
		h.isAdmin = func(string) bool { return false }
	}
	if len(h.corsOrigins) == 0 {
		h.corsOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	return h
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login exchanges email and password for a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[LoginRequest](w, r)
	if !ok {
		return
	}

	cred, err := h.Auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
			return
		}
		h.Log.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}

	token, expires, err := h.Tokens.Issue(cred)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	role := "author"
	if h.isAdmin(cred.Email) {
		role = "admin"
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
		Email:     cred.Email,
		Role:      role,
	})
}

// =============================================================================
// AUTHOR HANDLERS (admin)
// =============================================================================

// ListAuthors returns all authors, newest first.
func (h *Handler) ListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.Ledger.ListAuthors(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list authors", err)
		return
	}

	dtos := make([]AuthorDTO, len(authors))
	for i, a := range authors {
		dtos[i] = toAuthorDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAuthor registers the author's login and profile.
func (h *Handler) CreateAuthor(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[CreateAuthorRequest](w, r)
	if !ok {
		return
	}

	author, err := h.Ledger.CreateAuthor(r.Context(), royalty.AuthorInput{
		Name:              req.Name,
		Email:             req.Email,
		Password:          req.Password,
		RoyaltyPercentage: req.RoyaltyPercentage,
		Bank:              req.Bank.toDomain(),
	})
	if err != nil {
		h.writeLedgerError(w, r, "Failed to create author", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthorDTO(author))
}

// GetAuthor returns a single author.
func (h *Handler) GetAuthor(w http.ResponseWriter, r *http.Request) {
	author, err := h.Ledger.GetAuthor(r.Context(), authorParam(r))
	if err != nil {
		h.writeLedgerError(w, r, "Failed to get author", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthorDTO(author))
}

// UpdateAuthor applies a partial admin edit.
func (h *Handler) UpdateAuthor(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[UpdateAuthorRequest](w, r)
	if !ok {
		return
	}

	author, err := h.Ledger.UpdateAuthor(r.Context(), authorParam(r), req.toPatch())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to update author", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthorDTO(author))
}

// DeleteAuthor removes the author, their ledger records and their login.
func (h *Handler) DeleteAuthor(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteAuthor(r.Context(), authorParam(r)); err != nil {
		h.writeLedgerError(w, r, "Failed to delete author", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAuthorBooks returns the author's books ordered by title.
func (h *Handler) ListAuthorBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.Ledger.ListBooks(r.Context(), authorParam(r))
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list books", err)
		return
	}

	dtos := make([]BookDTO, len(books))
	for i, b := range books {
		dtos[i] = toBookDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAuthorWithdrawals returns an author's withdrawals, newest first.
func (h *Handler) ListAuthorWithdrawals(w http.ResponseWriter, r *http.Request) {
	h.listWithdrawals(w, r, authorParam(r))
}

// RequestAuthorWithdrawal withdraws on an author's behalf.
func (h *Handler) RequestAuthorWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.requestWithdrawal(w, r, authorParam(r))
}

// =============================================================================
// BOOK AND SALE HANDLERS (admin)
// =============================================================================

// CreateBook assigns a new book to an author.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[CreateBookRequest](w, r)
	if !ok {
		return
	}

	book, err := h.Ledger.CreateBook(r.Context(), royalty.BookInput{
		AuthorID: royalty.AuthorID(req.AuthorID),
		Title:    req.Title,
		CoverURL: req.CoverURL,
	})
	if err != nil {
		h.writeLedgerError(w, r, "Failed to create book", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookDTO(book))
}

// ListBookSales returns a book's sales, oldest first.
func (h *Handler) ListBookSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.Ledger.ListSales(r.Context(), royalty.BookID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list sales", err)
		return
	}

	dtos := make([]SaleDTO, len(sales))
	for i, s := range sales {
		dtos[i] = toSaleDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordSale records a sale and accrues the author's royalty.
// A repeated Idempotency-Key returns the first result with 200.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	key, ok := idempotencyKey(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest[RecordSaleRequest](w, r)
	if !ok {
		return
	}

	res, err := h.Ledger.RecordSale(r.Context(), royalty.SaleInput{
		BookID:         royalty.BookID(req.BookID),
		Copies:         req.Copies,
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeLedgerError(w, r, "Failed to record sale", err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, SaleResultDTO{
		SaleID:       string(res.SaleID),
		AuthorID:     string(res.AuthorID),
		RoyaltyAdded: money(res.RoyaltyAdded),
		Balance:      money(res.Balance),
		Replayed:     res.Replayed,
	})
}

// UploadCover stores a cover image and returns its public URL.
func (h *Handler) UploadCover(w http.ResponseWriter, r *http.Request) {
	if h.Covers == nil {
		writeError(w, http.StatusServiceUnavailable, "Cover storage is not configured", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, covers.MaxSize+maxBodyBytes)
	if err := r.ParseMultipartForm(covers.MaxSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	file, header, err := r.FormFile("cover")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing cover file", err)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, _ := io.ReadFull(file, sniff)
		contentType = http.DetectContentType(sniff[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read cover", err)
			return
		}
	}

	url, err := covers.Put(r.Context(), h.Covers, file, header.Size, contentType)
	switch {
	case errors.Is(err, covers.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Cover too large", err)
		return
	case errors.Is(err, covers.ErrUnsupportedType), errors.Is(err, covers.ErrEmpty):
		writeError(w, http.StatusBadRequest, "Invalid cover", err)
		return
	case err != nil:
		h.Log.Error("cover upload failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to upload cover", err)
		return
	}
	writeJSON(w, http.StatusCreated, CoverDTO{URL: url})
}

// ListPendingWithdrawals returns the payout queue, oldest first.
func (h *Handler) ListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Ledger.PendingWithdrawals(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list withdrawals", err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalDTOs(pending))
}

// =============================================================================
// AUTHOR SELF-SERVICE HANDLERS
// =============================================================================

// Me returns the signed-in author's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toAuthorDTO(authorFrom(r.Context())))
}

// MyEarnings returns the dashboard for the signed-in author.
func (h *Handler) MyEarnings(w http.ResponseWriter, r *http.Request) {
	author := authorFrom(r.Context())

	e, err := h.Ledger.Earnings(r.Context(), author.ID)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to load earnings", err)
		return
	}

	books := make([]BookEarningsDTO, len(e.Books))
	for i, b := range e.Books {
		books[i] = BookEarningsDTO{
			BookID:   string(b.BookID),
			Title:    b.Title,
			CoverURL: b.CoverURL,
			Copies:   b.Copies,
			Amount:   money(b.Amount),
		}
	}

	minimum := h.Ledger.MinimumWithdrawal()
	writeJSON(w, http.StatusOK, EarningsDTO{
		Author:            toAuthorDTO(author),
		Books:             books,
		BookCount:         len(books),
		TotalCopies:       e.TotalCopies,
		TotalAmount:       money(e.TotalAmount),
		Balance:           money(e.Balance),
		Paid:              money(e.Paid),
		MinimumWithdrawal: money(minimum),
		CanWithdraw:       e.Balance.GreaterThanOrEqual(minimum),
	})
}

// MyWithdrawals returns the signed-in author's withdrawals.
func (h *Handler) MyWithdrawals(w http.ResponseWriter, r *http.Request) {
	h.listWithdrawals(w, r, authorFrom(r.Context()).ID)
}

// RequestMyWithdrawal withdraws the signed-in author's full balance.
func (h *Handler) RequestMyWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.requestWithdrawal(w, r, authorFrom(r.Context()).ID)
}

// =============================================================================
// SHARED
// =============================================================================

func (h *Handler) listWithdrawals(w http.ResponseWriter, r *http.Request, id royalty.AuthorID) {
	list, err := h.Ledger.ListWithdrawals(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list withdrawals", err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalDTOs(list))
}

func (h *Handler) requestWithdrawal(w http.ResponseWriter, r *http.Request, id royalty.AuthorID) {
	key, ok := idempotencyKey(w, r)
	if !ok {
		return
	}

	res, err := h.Ledger.RequestWithdrawal(r.Context(), royalty.WithdrawalInput{
		AuthorID:       id,
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeLedgerError(w, r, "Withdrawal failed", err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, WithdrawalResultDTO{
		WithdrawalID: string(res.WithdrawalID),
		Amount:       money(res.Amount),
		Status:       string(royalty.WithdrawalPending),
		Replayed:     res.Replayed,
	})
}

func toWithdrawalDTOs(list []royalty.Withdrawal) []WithdrawalDTO {
	dtos := make([]WithdrawalDTO, len(list))
	for i, wd := range list {
		dtos[i] = toWithdrawalDTO(wd)
	}
	return dtos
}

func authorParam(r *http.Request) royalty.AuthorID {
	return royalty.AuthorID(chi.URLParam(r, "id"))
}

func idempotencyKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("%s must be at most %d characters", idempotencyHeader, maxIdempotencyKeyLen), nil)
		return "", false
	}
	return key, true
}

// decodeRequest reads a JSON body into T and runs its Validate.
func decodeRequest[T interface{ Validate() error }](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return req, false
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return req, false
	}
	return req, true
}

// writeLedgerError maps ledger errors onto HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var below *royalty.BelowMinimumError
	switch {
	case errors.As(err, &below):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Balance is below the minimum withdrawal",
			Details: err.Error(),
			Minimum: money(below.Minimum),
			Balance: money(below.Balance),
		})
	case errors.Is(err, royalty.ErrReconciliationNeeded):
		h.Log.Error(message,
			zap.Bool("reconciliation_needed", true),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, message, err)
	case errors.Is(err, royalty.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, royalty.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, identity.ErrEmailTaken),
		errors.Is(err, royalty.ErrDuplicateIdempotencyKey),
		errors.Is(err, royalty.ErrConcurrentModification):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Log.Error(message, zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
