/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts go out as strings with two decimals ("3500.00"). Incoming amounts
  accept either a JSON number or a numeric string.

VALIDATION:
  Every *Request has Validate() (ozzo-validation). Handlers reject a failed
  Validate with 400 before calling the ledger, which re-checks its own
  invariants.

SEE ALSO:
  - handlers.go: Uses these types
  - royalty/types.go: Domain types
*/
package api

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"

	"github.com/ritera/royalty-engine/royalty"
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required),
	)
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// =============================================================================
// AUTHORS
// =============================================================================

type BankDetailsDTO struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
	IFSC          string `json:"ifsc"`
	UPI           string `json:"upi,omitempty"`
}

func (b BankDetailsDTO) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.AccountName, validation.Length(0, 200)),
		validation.Field(&b.AccountNumber, is.Digit, validation.Length(6, 20)),
		validation.Field(&b.IFSC, is.Alphanumeric, validation.Length(11, 11)),
	)
}

func (b BankDetailsDTO) toDomain() royalty.BankDetails {
	return royalty.BankDetails{
		AccountName:   b.AccountName,
		AccountNumber: b.AccountNumber,
		BankName:      b.BankName,
		IFSC:          b.IFSC,
		UPI:           b.UPI,
	}
}

type AuthorDTO struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	RoyaltyPercentage int            `json:"royalty_percentage"`
	Bank              BankDetailsDTO `json:"bank"`
	BankVerified      bool           `json:"bank_verified"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
}

func toAuthorDTO(a royalty.Author) AuthorDTO {
	return AuthorDTO{
		ID:                string(a.ID),
		Name:              a.Name,
		Email:             a.Email,
		RoyaltyPercentage: a.RoyaltyPercentage,
		Bank: BankDetailsDTO{
			AccountName:   a.Bank.AccountName,
			AccountNumber: a.Bank.AccountNumber,
			BankName:      a.Bank.BankName,
			IFSC:          a.Bank.IFSC,
			UPI:           a.Bank.UPI,
		},
		BankVerified: a.BankVerified,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    a.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateAuthorRequest creates the login and the author profile together.
type CreateAuthorRequest struct {
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	Password          string         `json:"password"`
	RoyaltyPercentage *int           `json:"royalty_percentage,omitempty"`
	Bank              BankDetailsDTO `json:"bank"`
}

func (r CreateAuthorRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&r.RoyaltyPercentage, validation.Min(0), validation.Max(100)),
		validation.Field(&r.Bank),
	)
}

// UpdateAuthorRequest is a partial edit; omitted fields are unchanged.
type UpdateAuthorRequest struct {
	Name              *string         `json:"name,omitempty"`
	RoyaltyPercentage *int            `json:"royalty_percentage,omitempty"`
	Bank              *BankDetailsDTO `json:"bank,omitempty"`
	BankVerified      *bool           `json:"bank_verified,omitempty"`
}

func (r UpdateAuthorRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.RoyaltyPercentage, validation.Min(0), validation.Max(100)),
		validation.Field(&r.Bank),
	)
}

func (r UpdateAuthorRequest) toPatch() royalty.AuthorPatch {
	p := royalty.AuthorPatch{
		Name:              r.Name,
		RoyaltyPercentage: r.RoyaltyPercentage,
		BankVerified:      r.BankVerified,
	}
	if r.Bank != nil {
		b := r.Bank.toDomain()
		p.Bank = &b
	}
	return p
}

// =============================================================================
// BOOKS AND SALES
// =============================================================================

type BookDTO struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Title     string `json:"title"`
	CoverURL  string `json:"cover_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toBookDTO(b royalty.Book) BookDTO {
	return BookDTO{
		ID:        string(b.ID),
		AuthorID:  string(b.AuthorID),
		Title:     b.Title,
		CoverURL:  b.CoverURL,
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
}

type CreateBookRequest struct {
	AuthorID string `json:"author_id"`
	Title    string `json:"title"`
	CoverURL string `json:"cover_url,omitempty"`
}

func (r CreateBookRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AuthorID, validation.Required),
		validation.Field(&r.Title, validation.Required, validation.Length(1, 300)),
		validation.Field(&r.CoverURL, is.URL),
	)
}

type CoverDTO struct {
	URL string `json:"url"`
}

type SaleDTO struct {
	ID        string `json:"id"`
	BookID    string `json:"book_id"`
	Copies    int    `json:"copies"`
	Amount    string `json:"amount"`
	Royalty   string `json:"royalty"`
	CreatedAt string `json:"created_at"`
}

func toSaleDTO(s royalty.Sale) SaleDTO {
	return SaleDTO{
		ID:        string(s.ID),
		BookID:    string(s.BookID),
		Copies:    s.Copies,
		Amount:    money(s.Amount),
		Royalty:   money(s.Royalty),
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

type RecordSaleRequest struct {
	BookID string          `json:"book_id"`
	Copies int             `json:"copies"`
	Amount decimal.Decimal `json:"amount"`
}

func (r RecordSaleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BookID, validation.Required),
		validation.Field(&r.Copies, validation.Required, validation.Min(1)),
		validation.Field(&r.Amount, validation.By(func(any) error {
			if !r.Amount.IsPositive() {
				return errors.New("must be greater than zero")
			}
			return nil
		})),
	)
}

type SaleResultDTO struct {
	SaleID       string `json:"sale_id"`
	AuthorID     string `json:"author_id"`
	RoyaltyAdded string `json:"royalty_added"`
	Balance      string `json:"balance"`
	Replayed     bool   `json:"replayed,omitempty"`
}

// =============================================================================
// WALLET AND WITHDRAWALS
// =============================================================================

type WithdrawalDTO struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func toWithdrawalDTO(w royalty.Withdrawal) WithdrawalDTO {
	return WithdrawalDTO{
		ID:        string(w.ID),
		AuthorID:  string(w.AuthorID),
		Amount:    money(w.Amount),
		Status:    string(w.Status),
		CreatedAt: w.CreatedAt.Format(time.RFC3339),
	}
}

type WithdrawalResultDTO struct {
	WithdrawalID string `json:"withdrawal_id"`
	Amount       string `json:"amount"`
	Status       string `json:"status"`
	Replayed     bool   `json:"replayed,omitempty"`
}

type BookEarningsDTO struct {
	BookID   string `json:"book_id"`
	Title    string `json:"title"`
	CoverURL string `json:"cover_url,omitempty"`
	Copies   int    `json:"copies"`
	Amount   string `json:"amount"`
}

// EarningsDTO is the author dashboard.
type EarningsDTO struct {
	Author            AuthorDTO         `json:"author"`
	Books             []BookEarningsDTO `json:"books"`
	BookCount         int               `json:"book_count"`
	TotalCopies       int               `json:"total_copies"`
	TotalAmount       string            `json:"total_amount"`
	Balance           string            `json:"balance"`
	Paid              string            `json:"paid"`
	MinimumWithdrawal string            `json:"minimum_withdrawal"`
	CanWithdraw       bool              `json:"can_withdraw"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

func (r LoadScenarioRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ScenarioID, validation.Required),
	)
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response. Minimum and Balance
// are set only for a withdrawal below the threshold.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Minimum string `json:"minimum,omitempty"`
	Balance string `json:"balance,omitempty"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
