/*
response.go - Response-code taxonomy and outward-facing classifier

PURPOSE:
  Every processed request deterministically maps to exactly one member of
  a fixed taxonomy of response codes. This file defines the taxonomy, the
  status level and HTTP status each code maps to, and the Response shape
  handed to the CLI and HTTP adapters.

TAXONOMY:
  ok_*       legal transition applied, or informational success
  warning_*  request understood, state already as scanned (re-scan checks)
  error_*    request rejected; state untouched

  There is no fallback code: a request shape the rule table does not cover
  surfaces as error_system_unexpected_request, which is a defect signal,
  never a silent default.

REDACTION:
  Snapshots expose tokens, labels and descriptions only. Internal ids stay
  inside the engine.

SEE ALSO:
  - rules.go:  produces the codes
  - engine.go: builds the Response after the transaction commits its reads
*/
package engine

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESPONSE CODES
// =============================================================================

// ResponseCode classifies the outcome of one request.
type ResponseCode string

const (
	OkUserAuthentified ResponseCode = "ok_user_authentified"
	OkVoucherInfo      ResponseCode = "ok_voucher_info"
	OkVoucherCashedin  ResponseCode = "ok_voucher_cashedin"
	OkVoucherUndo      ResponseCode = "ok_voucher_undo"

	WarningVoucherCanUndoCashedin    ResponseCode = "warning_voucher_can_undo_cashedin"
	WarningVoucherCannotUndoCashedin ResponseCode = "warning_voucher_cannot_undo_cashedin"

	ErrorUserInvalidToken             ResponseCode = "error_user_invalid_token"
	ErrorVoucherUnauthentified        ResponseCode = "error_voucher_unauthentified"
	ErrorVoucherInvalid               ResponseCode = "error_voucher_invalid"
	ErrorVoucherExpired               ResponseCode = "error_voucher_expired"
	ErrorVoucherUserNeedsVoucherToken ResponseCode = "error_voucher_user_needs_voucher_token"
	ErrorVoucherCashedinByAnotherUser ResponseCode = "error_voucher_cashedin_by_another_user"
	ErrorVoucherCannotUndoCashedin    ResponseCode = "error_voucher_cannot_undo_cashedin"
	ErrorVoucherCannotUndoNotCashedin ResponseCode = "error_voucher_cannot_undo_not_cashedin"
	ErrorBadRequest                   ResponseCode = "error_bad_request"
	ErrorSystemUnexpectedRequest      ResponseCode = "error_system_unexpected_request"
)

// Level is the coarse status class of a response code.
type Level string

const (
	LevelOK      Level = "ok"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type codeSpec struct {
	level      Level
	httpStatus int
	message    string
}

var codeTable = map[ResponseCode]codeSpec{
	OkUserAuthentified: {LevelOK, http.StatusOK, "Authentified, scan a voucher"},
	OkVoucherInfo:      {LevelOK, http.StatusOK, "Voucher status"},
	OkVoucherCashedin:  {LevelOK, http.StatusOK, "Voucher cashed in"},
	OkVoucherUndo:      {LevelOK, http.StatusOK, "Cash-in undone"},

	WarningVoucherCanUndoCashedin:    {LevelWarning, http.StatusOK, "Voucher already cashed in, undo still possible"},
	WarningVoucherCannotUndoCashedin: {LevelWarning, http.StatusOK, "Voucher already cashed in"},

	ErrorUserInvalidToken:             {LevelError, http.StatusUnauthorized, "Invalid user"},
	ErrorVoucherUnauthentified:        {LevelError, http.StatusUnauthorized, "Scan a user code first"},
	ErrorVoucherInvalid:               {LevelError, http.StatusNotFound, "Invalid voucher"},
	ErrorVoucherExpired:               {LevelError, http.StatusGone, "Voucher expired"},
	ErrorVoucherUserNeedsVoucherToken: {LevelError, http.StatusForbidden, "Scan the voucher code"},
	ErrorVoucherCashedinByAnotherUser: {LevelError, http.StatusConflict, "Voucher cashed in by another user"},
	ErrorVoucherCannotUndoCashedin:    {LevelError, http.StatusConflict, "Undo period expired"},
	ErrorVoucherCannotUndoNotCashedin: {LevelError, http.StatusConflict, "Voucher is not cashed in"},
	ErrorBadRequest:                   {LevelError, http.StatusBadRequest, "Bad request"},
	ErrorSystemUnexpectedRequest:      {LevelError, http.StatusInternalServerError, "Unexpected request"},
}

// Known reports whether the code belongs to the taxonomy.
func (c ResponseCode) Known() bool {
	_, ok := codeTable[c]
	return ok
}

// Level returns the status class of the code.
func (c ResponseCode) Level() Level {
	if s, ok := codeTable[c]; ok {
		return s.level
	}
	return LevelError
}

// HTTPStatus returns the HTTP status the code maps to.
func (c ResponseCode) HTTPStatus() int {
	if s, ok := codeTable[c]; ok {
		return s.httpStatus
	}
	return http.StatusInternalServerError
}

// Message returns the short human status string of the code.
func (c ResponseCode) Message() string {
	if s, ok := codeTable[c]; ok {
		return s.message
	}
	return "Unexpected request"
}

// =============================================================================
// OUTWARD-FACING RESPONSE
// =============================================================================

// UserSnapshot is the redacted public view of a user.
type UserSnapshot struct {
	Token       string
	Label       string
	Description string
}

// HistoryEntry is one redacted ledger row in a voucher's recent history.
type HistoryEntry struct {
	At           time.Time
	UserLabel    string
	RequestKind  string
	ResponseCode ResponseCode
}

// VoucherSnapshot is the redacted public view of a voucher, taken after
// any transition of the current request was applied.
type VoucherSnapshot struct {
	Token            string
	Value            decimal.Decimal
	ExpirationAt     time.Time
	CashedinBy       string // label, empty when not cashed in
	CashedinAt       *time.Time
	UndoExpirationAt *time.Time
	History          []HistoryEntry
}

// Response is the outward-facing result of one request, consumed by both
// the CLI and HTTP adapters.
type Response struct {
	Code    ResponseCode
	Level   Level
	Status  string
	User    *UserSnapshot
	Voucher *VoucherSnapshot
}

func newResponse(code ResponseCode) *Response {
	return &Response{Code: code, Level: code.Level(), Status: code.Message()}
}

func snapshotUser(u *User) *UserSnapshot {
	return &UserSnapshot{Token: u.Token, Label: u.Label, Description: u.Description}
}
