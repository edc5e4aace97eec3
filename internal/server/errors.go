package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/pulsepaylabs/pulsepay/internal/ledger/domain"
	partnerdomain "github.com/pulsepaylabs/pulsepay/internal/partner/domain"
	schemedomain "github.com/pulsepaylabs/pulsepay/internal/scheme/domain"
	"github.com/pulsepaylabs/pulsepay/internal/scheduler"
	settlementdomain "github.com/pulsepaylabs/pulsepay/internal/settlement/domain"
	txndomain "github.com/pulsepaylabs/pulsepay/internal/transaction/domain"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
)

type validationError struct {
	Field  string `json:"field"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func (e *validationError) Error() string { return e.Code + ": " + e.Detail }

func newValidationError(field, code, detail string) error {
	return &validationError{Field: field, Code: code, Detail: detail}
}

// AbortWithError maps domain sentinels onto HTTP statuses in one place so
// handlers stay pass-throughs.
func AbortWithError(c *gin.Context, err error) {
	var dup *settlementdomain.DuplicateSettlementError
	if errors.As(err, &dup) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":           dup.Error(),
			"transaction_ids": dup.TransactionIDs,
		})
		return
	}

	var validation *validationError
	if errors.As(err, &validation) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": validation})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, schemedomain.ErrInvalidScheme),
		errors.Is(err, schemedomain.ErrInvalidMode),
		errors.Is(err, schemedomain.ErrNegativeMargin),
		errors.Is(err, schemedomain.ErrOwnerRequired),
		errors.Is(err, scheduler.ErrInvalidSchedule),
		errors.Is(err, settlementdomain.ErrBatchTooLarge),
		errors.Is(err, settlementdomain.ErrNoEligibleTransactions):
		status = http.StatusBadRequest
	case errors.Is(err, schemedomain.ErrSchemeNotFound),
		errors.Is(err, settlementdomain.ErrBatchNotFound),
		errors.Is(err, partnerdomain.ErrPartnerNotFound),
		errors.Is(err, txndomain.ErrTransactionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, settlementdomain.ErrNotRetailerOwned):
		status = http.StatusForbidden
	case errors.Is(err, scheduler.ErrSweepAlreadyRunning),
		errors.Is(err, ledgerdomain.ErrDuplicateReference):
		status = http.StatusConflict
	}

	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
