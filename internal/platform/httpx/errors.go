// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unrecognized errors are logged and reported as opaque 500s.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		validation *shared.ValidationError
		notFound   *shared.NotFoundError
		stock      *shared.InsufficientStockError
		balance    *shared.InsufficientBalanceError
		currency   *shared.CurrencyMismatchError
	)
	switch {
	case errors.As(err, &validation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &notFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &stock):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.As(err, &balance):
		Problem(w, http.StatusConflict, "Insufficient Balance", err.Error())
	case errors.As(err, &currency):
		Problem(w, http.StatusUnprocessableEntity, "Currency Mismatch", err.Error())
	default:
		if logger != nil {
			logger.Error("request failed", slog.String("error", err.Error()))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
