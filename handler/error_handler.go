package handler

import (
	"book-club-api/common"
	"book-club-api/logger"
	"net/http"
)

// appHandler is the shape of every handler in this package: return nil on
// success, or an AppError the middleware turns into the JSON error response.
type appHandler func(http.ResponseWriter, *http.Request) *common.AppError

// ErrorHandlingMiddleware adapts an appHandler to http.Handler and recovers
// from panics so a single broken request cannot take the process down.
func ErrorHandlingMiddleware(next appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Log.WithField("panic", rec).Error("Recovered from handler panic")
				common.NewAppError(http.StatusInternalServerError, "Internal server error", nil).Send(w)
			}
		}()

		if err := next(w, r); err != nil {
			err.Send(w)
		}
	}
}
