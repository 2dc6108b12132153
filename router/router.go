package router

import (
	"book-club-api/handler"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "book-club-api/docs"
)

func NewRouter(authHandler *handler.AuthHandler, userHandler *handler.UserHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", handler.HealthCheck)
	mux.Handle("/swagger/", httpSwagger.Handler())

	if authHandler != nil {
		mux.Handle("/auth/register", handler.ErrorHandlingMiddleware(authHandler.Register))
		mux.Handle("/auth/login", handler.ErrorHandlingMiddleware(authHandler.Login))
		mux.Handle("/auth/refresh", handler.ErrorHandlingMiddleware(authHandler.Refresh))
		mux.Handle("/auth/logout", handler.ErrorHandlingMiddleware(authHandler.Logout))
		mux.Handle("/auth/logout-all", handler.AuthMiddleware(handler.ErrorHandlingMiddleware(authHandler.LogoutAll)))
	}

	if userHandler != nil {
		mux.Handle("/users/me", handler.AuthMiddleware(handler.ErrorHandlingMiddleware(userHandler.Me)))
	}

	return mux
}
