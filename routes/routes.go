package routes

import (
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"

	"github.com/mailmeimmu/echeck-sub000/app"
	"github.com/mailmeimmu/echeck-sub000/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	api.Route("/inspections/{session}/drafts/{author}", func(r chi.Router) {
		r.Use(middlewares.Engineer(app.TokenSecret))

		r.Get("/", GetDraft(app))
		r.Put("/", UpsertDraft(app))
		r.Delete("/", DeleteDraft(app))
	})

	return api
}
