package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", app.HomeHandler)
	r.Get("/ping", PingHandler)
	r.Get("/projects/{project}", app.ProjectHandler)
	r.Get("/api/directory", app.DirectoryHandler)
	r.Get("/api/projects/{project}/runs", app.RunsHandler)
	r.Get("/images", app.ImageHandler)
	if app.WS != nil {
		r.Get("/ws", app.WS.ServeWS)
	}

	fileServer := http.FileServer(http.Dir("./web/static"))
	r.Handle("/static/*", http.StripPrefix("/static", fileServer))

	return r
}
