package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/trainbox/internal/database"
	"github.com/kdimtricp/trainbox/internal/dataset"
	"github.com/kdimtricp/trainbox/internal/models"
	"github.com/kdimtricp/trainbox/internal/ws"
)

type App struct {
	Store        *dataset.Store
	Runs         *database.RunRepository
	WS           *ws.Server
	TemplatePath string
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (app *App) templates() string {
	if app.TemplatePath != "" {
		return app.TemplatePath
	}
	return filepath.Join("web", "templates")
}

func (app *App) HomeHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := app.Store.ListProjects()
	if err != nil {
		http.Error(w, "Error listing projects", http.StatusInternalServerError)
		return
	}

	tmplPath := filepath.Join(app.templates(), "index.html")
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		http.Error(w, "Error loading template", http.StatusInternalServerError)
		return
	}

	data := struct {
		Title    string
		Projects []string
	}{
		Title:    "Trainbox",
		Projects: projects,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		return
	}
}

func (app *App) ProjectHandler(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	if project == "" {
		http.NotFound(w, r)
		return
	}

	if err := app.Store.EnsureProject(project); err != nil {
		http.Error(w, "Invalid project name", http.StatusBadRequest)
		return
	}

	labels, err := app.Store.ListLabels(project)
	if err != nil {
		http.Error(w, "Error listing labels", http.StatusInternalServerError)
		return
	}

	tmplPath := filepath.Join(app.templates(), "project.html")
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		http.Error(w, "Error loading template", http.StatusInternalServerError)
		return
	}

	data := struct {
		Project string
		Labels  []string
	}{
		Project: project,
		Labels:  labels,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		return
	}
}

// DirectoryHandler lists one directory under the dataset root as JSON.
// Clients call it after every dataset-changed broadcast to re-fetch state.
func (app *App) DirectoryHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return
	}

	entries, err := app.Store.ListDirectory(path)
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Error listing directory", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Entries []dataset.Entry `json:"entries"`
	}{Entries: entries})
}

func (app *App) ImageHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return
	}

	file, err := app.Store.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	http.ServeContent(w, r, filepath.Base(path), time.Time{}, file)
}

func (app *App) RunsHandler(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	if project == "" {
		http.NotFound(w, r)
		return
	}

	runs, err := app.Runs.ListRunsByProject(project)
	if err != nil {
		http.Error(w, "Error listing runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Runs []models.Run `json:"runs"`
	}{Runs: runs})
}
