package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/kdimtricp/trainbox/internal/database"
	"github.com/kdimtricp/trainbox/internal/dataset"
	"github.com/kdimtricp/trainbox/internal/models"
)

func setupApp(t *testing.T) (*App, *dataset.Store) {
	t.Helper()

	store, err := dataset.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &App{Store: store, Runs: database.NewRunRepository(db)}, store
}

func TestPingHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	PingHandler(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "pong" {
		t.Errorf("Expected pong, got %q", rec.Body.String())
	}
}

func TestDirectoryHandler(t *testing.T) {
	app, store := setupApp(t)

	if err := store.EnsureProject("pets"); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	if err := store.CreateLabel("pets", "cats"); err != nil {
		t.Fatalf("Failed to create label: %v", err)
	}

	t.Run("Listing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/directory?path=pets/training-data", nil)
		app.DirectoryHandler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var body struct {
			Entries []dataset.Entry `json:"entries"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if len(body.Entries) != 1 || body.Entries[0].Name != "cats" || !body.Entries[0].IsDir {
			t.Errorf("Unexpected listing: %+v", body.Entries)
		}
	})

	t.Run("MissingPathParam", func(t *testing.T) {
		rec := httptest.NewRecorder()
		app.DirectoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/directory", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("UnknownDirectory", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/directory?path=pets/no-such", nil)
		app.DirectoryHandler(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})
}

func TestImageHandler(t *testing.T) {
	app, store := setupApp(t)

	if err := store.EnsureProject("pets"); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	name, err := store.WriteImage("pets", "cats", "a.jpg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/images?path=pets/training-data/cats/"+name, nil)
	app.ImageHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "jpeg-bytes" {
		t.Errorf("Unexpected body: %q", rec.Body.String())
	}

	t.Run("Missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/images?path=pets/training-data/cats/nope.jpg", nil)
		app.ImageHandler(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})
}

func TestRunsHandler(t *testing.T) {
	app, _ := setupApp(t)

	run := models.NewRun("pets", models.RunKindTraining, "")
	if err := app.Runs.InsertRun(run); err != nil {
		t.Fatalf("Failed to insert run: %v", err)
	}

	router := NewRouter(app)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects/pets/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Runs []models.Run `json:"runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(body.Runs) != 1 || body.Runs[0].ID != run.ID {
		t.Errorf("Unexpected runs: %+v", body.Runs)
	}

	t.Run("EmptyProject", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects/plants/runs", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var body struct {
			Runs []models.Run `json:"runs"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if body.Runs == nil || len(body.Runs) != 0 {
			t.Errorf("Expected empty runs array, got %+v", body.Runs)
		}
	})
}
