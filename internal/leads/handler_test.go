package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

type failingRepo struct{ Repository }

func (failingRepo) Get(context.Context, string) (*Lead, error) {
	return nil, errors.New("store down")
}

func serveLead(h *Handler, contactID string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/leads/{contactID}", h.GetLead)
	req := httptest.NewRequest(http.MethodGet, "/leads/"+contactID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetLead_Success(t *testing.T) {
	repo := NewInMemoryRepository()
	lead := New("contact-1", "owner", "thread", "S1")
	lead.SetAnswer("name", "Alice")
	if _, err := repo.Insert(context.Background(), lead); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	w := serveLead(NewHandler(repo, logging.Nop()), "contact-1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var got Lead
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ContactID != "contact-1" || got.Answers["name"] != "Alice" {
		t.Errorf("unexpected lead %+v", got)
	}
}

func TestGetLead_NotFound(t *testing.T) {
	w := serveLead(NewHandler(NewInMemoryRepository(), logging.Nop()), "nobody")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestGetLead_StoreError(t *testing.T) {
	w := serveLead(NewHandler(failingRepo{}, logging.Nop()), "contact-1")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}
