package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckStreamReachable_ok(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	ctx := context.Background()
	if err := CheckStreamReachable(ctx, srv.URL); err != nil {
		t.Fatalf("CheckStreamReachable: %v", err)
	}
}

func TestCheckStreamReachable_badStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	ctx := context.Background()
	if err := CheckStreamReachable(ctx, srv.URL); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestCheckStreamReachable_emptyURL(t *testing.T) {
	ctx := context.Background()
	if err := CheckStreamReachable(ctx, ""); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestHandlerReturnsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	Handler()(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
