package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	pkgredis "github.com/angelmondragon/libraryhub-backend/pkg/redis"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", pkgredis.ErrMiss
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func studentRequest(method, url string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	ctx := WithPrincipal(req.Context(), Principal{UserID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Role: enums.RoleStudent})
	return req.WithContext(ctx)
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"data":{"call":%d}}`, *calls)
	})
}

func TestCoveredRoutes(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodPost, "/loans/request", true},
		{http.MethodPost, "/loans/return", true},
		{http.MethodPost, "/loans/7f1c/approve", true},
		{http.MethodPost, "/loans/7f1c/reject", true},
		{http.MethodPost, "/books/9a2b/hold", true},
		{http.MethodPost, "/books/9a2b/extra/hold", false},
		{http.MethodGet, "/loans/request", false},
		{http.MethodPost, "/books", false},
	}
	for _, tc := range tests {
		if got := covered(tc.method, tc.path); got != tc.want {
			t.Fatalf("%s %s: expected %v got %v", tc.method, tc.path, tc.want, got)
		}
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(countingHandler(&calls, http.StatusCreated))

	var bodies []string
	for i := 0; i < 2; i++ {
		req := studentRequest(http.MethodPost, "/loans/request", strings.NewReader(`{"book_id":"b1"}`))
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d", rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}

	if calls != 1 {
		t.Fatalf("handler should run once, ran %d times", calls)
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("replayed body differs: %q vs %q", bodies[0], bodies[1])
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(countingHandler(&calls, http.StatusOK))

	for i, body := range []string{`{"book_id":"b1"}`, `{"book_id":"b2"}`} {
		req := studentRequest(http.MethodPost, "/loans/return", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "same")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i == 1 && rec.Code != http.StatusConflict {
			t.Fatalf("expected 409 got %d", rec.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single execution, got %d", calls)
	}
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(countingHandler(&calls, http.StatusOK))

	for i := 0; i < 2; i++ {
		req := studentRequest(http.MethodPost, "/loans/request", strings.NewReader(`{}`))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected 2 executions, got %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored, got %v", store.data)
	}
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(countingHandler(&calls, http.StatusServiceUnavailable))

	for i := 0; i < 2; i++ {
		req := studentRequest(http.MethodPost, "/loans/abc/approve", strings.NewReader(``))
		req.Header.Set("Idempotency-Key", "retry-me")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("failed responses must not be replayed, got %d executions", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("failed response should release its key, got %v", store.data)
	}
}

func TestIdempotencyPendingKeyConflicts(t *testing.T) {
	store := newFakeStore()
	store.data[store.IdempotencyKey("11111111-1111-1111-1111-111111111111|POST|/books/b1/hold", "k1")] = pendingMarker
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(countingHandler(&calls, http.StatusCreated))

	req := studentRequest(http.MethodPost, "/books/b1/hold", strings.NewReader(``))
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if calls != 0 {
		t.Fatalf("handler must not run while the key is pending, ran %d times", calls)
	}
}

func TestIdempotencyRejectsOversizedBody(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(countingHandler(&calls, http.StatusCreated))

	body := `{"book_id":"` + strings.Repeat("x", maxIdempotentBody) + `"}`
	req := studentRequest(http.MethodPost, "/loans/request", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "big")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if calls != 0 {
		t.Fatalf("handler must not run for an oversized body, ran %d times", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("oversized body must not claim a key, got %v", store.data)
	}
}
