package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"lootCrate/api"
	"lootCrate/auth"
	"lootCrate/services/history"
	"lootCrate/services/lifecycle"
	"lootCrate/services/participation"
	"lootCrate/storage"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	remote := storage.NewMemoryRemote()
	store := participation.NewStore(remote, storage.NewMemoryCache())
	service := lifecycle.NewService(remote, store, history.NewLog(remote))

	provider := auth.StaticProvider{
		"alice-token": {ID: "u1", Name: "Alice"},
		"bob-token":   {ID: "u2", Name: "Bob"},
	}

	r := gin.New()
	r.Use(auth.Middleware(provider))
	srv := NewServer(service)
	srv.RegisterRoutes(r)
	return r, srv
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createBoxPayload() map[string]any {
	return map[string]any{
		"lootbox": map[string]any{
			"name": "Starter",
			"items": []map[string]any{
				{"name": "A", "odds": 0.5},
				{"name": "B", "odds": 0.5},
			},
		},
		"settings": map[string]any{
			"triesPerPerson":      2,
			"creatorParticipates": true,
		},
	}
}

func TestCreateAndJoinOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/groupboxes", "alice-token", createBoxPayload())
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	var created lifecycle.CreateResult
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.GroupBoxID == "" {
		t.Fatal("create returned no group box id")
	}

	w = doJSON(t, r, http.MethodPost, "/groupboxes/"+created.GroupBoxID+"/join", "bob-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("join status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/groupboxes/missing/join", "bob-token", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("join missing box status = %d, want 404", w.Code)
	}
}

func TestAnonymousRequestsAreUnauthorized(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/groupboxes", "", createBoxPayload())
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous create status = %d, want 401", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/groupboxes", "bad-token", createBoxPayload())
	if w.Code != http.StatusUnauthorized {
		t.Errorf("invalid token create status = %d, want 401", w.Code)
	}
}

func TestSpinCooldownOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/groupboxes", "alice-token", createBoxPayload())
	var created lifecycle.CreateResult
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	path := "/groupboxes/" + created.GroupBoxID + "/spin"
	if w = doJSON(t, r, http.MethodPost, path, "alice-token", nil); w.Code != http.StatusOK {
		t.Fatalf("first spin status = %d, body %s", w.Code, w.Body.String())
	}
	if w = doJSON(t, r, http.MethodPost, path, "alice-token", nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("rapid second spin status = %d, want 429", w.Code)
	}
	// Cooldowns are per user.
	doJSON(t, r, http.MethodPost, "/groupboxes/"+created.GroupBoxID+"/join", "bob-token", nil)
	if w = doJSON(t, r, http.MethodPost, path, "bob-token", nil); w.Code != http.StatusOK {
		t.Errorf("other user's spin status = %d, want 200", w.Code)
	}
}

func TestAllowSpin(t *testing.T) {
	_, srv := newTestRouter(t)

	if !srv.allowSpin("u1") {
		t.Fatal("first spin must pass")
	}
	if srv.allowSpin("u1") {
		t.Error("spin inside the cooldown must be rejected")
	}
	if !srv.allowSpin("u2") {
		t.Error("cooldown must not leak across users")
	}
	srv.mu.Lock()
	srv.lastSpins["u1"] = time.Now().Add(-SpinCooldown - time.Millisecond)
	srv.mu.Unlock()
	if !srv.allowSpin("u1") {
		t.Error("spin after the cooldown must pass")
	}
}

func TestSpinLootboxStateless(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/lootboxes/spin", "", map[string]any{
		"name":  "Solo",
		"items": []map[string]any{{"name": "Only", "odds": 1}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success bool            `json:"success"`
		Outcome api.SpinOutcome `json:"outcome"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Outcome.Item.Name != "Only" {
		t.Errorf("response = %+v, want the single item", resp)
	}

	w = doJSON(t, r, http.MethodPost, "/lootboxes/spin", "", map[string]any{"name": "Empty"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty pool status = %d, want 400", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{"", http.StatusOK},
		{lifecycle.CodeUnauthenticated, http.StatusUnauthorized},
		{lifecycle.CodeForbidden, http.StatusForbidden},
		{lifecycle.CodeNotFound, http.StatusNotFound},
		{lifecycle.CodeValidationError, http.StatusBadRequest},
		{lifecycle.CodeStorageUnavailable, http.StatusServiceUnavailable},
		{lifecycle.CodeExpired, http.StatusConflict},
		{lifecycle.CodeNoTriesRemaining, http.StatusConflict},
	}
	for _, tc := range cases {
		if got := statusFor(tc.code); got != tc.want {
			t.Errorf("statusFor(%q) = %d, want %d", tc.code, got, tc.want)
		}
	}
}
