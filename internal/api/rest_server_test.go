package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/annel0/flight-telemetry/internal/auth"
	"github.com/annel0/flight-telemetry/internal/sim"
)

func newTestServer(t *testing.T) *RestServer {
	t.Helper()

	return NewRestServer(Config{
		UserRepo:   auth.NewMemoryUserRepo(),
		Simulation: sim.NewSimulation(sim.Options{Body: sim.DefaultBody()}),
	})
}

func TestRestServerHealthAndAuth(t *testing.T) {
	rs := newTestServer(t)

	// Health доступен без токена
	w := httptest.NewRecorder()
	rs.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/health: ожидался 200, получен %d", w.Code)
	}

	// Защищённый эндпоинт без токена отклоняется
	w = httptest.NewRecorder()
	rs.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/vessels", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("/api/vessels без токена: ожидался 401, получен %d", w.Code)
	}

	// Вход встроенной учётной записью
	body := strings.NewReader(`{"username":"observer","password":"observer"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	rs.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Вход: ожидался 200, получен %d (%s)", w.Code, w.Body.String())
	}

	var login LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("Ошибка разбора ответа входа: %v", err)
	}
	if login.Token == "" {
		t.Fatal("Токен не выдан")
	}

	// С токеном защищённый эндпоинт отвечает
	req = httptest.NewRequest(http.MethodGet, "/api/vessels", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	w = httptest.NewRecorder()
	rs.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("/api/vessels с токеном: ожидался 200, получен %d", w.Code)
	}
}
