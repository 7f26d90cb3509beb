package upstream

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strings"
)

// User is served by the fake upstream.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

var users = map[string]User{
	"1": {ID: "1", Name: "Alice", Email: "alice@example.com"},
	"2": {ID: "2", Name: "Bob", Email: "bob@example.com"},
	"3": {ID: "3", Name: "Charlie", Email: "charlie@example.com"},
}

// Handler returns a flaky user API. failureRate of the calls are answered
// with 503 so that the client has something to retry.
func Handler(failureRate float64) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		//nolint:gosec // demo traffic, not security sensitive
		if rand.Float64() < failureRate {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		user, ok := users[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=10")
		_ = json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("GET /export", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("id,name,email\n"))
		for _, u := range users {
			_, _ = w.Write([]byte(strings.Join([]string{u.ID, u.Name, u.Email}, ",") + "\n"))
		}
	})
	return mux
}
