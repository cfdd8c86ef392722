package catalyst

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5"
)

// Namespace is the JSON-RPC namespace of the Engine API.
const Namespace = "engine"

// NewHandler registers api on a fresh JSON-RPC server and returns an HTTP
// handler that admits only JWT-authenticated POST requests. The returned
// server must be stopped by the caller.
func NewHandler(api *ConsensusAPI, secret []byte) (http.Handler, *rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(Namespace, api); err != nil {
		return nil, nil, fmt.Errorf("could not register engine API: %w", err)
	}

	mux := chi.NewRouter()
	mux.Use(func(next http.Handler) http.Handler {
		return NewJWTHandler(secret, next)
	})
	// enforce json content type
	mux.Use(func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType := r.Header.Get("Content-Type")
			if len(contentType) > 0 && !strings.HasPrefix(strings.ToLower(contentType), "application/json") {
				http.Error(w, "Content-Type header must be application/json", http.StatusUnsupportedMediaType)
				return
			}
			h.ServeHTTP(w, r)
		})
	})
	mux.Post("/", srv.ServeHTTP)
	return mux, srv, nil
}
