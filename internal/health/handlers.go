package health

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tasklane/tasklane/internal/database"
	tlhttp "github.com/tasklane/tasklane/pkg/http"
)

// HealthEndpoint reports whether the service can reach its store.
const HealthEndpoint = "/health"

// Pinger checks connectivity to a backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SetupRoutes configures the health check route.
func SetupRoutes(r *mux.Router, db Pinger) {
	r.Handle(HealthEndpoint, healthHandler{db}).Methods(http.MethodGet)
}

type healthHandler struct {
	db Pinger
}

func (h healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		log.Printf("Health check failed: %v\n", err)
		tlhttp.WriteEnvelope(w, http.StatusServiceUnavailable, tlhttp.Envelope{
			Status:  tlhttp.StatusError,
			Message: "store unavailable",
			Data:    map[string]string{"status": "unavailable"},
		})
		return
	}
	tlhttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
