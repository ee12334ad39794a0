package api

import (
	"context"
	"net/http"
	"time"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// healthCheckHandler reports the loaded models and, when the executor can be
// pinged, whether storage is reachable.
func (s *server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"models":  s.services.Models.Names(),
		"storage": "disabled",
	}

	if s.services.DB != nil {
		data["storage"] = "ok"

		if p, ok := s.services.DB.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			if err := p.Ping(ctx); err != nil {
				s.logger.Warn("storage health check failed", "error", err)
				data["storage"] = "unavailable"
				s.writeJson(w, http.StatusServiceUnavailable, apiResponse{ //nolint:errcheck
					Success: false,
					Message: "storage is unavailable",
					Data:    data,
				}, nil)
				return
			}
		}
	}

	s.writeJson(w, http.StatusOK, apiResponse{ //nolint:errcheck
		Success: true,
		Message: "OK",
		Data:    data,
	}, nil)
}
