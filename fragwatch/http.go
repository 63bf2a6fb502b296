package fragwatch

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/kit"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/shield"
)

const maxBodyBytes = 64 << 10

// Handler returns the JSON API with request IDs, panic recovery and /metrics.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(shield.HeadToGet)
	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
	r.Use(shield.MaxBody(maxBodyBytes))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := kit.WithTransport(req.Context(), "http")
			ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.MetricsHandler())
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the group routes on r. Routes that fetch from the
// stats site are throttled per client.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Route("/groups/{group}", func(r chi.Router) {
		r.Get("/players", s.handleListPlayers)
		r.Post("/players", s.handleAddPlayer)
		r.Delete("/players/{username}", s.handleRemovePlayer)
		r.Get("/schedule", s.handleGetSchedule)
		r.Put("/schedule", s.handlePutSchedule)
		r.Delete("/schedule", s.handleCancelSchedule)

		r.Group(func(r chi.Router) {
			r.Use(s.guard.Middleware)
			r.Get("/players/{username}/stats", s.handlePlayerStats)
			r.Get("/stats", s.handleGroupStats)
			r.Get("/rankings", s.handleRankings)
			r.Post("/run", s.handleRun)
		})
	})
}

func (s *Service) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.ListPlayers(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, err)
		return
	}
	if players == nil {
		players = []Player{}
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *Service) handleAddPlayer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	p, err := s.AddPlayer(r.Context(), chi.URLParam(r, "group"), body.Username, body.Platform)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Service) handleRemovePlayer(w http.ResponseWriter, r *http.Request) {
	if err := s.RemovePlayer(r.Context(), chi.URLParam(r, "group"), chi.URLParam(r, "username")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	k, err := ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, err)
		return
	}
	ref := PlayerRef{
		GroupID:  chi.URLParam(r, "group"),
		Username: chi.URLParam(r, "username"),
		Platform: r.URL.Query().Get("platform"),
	}
	rep, err := s.CollectForPlayer(r.Context(), ref, k)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Service) handleGroupStats(w http.ResponseWriter, r *http.Request) {
	k, err := ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, err)
		return
	}
	rep, err := s.CollectForGroup(r.Context(), chi.URLParam(r, "group"), k)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Service) handleRankings(w http.ResponseWriter, r *http.Request) {
	k, err := ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, err)
		return
	}
	rep, err := s.Rankings(r.Context(), chi.URLParam(r, "group"), k)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Service) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	st, err := s.Schedule(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChannelRef string `json:"channel_ref"`
		TimeOfDay  string `json:"time_of_day"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	group := chi.URLParam(r, "group")
	if _, err := s.Program(r.Context(), group, body.ChannelRef, body.TimeOfDay); err != nil {
		writeError(w, err)
		return
	}
	st, err := s.Schedule(r.Context(), group)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.Cancel(r.Context(), chi.URLParam(r, "group")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("trigger")
	if name == "" {
		name = string(Daily)
	}
	tr, err := ParseTrigger(name)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.RunNow(r.Context(), chi.URLParam(r, "group"), tr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoPlayers):
		return http.StatusNotFound
	case errors.Is(err, ErrPlayerExists):
		return http.StatusConflict
	case errors.Is(err, ErrFetchBlocked):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
