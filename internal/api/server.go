package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"devshop/internal/config"
	"devshop/internal/game"
	"devshop/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const kickTimeout = 30 * time.Second

type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	game *game.Service
	hub  *realtime.Hub
	mux  *chi.Mux
}

// New builds the HTTP API. hub may be nil, in which case /v1/ws is not served.
func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service, hub *realtime.Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		hub:  hub,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/ws", s.hub.ServeWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/rules", s.handleRules)
			r.Get("/games", s.handleListGames)
			r.Post("/games", s.handleCreateGame)
			r.Delete("/games", s.handleDeleteSessionGames)
			r.Get("/games/{id}", s.handleGameState)
			r.Delete("/games/{id}", s.handleDeleteGame)
			r.Post("/games/{id}/tick", s.handleTick)

			r.Get("/developers", s.handleListDevelopers)
			r.Post("/developers", s.handleHireDeveloper)
			r.Get("/developers/{id}", s.handleDeveloper)
			r.Delete("/developers/{id}", s.handleFireDeveloper)

			r.Get("/salespeople", s.handleListSalespeople)
			r.Post("/salespeople", s.handleHireSalesperson)
			r.Get("/salespeople/{id}", s.handleSalesperson)
			r.Post("/salespeople/{id}/sell", s.handleStartSelling)
			r.Delete("/salespeople/{id}", s.handleFireSalesperson)

			r.Get("/projects", s.handleListProjects)
			r.Post("/projects", s.handleCreateProject)
			r.Get("/projects/{id}", s.handleProject)
			r.Post("/projects/{id}/assign", s.handleAssignDeveloper)
			r.Delete("/projects/{id}", s.handleDeleteProject)
		})
	})
}

type rulesResponse struct {
	StartingMoney      game.Money `json:"starting_money_cents"`
	ProjectFeeRate     float64    `json:"project_fee_rate"`
	StarterDeveloper   string     `json:"starter_developer"`
	StarterSeniority   int        `json:"starter_seniority"`
	StarterSalesperson string     `json:"starter_salesperson"`
	StarterExperience  int        `json:"starter_experience"`
	TickConcurrency    int        `json:"tick_concurrency"`
}

func (s *Server) handleRules(w http.ResponseWriter, _ *http.Request) {
	rules := s.game.Rules()
	writeJSON(w, http.StatusOK, rulesResponse{
		StartingMoney:      rules.StartingMoney,
		ProjectFeeRate:     rules.ProjectFeeRate,
		StarterDeveloper:   rules.StarterDeveloper,
		StarterSeniority:   rules.StarterSeniority,
		StarterSalesperson: rules.StarterSalesperson,
		StarterExperience:  rules.StarterExperience,
		TickConcurrency:    rules.TickConcurrency,
	})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.game.ListGames(r.Context(), strings.TrimSpace(r.URL.Query().Get("session_id")))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name      string `json:"name"`
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.game.CreateGame(r.Context(), game.CreateGameInput{
		Name:      in.Name,
		SessionID: strings.TrimSpace(in.SessionID),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleDeleteSessionGames(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.game.DeleteGamesBySession(r.Context(), strings.TrimSpace(r.URL.Query().Get("session_id")))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r, "game")
	if !ok {
		return
	}
	state, err := s.game.GameState(r.Context(), gameID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r, "game")
	if !ok {
		return
	}
	if err := s.game.DeleteGame(r.Context(), gameID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r, "game")
	if !ok {
		return
	}
	report, err := s.game.RunTick(r.Context(), gameID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListDevelopers(w http.ResponseWriter, r *http.Request) {
	gameID, ok := queryGameID(w, r)
	if !ok {
		return
	}
	devs, err := s.game.Developers(r.Context(), gameID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"developers": devs})
}

func (s *Server) handleHireDeveloper(w http.ResponseWriter, r *http.Request) {
	var in struct {
		GameID    int64   `json:"game_id"`
		Name      string  `json:"name"`
		Seniority int     `json:"seniority"`
		Cost      float64 `json:"cost"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.HireDeveloper(r.Context(), game.HireDeveloperInput{
		GameID:         in.GameID,
		Name:           in.Name,
		Seniority:      in.Seniority,
		Cost:           game.MoneyFromUnits(in.Cost),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleDeveloper(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "developer")
	if !ok {
		return
	}
	dev, err := s.game.Developer(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleFireDeveloper(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "developer")
	if !ok {
		return
	}
	if err := s.game.FireDeveloper(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListSalespeople(w http.ResponseWriter, r *http.Request) {
	gameID, ok := queryGameID(w, r)
	if !ok {
		return
	}
	sps, err := s.game.Salespeople(r.Context(), gameID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salespeople": sps})
}

func (s *Server) handleHireSalesperson(w http.ResponseWriter, r *http.Request) {
	var in struct {
		GameID     int64   `json:"game_id"`
		Name       string  `json:"name"`
		Experience int     `json:"experience"`
		Cost       float64 `json:"cost"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.HireSalesperson(r.Context(), game.HireSalespersonInput{
		GameID:         in.GameID,
		Name:           in.Name,
		Experience:     in.Experience,
		Cost:           game.MoneyFromUnits(in.Cost),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleSalesperson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "salesperson")
	if !ok {
		return
	}
	sp, err := s.game.Salesperson(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleStartSelling(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "salesperson")
	if !ok {
		return
	}
	sp, err := s.game.StartSelling(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.kick(sp.GameID)
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleFireSalesperson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "salesperson")
	if !ok {
		return
	}
	if err := s.game.FireSalesperson(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	gameID, ok := queryGameID(w, r)
	if !ok {
		return
	}
	projects, err := s.game.Projects(r.Context(), gameID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in struct {
		GameID     int64   `json:"game_id"`
		Name       string  `json:"name"`
		Complexity int     `json:"complexity"`
		Value      float64 `json:"value"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.game.CreateProject(r.Context(), game.CreateProjectInput{
		GameID:         in.GameID,
		Name:           in.Name,
		Complexity:     in.Complexity,
		Value:          game.MoneyFromUnits(in.Value),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "project")
	if !ok {
		return
	}
	p, err := s.game.Project(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAssignDeveloper(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "project")
	if !ok {
		return
	}
	var in struct {
		DeveloperID int64 `json:"developer_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AssignDeveloper(r.Context(), id, in.DeveloperID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.kick(out.Project.GameID)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "project")
	if !ok {
		return
	}
	if err := s.game.DeleteProject(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// kick runs a tick for the game in the background when tick-on-create is
// enabled, so newly started work moves without waiting for the worker.
func (s *Server) kick(gameID int64) {
	if !s.cfg.TickOnCreate {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), kickTimeout)
		defer cancel()
		report, err := s.game.RunTick(ctx, gameID)
		if err != nil {
			s.log.Error("tick on create failed", "game_id", gameID, "err", err)
			return
		}
		if len(report.Failures) > 0 {
			s.log.Warn("tick on create had failures", "game_id", gameID, "failures", len(report.Failures))
		}
	}()
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrDuplicateIdempotency):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, game.ErrAssignmentConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInvalidComplexity), errors.Is(err, game.ErrInvalidAmount), errors.Is(err, game.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrTxConflict):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(w http.ResponseWriter, r *http.Request, kind string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+kind+" id")
		return 0, false
	}
	return id, true
}

func queryGameID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("game_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}
