package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zeusync/arena/internal/arena/config"
	"github.com/zeusync/arena/internal/arena/match"
	"github.com/zeusync/arena/internal/arena/snapshot"
	"github.com/zeusync/arena/internal/arena/telemetry"
	"github.com/zeusync/arena/internal/core/events/bus"
	"github.com/zeusync/arena/internal/core/observability/log"
)

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/game-state", s.handleGameState)
	mux.HandleFunc("POST /api/add-tank", s.handleAddTank)
	mux.HandleFunc("DELETE /api/tanks/{name}", s.handleRemoveTank)
	mux.HandleFunc("POST /api/start-game", s.handleStartGame)
	mux.HandleFunc("POST /api/pause", s.handlePause)
	mux.HandleFunc("POST /api/resume", s.handleResume)
	mux.HandleFunc("POST /api/stop-game", s.handleStopGame)
	mux.HandleFunc("POST /api/reset-game", s.handleResetGame)
	mux.HandleFunc("GET /api/debug-data", s.handleDebugData)
	mux.HandleFunc("GET /api/debug-data/{name}", s.handleDebugAgent)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("GET /api/sample-brains", s.handleSampleBrains)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.hub.ServeHTTP)
	return mux
}

type gameState struct {
	*snapshot.Snapshot
	GameRunning bool                 `json:"game_running"`
	Logs        []telemetry.LogEntry `json:"logs"`
}

func (s *Server) handleGameState(w http.ResponseWriter, _ *http.Request) {
	snap := s.match.Snapshot()
	writeJSON(w, http.StatusOK, gameState{Snapshot: snap, GameRunning: snap.Running(), Logs: s.match.Logs()})
}

type addTankRequest struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	BrainCode string `json:"brain_code"`
}

func (s *Server) handleAddTank(w http.ResponseWriter, r *http.Request) {
	var req addTankRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	name, err := s.match.Register(r.Context(), req.Name, req.Color, req.BrainCode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tank_name": name})
}

func (s *Server) handleRemoveTank(w http.ResponseWriter, r *http.Request) {
	if err := s.match.Remove(r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// startGameRequest takes durations in seconds.
type startGameRequest struct {
	MaxRounds    int     `json:"max_rounds"`
	RoundTime    float64 `json:"round_time"`
	ThinkTimeout float64 `json:"think_timeout"`
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	var req startGameRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	opts := match.Options{
		MaxRounds:     req.MaxRounds,
		RoundDuration: seconds(req.RoundTime),
		ThinkTimeout:  seconds(req.ThinkTimeout),
	}
	if err := s.match.Start(r.Context(), opts); err != nil {
		s.writeError(w, err)
		return
	}
	snap := s.match.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"match_id":      snap.MatchID,
		"max_rounds":    snap.MaxRounds,
		"round_time":    snap.RoundTime,
		"think_timeout": snap.ThinkTimeout,
	})
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.writeResult(w, s.match.Pause())
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.writeResult(w, s.match.Resume())
}

func (s *Server) handleStopGame(w http.ResponseWriter, _ *http.Request) {
	s.writeResult(w, s.match.Stop())
}

func (s *Server) handleResetGame(w http.ResponseWriter, r *http.Request) {
	s.match.Reset(r.Context())
	s.writeResult(w, nil)
}

func (s *Server) handleDebugData(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.match.DebugLogs())
}

func (s *Server) handleDebugAgent(w http.ResponseWriter, r *http.Request) {
	events, err := s.match.DebugLog(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.match.Logs())
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	now := time.Now().UTC()
	bundle := snapshot.Bundle{
		ExportedAt: now,
		Snapshot:   s.match.Snapshot(),
		Sources:    s.match.Sources(),
		Debug:      s.match.DebugLogs(),
		Logs:       s.match.Logs(),
	}
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="arena-%s.json.zst"`, now.Format("20060102-150405")))
	if err := snapshot.WriteBundle(w, bundle); err != nil {
		s.logger.Error("Export failed", log.Error(err))
	}
}

func (s *Server) handleSampleBrains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sampleBrains)
}

type statsResponse struct {
	Tick          uint64              `json:"tick"`
	StreamClients int                 `json:"stream_clients"`
	Bus           bus.EventBusMetrics `json:"bus"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Tick:          s.match.Snapshot().Tick,
		StreamClients: s.hub.Clients(),
		Bus:           s.match.Bus().GetMetrics(),
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) writeResult(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", log.Error(err))
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, config.ErrInvalidMatchConfig):
		return http.StatusBadRequest
	case errors.Is(err, match.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, match.ErrDuplicateName),
		errors.Is(err, match.ErrInsufficientAgents),
		errors.Is(err, match.ErrMatchNotIdle),
		errors.Is(err, match.ErrMatchNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
