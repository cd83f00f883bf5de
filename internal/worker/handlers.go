package worker

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/ecotrace/internal/db/gorm"
	"github.com/thebtf/ecotrace/pkg/models"
)

// kgCO2ePerKmDriven converts a footprint total into the equivalent
// distance driven by an average passenger car.
const kgCO2ePerKmDriven = 0.12

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

type assessRequest struct {
	Items []models.Item `json:"items"`
}

// handleAssess runs the full assessment pipeline for a batch of items.
func (s *Service) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items must not be empty")
		return
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" {
			writeError(w, http.StatusBadRequest, "item "+strconv.Itoa(i)+": item_name must not be empty")
			return
		}
		if item.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "item "+strconv.Itoa(i)+": quantity must be positive")
			return
		}
		if strings.TrimSpace(item.Unit) == "" {
			writeError(w, http.StatusBadRequest, "item "+strconv.Itoa(i)+": unit must not be empty")
			return
		}
	}

	result, err := s.coordinator.ProcessBatch(r.Context(), userID(r), req.Items)
	if err != nil {
		log.Error().Err(err).Str("userId", userID(r)).Msg("Batch assessment failed")
		writeError(w, http.StatusInternalServerError, "assessment failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDashboardStats returns the user's lifetime totals.
func (s *Service) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	total, byCategory, err := s.footprints.Stats(r.Context(), userID(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to aggregate stats")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_co2e_kg":        total,
		"by_category":          byCategory,
		"equivalent_km_driven": math.Round(total/kgCO2ePerKmDriven*100) / 100,
	})
}

// handleDashboardTrends returns daily totals for the trailing window.
// Rollups serve the query when populated; live records fill the gap for
// days the nightly job has not covered yet.
func (s *Service) handleDashboardTrends(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = parsed
	}

	sinceDay := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	trends, err := s.rollups.TrendsSince(r.Context(), userID(r), sinceDay)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read rollup trends")
		writeError(w, http.StatusInternalServerError, "failed to load trends")
		return
	}
	if len(trends) == 0 {
		trends, err = s.footprints.TrendsSince(r.Context(), userID(r), sinceDay)
		if err != nil {
			log.Error().Err(err).Msg("Failed to aggregate live trends")
			writeError(w, http.StatusInternalServerError, "failed to load trends")
			return
		}
	}
	if trends == nil {
		trends = []gorm.DayTotal{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":   days,
		"trends": trends,
	})
}

type goalRequest struct {
	Target float64 `json:"target"`
	Period string  `json:"period"`
}

var validPeriods = map[string]bool{"weekly": true, "monthly": true, "yearly": true}

// handleSetGoal replaces the user's active reduction goal.
func (s *Service) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target <= 0 {
		writeError(w, http.StatusBadRequest, "target must be positive")
		return
	}
	if req.Period == "" {
		req.Period = "monthly"
	}
	if !validPeriods[req.Period] {
		writeError(w, http.StatusBadRequest, "period must be weekly, monthly, or yearly")
		return
	}

	goal, err := s.goals.SetGoal(r.Context(), userID(r), req.Target, req.Period)
	if err != nil {
		log.Error().Err(err).Msg("Failed to set goal")
		writeError(w, http.StatusInternalServerError, "failed to set goal")
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

// handleGetGoal returns the user's active goal.
func (s *Service) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.goals.ActiveGoal(r.Context(), userID(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch goal")
		writeError(w, http.StatusInternalServerError, "failed to load goal")
		return
	}
	if goal == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No active goal found"})
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// handleGetProfile returns the authenticated user's profile, creating it
// on first access.
func (s *Service) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetOrCreate(r.Context(), userID(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to load profile")
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(user))
}

// profileResponse flattens the nullable profile columns for the API.
func profileResponse(user *gorm.User) map[string]interface{} {
	var email, name interface{}
	if user.Email.Valid {
		email = user.Email.String
	}
	if user.Name.Valid {
		name = user.Name.String
	}
	return map[string]interface{}{
		"user_id":              user.ExternalID,
		"email":                email,
		"name":                 name,
		"onboarding_completed": user.OnboardingCompleted,
		"created_at":           user.CreatedAt,
		"last_login_at":        user.LastLoginAt,
	}
}

type profileUpdateRequest struct {
	Email *string `json:"email"`
	Name  *string `json:"name"`
}

// handleUpdateProfile updates email and/or name.
func (s *Service) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.UpdateProfile(r.Context(), userID(r), req.Email, req.Name)
	if err != nil {
		log.Error().Err(err).Msg("Failed to update profile")
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(user))
}

// handleCompleteOnboarding marks onboarding as finished.
func (s *Service) handleCompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	if _, err := s.users.GetOrCreate(r.Context(), userID(r)); err != nil {
		log.Error().Err(err).Msg("Failed to ensure profile")
		writeError(w, http.StatusInternalServerError, "failed to complete onboarding")
		return
	}
	if err := s.users.CompleteOnboarding(r.Context(), userID(r)); err != nil {
		log.Error().Err(err).Msg("Failed to complete onboarding")
		writeError(w, http.StatusInternalServerError, "failed to complete onboarding")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"onboarding_completed": true})
}

// handleSetPreferences upserts preference key/value pairs.
func (s *Service) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs map[string]string
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(prefs) == 0 {
		writeError(w, http.StatusBadRequest, "preferences must not be empty")
		return
	}

	for key, value := range prefs {
		if err := s.contexts.SetPreference(r.Context(), userID(r), key, value); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to set preference")
			writeError(w, http.StatusInternalServerError, "failed to save preferences")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(prefs)})
}

// handleDailyQuote returns a sustainability quote with a tip. Generation
// degrades to a fixed fallback, so this never errors.
func (s *Service) handleDailyQuote(w http.ResponseWriter, r *http.Request) {
	outcome := s.quotes.Quote(r.Context())
	writeJSON(w, http.StatusOK, outcome.Quote)
}

// handleExport bundles everything stored about the user into one JSON
// document.
func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := userID(r)

	records, err := s.footprints.ListByUser(ctx, uid)
	if err != nil {
		log.Error().Err(err).Msg("Failed to export records")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	goals, err := s.goals.ListByUser(ctx, uid)
	if err != nil {
		log.Error().Err(err).Msg("Failed to export goals")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	prefs, err := s.contexts.ListPreferences(ctx, uid)
	if err != nil {
		log.Error().Err(err).Msg("Failed to export preferences")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	logs, err := s.contexts.ListMemoryLogs(ctx, uid)
	if err != nil {
		log.Error().Err(err).Msg("Failed to export memory logs")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"export_id":         uuid.NewString(),
		"user_id":           uid,
		"exported_at":       time.Now().UTC().Format(time.RFC3339),
		"footprint_records": records,
		"goals":             goals,
		"preferences":       prefs,
		"memory_logs":       logs,
		"session_history":   s.sessions.History(uid),
	})
}

// handleDeleteData erases everything stored about the user, in-memory
// session included.
func (s *Service) handleDeleteData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := userID(r)

	if err := s.footprints.DeleteByUser(ctx, uid); err != nil {
		log.Error().Err(err).Msg("Failed to delete records")
		writeError(w, http.StatusInternalServerError, "deletion failed")
		return
	}
	if err := s.goals.DeleteByUser(ctx, uid); err != nil {
		log.Error().Err(err).Msg("Failed to delete goals")
		writeError(w, http.StatusInternalServerError, "deletion failed")
		return
	}
	if err := s.contexts.DeleteByUser(ctx, uid); err != nil {
		log.Error().Err(err).Msg("Failed to delete context")
		writeError(w, http.StatusInternalServerError, "deletion failed")
		return
	}
	s.sessions.Clear(uid)

	log.Info().Str("userId", uid).Msg("User data erased")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleHealth reports liveness. Not authenticated.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"ready":          s.ready.Load(),
		"sse_clients":    s.broadcaster.ClientCount(),
	})
}
