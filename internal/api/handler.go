package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/reviewalarm/internal/analytics"
	"github.com/example/reviewalarm/internal/excel"
	"github.com/example/reviewalarm/internal/knowledge"
	"github.com/example/reviewalarm/internal/scheduler"
	"github.com/example/reviewalarm/internal/spaced_repetition"
	"github.com/example/reviewalarm/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// OwnerHeader carries the acting learner's id
const OwnerHeader = "X-Owner-ID"

// DefaultMaxImportBytes caps the body of an import upload
const DefaultMaxImportBytes = 10 << 20

// SettingsStore persists whether reminders are switched on
type SettingsStore interface {
	SetEnabled(ctx context.Context, userID int64, enabled bool, defaults models.ReminderSettings) error
}

// Deps are the services the API exposes
type Deps struct {
	Engine   *spaced_repetition.Engine
	Items    *knowledge.Service
	Stats    *analytics.Service
	Poller   *scheduler.Poller
	Importer *excel.Importer
	Settings SettingsStore
	OwnerID  int64 // used when the request has no owner header
	Logger   *zap.Logger
	Now      func() time.Time
	// MaxImportBytes defaults to DefaultMaxImportBytes
	MaxImportBytes int64
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine       *spaced_repetition.Engine
	items        *knowledge.Service
	stats        *analytics.Service
	poller       *scheduler.Poller
	importer     *excel.Importer
	settings     SettingsStore
	defaultOwner int64
	maxImport    int64
	logger       *zap.Logger
	now          func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		engine:       deps.Engine,
		items:        deps.Items,
		stats:        deps.Stats,
		poller:       deps.Poller,
		importer:     deps.Importer,
		settings:     deps.Settings,
		defaultOwner: deps.OwnerID,
		maxImport:    deps.MaxImportBytes,
		logger:       deps.Logger,
		now:          deps.Now,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.maxImport <= 0 {
		h.maxImport = DefaultMaxImportBytes
	}
	return h
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", OwnerHeader},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/stages", h.listStages)

		r.Get("/items", h.listItems)
		r.Post("/items", h.createItem)
		r.Post("/items/import", h.importItems)
		r.Get("/items/{id}", h.getItem)
		r.Put("/items/{id}", h.updateItem)
		r.Delete("/items/{id}", h.archiveItem)
		r.Get("/items/{id}/status", h.itemStatus)
		r.Post("/items/{id}/pull", h.pullForward)

		r.Get("/reviews/due", h.dueReviews)
		r.Post("/reviews/{id}/complete", h.completeReview)

		r.Get("/stats", h.overview)
		r.Get("/stats/daily", h.dailyStats)
		r.Get("/stats/stages", h.stageStats)
		r.Get("/stats/effectiveness", h.effectivenessStats)
		r.Get("/stats/categories", h.categoryStats)

		r.Post("/reminder/start", h.startReminder)
		r.Post("/reminder/stop", h.stopReminder)
		r.Get("/reminder/status", h.reminderStatus)
		r.Put("/reminder/interval", h.setReminderInterval)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stageResponse struct {
	Stage        int     `json:"stage"`
	Label        string  `json:"label"`
	Description  string  `json:"description"`
	DelaySeconds float64 `json:"delay_seconds"`
}

func (h *Handler) listStages(w http.ResponseWriter, r *http.Request) {
	defs := h.engine.Stages().All()
	out := make([]stageResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, stageResponse{
			Stage:        d.Index,
			Label:        d.Label,
			Description:  d.Description,
			DelaySeconds: d.Delay.Seconds(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- items ---

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var (
		items []models.KnowledgeItem
		err   error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		items, err = h.items.Search(r.Context(), owner, q)
	} else {
		activeOnly := r.URL.Query().Get("all") != "true"
		items, err = h.items.List(r.Context(), owner, activeOnly)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type createItemResponse struct {
	Item     *models.KnowledgeItem  `json:"item"`
	Schedule *models.ReviewSchedule `json:"schedule"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var in knowledge.Input
	if !decode(w, r, &in) {
		return
	}
	item, sched, err := h.items.Add(r.Context(), owner, in, h.now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createItemResponse{Item: item, Schedule: sched})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	item, err := h.items.Get(r.Context(), owner, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	var in knowledge.Input
	if !decode(w, r, &in) {
		return
	}
	item, err := h.items.Update(r.Context(), owner, id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) archiveItem(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	if err := h.items.Archive(r.Context(), owner, id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "archived": true})
}

func (h *Handler) itemStatus(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	if _, err := h.items.Get(r.Context(), owner, id); err != nil {
		h.writeError(w, err)
		return
	}
	status, err := h.engine.ItemStatus(r.Context(), id, owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type pullRequest struct {
	DelayMinutes int `json:"delay_minutes"`
}

func (h *Handler) pullForward(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	var req pullRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	delay := time.Duration(req.DelayMinutes) * time.Minute
	sched, err := h.engine.PullForward(r.Context(), id, owner, h.now(), delay)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (h *Handler) importItems(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxImport))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("import file exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload"})
		return
	}

	cfg := excel.DefaultImportConfig()
	var result *excel.ImportResult
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		result, err = h.importer.ImportCSV(r.Context(), owner, bytes.NewReader(data), cfg)
	} else {
		result, err = h.importer.ImportExcel(r.Context(), owner, bytes.NewReader(data), cfg)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- reviews ---

func (h *Handler) dueReviews(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	asOf := h.now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "as_of must be an RFC3339 timestamp"})
			return
		}
		asOf = t
	}
	due, err := h.engine.FindDueSchedules(r.Context(), owner, asOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, due)
}

type completeRequest struct {
	Effectiveness int     `json:"effectiveness"`
	RecallScore   float64 `json:"recall_score"`
	Note          string  `json:"note"`
}

func (h *Handler) completeReview(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.engine.CompleteReview(r.Context(), spaced_repetition.CompleteRequest{
		ScheduleID:    id,
		OwnerID:       owner,
		Effectiveness: req.Effectiveness,
		RecallScore:   req.RecallScore,
		Note:          req.Note,
		Now:           h.now(),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- stats ---

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	ov, err := h.stats.Overview(r.Context(), owner, h.now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *Handler) dailyStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be between 1 and 365"})
			return
		}
		days = n
	}
	stats, err := h.stats.DailyReviews(r.Context(), owner, h.now(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) stageStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	stats, err := h.stats.StageDistribution(r.Context(), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) effectivenessStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	stats, err := h.stats.EffectivenessDistribution(r.Context(), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) categoryStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	stats, err := h.stats.CategoryCounts(r.Context(), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- reminders ---

type startResponse struct {
	Started bool             `json:"started"`
	Message string           `json:"message"`
	Status  scheduler.Status `json:"status"`
}

func (h *Handler) startReminder(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	started, err := h.poller.Start(owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := startResponse{Started: started, Message: "reminders started", Status: h.poller.Status()}
	if !started {
		resp.Message = "already running"
	} else {
		h.saveEnabled(r, owner, true)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) stopReminder(w http.ResponseWriter, r *http.Request) {
	st := h.poller.Status()
	h.poller.Stop()
	if st.Running {
		h.saveEnabled(r, st.OwnerID, false)
	}
	writeJSON(w, http.StatusOK, h.poller.Status())
}

func (h *Handler) reminderStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.poller.Status())
}

type intervalRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

func (h *Handler) setReminderInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.poller.SetInterval(time.Duration(req.IntervalSeconds) * time.Second); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.poller.Status())
}

func (h *Handler) saveEnabled(r *http.Request, owner int64, enabled bool) {
	if h.settings == nil {
		return
	}
	defaults := models.ReminderSettings{
		IntervalSeconds: h.poller.Status().PeriodSeconds,
		EndHour:         23,
	}
	if err := h.settings.SetEnabled(r.Context(), owner, enabled, defaults); err != nil {
		h.logger.Warn("failed to save reminder settings", zap.Int64("owner_id", owner), zap.Error(err))
	}
}

// --- helpers ---

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v := r.Header.Get(OwnerHeader)
	if v == "" {
		return h.defaultOwner, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + OwnerHeader + " header"})
		return 0, false
	}
	return id, true
}

func (h *Handler) ownerAndID(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, 0, false
	}
	return owner, id, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *spaced_repetition.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, scheduler.ErrIntervalTooShort):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, spaced_repetition.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, spaced_repetition.ErrPrecondition):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": err.Error(), "already_handled": true})
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
