package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lingodesk/bellhop/internal/crm"
	"github.com/lingodesk/bellhop/internal/domain"
	"github.com/lingodesk/bellhop/internal/pkg/httputil"
	"github.com/lingodesk/bellhop/internal/realtime"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: crm.ErrUnauthorized, Status: http.StatusBadGateway, Message: "session token rejected by the crm"},
}

// Connection is the read-only view of the push channel exposed over
// the local API.
type Connection interface {
	State() realtime.State
	Attempt() int
}

// PreferenceStore serves and updates the cached user preferences.
type PreferenceStore interface {
	Current(ctx context.Context) domain.Preferences
	Update(ctx context.Context, prefs domain.Preferences) error
}

// Handler exposes the dispatcher over the loopback control API
// consumed by the host shell.
type Handler struct {
	dispatcher *Dispatcher
	prefs      PreferenceStore
	conn       Connection
	validator  *validator.Validate
}

// NewHandler creates a handler over the dispatcher, the preference
// cache and the push connection.
func NewHandler(dispatcher *Dispatcher, prefs PreferenceStore, conn Connection) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		prefs:      prefs,
		conn:       conn,
		validator:  validator.New(),
	}
}

// RegisterRoutes registers the control API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.ListNotifications)
		r.Get("/unread-count", h.UnreadCount)
		r.Post("/{id}/read", h.MarkRead)
		r.Post("/read-all", h.MarkAllRead)
	})
	r.Get("/preferences", h.GetPreferences)
	r.Put("/preferences", h.UpdatePreferences)
	r.Get("/connection", h.Connection)
}

// ListNotifications handles GET /notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	unreadOnly := q.Get("unread_only") == "true"

	notifications, err := h.dispatcher.List(r.Context(), limit, offset, unreadOnly)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, notifications)
}

// UnreadCount handles GET /notifications/unread-count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, map[string]int{
		"count": h.dispatcher.UnreadCount(),
	})
}

// MarkRead handles POST /notifications/{id}/read. The local counter
// updates even when the upstream acknowledgment fails.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.dispatcher.MarkRead(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{
		"unread": h.dispatcher.UnreadCount(),
	})
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	count, err := h.dispatcher.MarkAllRead(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{
		"acknowledged": count,
	})
}

// GetPreferences handles GET /preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, h.prefs.Current(r.Context()))
}

// UpdatePreferencesRequest is the PUT /preferences body.
type UpdatePreferencesRequest struct {
	Enabled          bool                   `json:"enabled"`
	SoundEnabled     bool                   `json:"sound_enabled"`
	DesktopEnabled   bool                   `json:"desktop_enabled"`
	VibrationEnabled bool                   `json:"vibration_enabled"`
	Kinds            map[domain.Kind]bool   `json:"kinds"`
	QuietHours       UpdateQuietHoursFields `json:"quiet_hours"`
}

// UpdateQuietHoursFields carries the quiet-hours window. Start and
// end are "HH:MM" on a 24h clock, both set or both empty.
type UpdateQuietHoursFields struct {
	WeekdayStart  string `json:"weekday_start" validate:"omitempty,datetime=15:04"`
	WeekdayEnd    string `json:"weekday_end" validate:"omitempty,datetime=15:04"`
	WeekendAllDay bool   `json:"weekend_all_day"`
}

// UpdatePreferences handles PUT /preferences. Writes through to the
// CRM and refreshes the local cache.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}
	if (req.QuietHours.WeekdayStart == "") != (req.QuietHours.WeekdayEnd == "") {
		httputil.Error(w, http.StatusBadRequest, "quiet hours require both start and end")
		return
	}

	prefs := domain.Preferences{
		Enabled:          req.Enabled,
		SoundEnabled:     req.SoundEnabled,
		DesktopEnabled:   req.DesktopEnabled,
		VibrationEnabled: req.VibrationEnabled,
		Kinds:            req.Kinds,
		QuietHours: domain.QuietHours{
			WeekdayStart:  req.QuietHours.WeekdayStart,
			WeekdayEnd:    req.QuietHours.WeekdayEnd,
			WeekendAllDay: req.QuietHours.WeekendAllDay,
		},
	}

	if err := h.prefs.Update(r.Context(), prefs); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, prefs)
}

// ConnectionStatus is the GET /connection payload.
type ConnectionStatus struct {
	State     realtime.State `json:"state"`
	Attempt   int            `json:"attempt"`
	CheckedAt time.Time      `json:"checked_at"`
}

// Connection handles GET /connection.
func (h *Handler) Connection(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, ConnectionStatus{
		State:     h.conn.State(),
		Attempt:   h.conn.Attempt(),
		CheckedAt: time.Now().UTC(),
	})
}
