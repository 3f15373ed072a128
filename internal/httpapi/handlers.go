package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/notify"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/scheduler"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/storage"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/trigger"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

// Dispatcher is the notify.Service surface the API uses.
type Dispatcher interface {
	Send(ctx context.Context, p notify.Params) notify.Result
	SendToInstitution(ctx context.Context, institutionID string, p notify.Params) ([]notify.Result, error)
	ListForUser(ctx context.Context, userID string, opt domain.ListOptions) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int, error)
}

type PreferenceStore interface {
	ListPreferences(ctx context.Context, userID string) ([]domain.Preference, error)
	UpsertPreference(ctx context.Context, userID string, cat domain.Category, changes domain.PreferenceChanges) (domain.Preference, error)
}

type LegacyCreator interface {
	CreateNotification(ctx context.Context, userID, legacyType, title, message, entityType, entityID string) notify.Result
}

type TriggerRunner interface {
	RunByName(ctx context.Context, name string) (trigger.Stats, error)
}

type JobLister interface {
	Entries() []scheduler.Entry
}

// Deps are the services behind the routes. Triggers and Jobs may be nil.
type Deps struct {
	Dispatcher  Dispatcher
	Preferences PreferenceStore
	Legacy      LegacyCreator
	Triggers    TriggerRunner
	Jobs        JobLister
}

type handlers struct {
	deps Deps
	log  logx.Logger
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) listPreferences(c *gin.Context) {
	prefs, err := h.deps.Preferences.ListPreferences(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]preferenceDTO, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, toPreferenceDTO(p))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h *handlers) updatePreference(c *gin.Context) {
	cat, ok := domain.ParseCategory(c.Param("category"))
	if !ok {
		h.fail(c, notify.ErrInvalidCategory)
		return
	}
	var changes domain.PreferenceChanges
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if changes.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}
	pref, err := h.deps.Preferences.UpsertPreference(c.Request.Context(), c.Param("id"), cat, changes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPreferenceDTO(pref))
}

func (h *handlers) listNotifications(c *gin.Context) {
	opt := domain.ListOptions{Limit: defaultPageSize}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if n == 0 {
			n = defaultPageSize
		}
		opt.Limit = min(n, maxPageSize)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
		opt.Offset = n
	}
	opt.UnreadOnly = c.Query("unread_only") == "true"

	ctx := c.Request.Context()
	userID := c.Param("id")
	items, err := h.deps.Dispatcher.ListForUser(ctx, userID, opt)
	if err != nil {
		h.fail(c, err)
		return
	}
	unread, err := h.deps.Dispatcher.UnreadCount(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]notificationDTO, 0, len(items))
	for _, n := range items {
		out = append(out, toNotificationDTO(n))
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "unread": unread})
}

func (h *handlers) markRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids required"})
		return
	}
	n, err := h.deps.Dispatcher.MarkRead(c.Request.Context(), c.Param("id"), req.IDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *handlers) send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	if req.UserID == "" && req.InstitutionID != "" {
		results, err := h.deps.Dispatcher.SendToInstitution(ctx, req.InstitutionID, req.params())
		if err != nil {
			h.fail(c, err)
			return
		}
		out := make([]resultDTO, 0, len(results))
		for _, r := range results {
			out = append(out, toResultDTO(r))
		}
		c.JSON(http.StatusOK, gin.H{"results": out})
		return
	}
	h.result(c, h.deps.Dispatcher.Send(ctx, req.params()))
}

func (h *handlers) sendLegacy(c *gin.Context) {
	var req legacyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	h.result(c, h.deps.Legacy.CreateNotification(c.Request.Context(),
		req.UserID, req.Type, req.Title, req.Message, req.EntityType, req.EntityID))
}

func (h *handlers) runTrigger(c *gin.Context) {
	if h.deps.Triggers == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "triggers unavailable"})
		return
	}
	stats, err := h.deps.Triggers.RunByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handlers) listJobs(c *gin.Context) {
	var jobs []scheduler.Entry
	if h.deps.Jobs != nil {
		jobs = h.deps.Jobs.Entries()
	}
	c.JSON(http.StatusOK, gin.H{"triggers": trigger.Names(), "jobs": jobs})
}

// result writes one dispatch outcome. A partial failure is still 200 with
// the error attached; nothing delivered plus an error is a failure status.
func (h *handlers) result(c *gin.Context, r notify.Result) {
	if r.Err != nil && !r.Delivered() {
		c.JSON(statusFor(r.Err), toResultDTO(r))
		return
	}
	c.JSON(http.StatusOK, toResultDTO(r))
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("http request failed", logx.String("route", c.FullPath()), logx.Err(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var de *notify.DispatchError
	switch {
	case errors.As(err, &de) && de.Op == "validate":
		return http.StatusBadRequest
	case errors.Is(err, notify.ErrInvalidCategory),
		errors.Is(err, notify.ErrInvalidPriority),
		errors.Is(err, notify.ErrInvalidChannel),
		errors.Is(err, notify.ErrMissingUser),
		errors.Is(err, notify.ErrMissingType):
		return http.StatusBadRequest
	case errors.Is(err, trigger.ErrUnknownTrigger), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
