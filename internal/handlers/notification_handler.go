package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxIndexLimit = 100

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notificationRepository repositories.NotificationRepository
	userRepository         repositories.UserRepository
	log                    zerolog.Logger
	now                    func() time.Time
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifRepo repositories.NotificationRepository, userRepo repositories.UserRepository, log zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationRepository: notifRepo,
		userRepository:         userRepo,
		log:                    log.With().Str("handler", "notifications").Logger(),
		now:                    time.Now,
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.POST("/notifications", h.CreateNotification)
	g.GET("/notifications/keys", h.GetKeys)
	g.GET("/notifications/latest", h.GetLatest)
	g.GET("/notifications/unopened-count", h.GetUnopenedCount)
	g.PUT("/notifications/open-all", h.OpenAll)
	g.PUT("/notifications/:id/open", h.Open)
	g.DELETE("/notifications/:id", h.Delete)
}

// GroupedNotification is a group owner with its aggregated member statistics.
type GroupedNotification struct {
	models.Notification
	GroupMemberCount         int64               `json:"group_member_count"`
	GroupNotificationCount   int64               `json:"group_notification_count"`
	GroupMemberNotifierCount int64               `json:"group_member_notifier_count"`
	Actor                    *models.UserCompact `json:"actor,omitempty"`
}

// GetNotifications lists the current user's notification groups.
// filter is one of all (default), unopened or opened; limit bounds the opened index.
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	limit := h.notificationRepository.OpenedIndexLimit()
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxIndexLimit {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid limit")
		}
		limit = n
	}

	filters, err := filterScopes(c)
	if err != nil {
		return err
	}

	target := user.Ref()
	var owners []models.Notification
	switch filter := c.QueryParam("filter"); filter {
	case "", "all", "unopened", "opened":
		if filter != "opened" {
			unopened, err := h.findIndex(ctx, h.notificationRepository.UnopenedIndex(target), filters)
			if err != nil {
				return httpError(h.log, err)
			}
			owners = append(owners, unopened...)
		}
		if filter != "unopened" {
			opened, err := h.findIndex(ctx, h.notificationRepository.OpenedIndex(target, limit), filters)
			if err != nil {
				return httpError(h.log, err)
			}
			owners = appendMissing(owners, opened)
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "filter must be one of all, unopened, opened")
	}

	grouped, err := h.group(ctx, owners, limit)
	if err != nil {
		return httpError(h.log, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": grouped,
		},
		"meta": echo.Map{
			"count": len(grouped),
			"limit": limit,
		},
	})
}

func (h *NotificationHandler) findIndex(ctx context.Context, q *repositories.NotificationQuery, filters []repositories.Scope) ([]models.Notification, error) {
	return q.Where(filters...).WithNotifier().WithNotifiable().WithGroup().Find(ctx)
}

// group attaches member and notifier counts to each owner. All owners share one
// GroupCountCache, so the whole page costs at most one aggregate query per open state.
func (h *NotificationHandler) group(ctx context.Context, owners []models.Notification, limit int) ([]GroupedNotification, error) {
	cache := h.notificationRepository.NewGroupCountCache()
	grouped := make([]GroupedNotification, len(owners))
	for i := range owners {
		owner := &owners[i]
		members, err := cache.GroupMemberCount(ctx, owner, limit)
		if err != nil {
			return nil, err
		}
		notifiers, err := cache.GroupMemberNotifierCount(ctx, owner, limit)
		if err != nil {
			return nil, err
		}
		grouped[i] = GroupedNotification{
			Notification:             *owner,
			GroupMemberCount:         members,
			GroupNotificationCount:   members + 1,
			GroupMemberNotifierCount: notifiers,
		}
		if actor, ok := owner.NotifierEntity.(*models.User); ok {
			compact := actor.ToCompact()
			grouped[i].Actor = &compact
		}
	}
	return grouped, nil
}

// CreateNotification notifies a target on behalf of the current user.
func (h *NotificationHandler) CreateNotification(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	var req models.NotifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	n, err := h.notificationRepository.Notify(c.Request().Context(), repositories.NotifyInput{
		Target:     models.UserRef(req.TargetID),
		Notifiable: models.Ref{Type: req.NotifiableType, ID: req.NotifiableID},
		Key:        req.Key,
		Group:      models.Ref{Type: req.GroupType, ID: req.GroupID},
		Notifier:   user.Ref(),
		Parameters: req.Parameters,
	})
	if err != nil {
		return httpError(h.log, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": n})
}

// GetKeys returns the distinct notification keys of the current user.
func (h *NotificationHandler) GetKeys(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	keys, err := h.notificationRepository.Query(repositories.FilteredByTarget(user.Ref())).UniqKeys(c.Request().Context())
	if err != nil {
		return httpError(h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"keys": keys}})
}

// GetLatest returns the current user's most recent notification.
func (h *NotificationHandler) GetLatest(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	n, err := h.notificationRepository.Query(repositories.FilteredByTarget(user.Ref())).
		WithNotifier().
		Latest(c.Request().Context())
	if err != nil {
		return httpError(h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": n})
}

// GetUnopenedCount returns the number of unopened groups, the usual badge value.
func (h *NotificationHandler) GetUnopenedCount(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	count, err := h.notificationRepository.UnopenedIndex(user.Ref()).Count(c.Request().Context())
	if err != nil {
		return httpError(h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// Open marks one notification, and by default its group members, as opened.
func (h *NotificationHandler) Open(c echo.Context) error {
	ctx := c.Request().Context()
	n, err := h.ownedNotification(c)
	if err != nil {
		return err
	}

	withMembers := true
	if raw := c.QueryParam("with_members"); raw != "" {
		if withMembers, err = strconv.ParseBool(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid with_members")
		}
	}

	count, err := h.notificationRepository.Open(ctx, n.ID, h.now(), withMembers)
	if err != nil {
		return httpError(h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"opened": count}})
}

// OpenAll opens every unopened notification of the current user, optionally by key.
func (h *NotificationHandler) OpenAll(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	filters, err := filterScopes(c)
	if err != nil {
		return err
	}

	count, err := h.notificationRepository.OpenAll(c.Request().Context(), user.Ref(), filters...)
	if err != nil {
		return httpError(h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"opened": count}})
}

// Delete removes a notification; owners that still have members are kept (409).
func (h *NotificationHandler) Delete(c echo.Context) error {
	n, err := h.ownedNotification(c)
	if err != nil {
		return err
	}

	if err := h.notificationRepository.Delete(c.Request().Context(), n.ID); err != nil {
		return httpError(h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *NotificationHandler) currentUser(c echo.Context) (*models.User, error) {
	firebaseUID, _ := c.Get(middleware.FirebaseUIDKey).(string)
	if firebaseUID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	user, err := h.userRepository.GetUserByFirebaseUID(c.Request().Context(), firebaseUID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "Authenticated user not found in database")
		}
		return nil, httpError(h.log, err)
	}
	return user, nil
}

// ownedNotification loads the :id notification if it targets the current user.
func (h *NotificationHandler) ownedNotification(c echo.Context) (*models.Notification, error) {
	user, err := h.currentUser(c)
	if err != nil {
		return nil, err
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	n, err := h.notificationRepository.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		return nil, httpError(h.log, err)
	}
	if n.Target != user.Ref() {
		return nil, httpError(h.log, models.ErrNotFound)
	}
	return n, nil
}

// appendMissing appends the owners not already listed. An unopened owner with
// opened members belongs to both indexes but is shown once.
func appendMissing(owners, more []models.Notification) []models.Notification {
	seen := make(map[uint]bool, len(owners))
	for i := range owners {
		seen[owners[i].ID] = true
	}
	for i := range more {
		if !seen[more[i].ID] {
			owners = append(owners, more[i])
		}
	}
	return owners
}

// filterScopes reads the optional key, notifiable_type and group filters.
func filterScopes(c echo.Context) ([]repositories.Scope, error) {
	var scopes []repositories.Scope
	if key := c.QueryParam("key"); key != "" {
		scopes = append(scopes, repositories.FilteredByKey(key))
	}
	if typ := c.QueryParam("notifiable_type"); typ != "" {
		scopes = append(scopes, repositories.FilteredByType(typ))
	}

	groupType, groupID := c.QueryParam("group_type"), c.QueryParam("group_id")
	switch {
	case groupType != "" && groupID != "":
		scopes = append(scopes, repositories.FilteredByGroup(models.Ref{Type: groupType, ID: groupID}))
	case groupType != "" || groupID != "":
		return nil, echo.NewHTTPError(http.StatusBadRequest, "group_type and group_id must be given together")
	}
	return scopes, nil
}
