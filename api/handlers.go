package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardly/domain"
	"boardly/notify"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Tasks         Tasks
	Presence      Presence
	Notifications Notifications
	Auth          Authenticator
	Deduper       Deduper
	Notifier      Notifier
	Logger        *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}

	e.GET("/api/tasks", getTasks(d.Tasks, d.Auth))
	e.POST("/api/tasks", postTask(d))
	e.PATCH("/api/tasks/:id", patchTask(d))
	e.DELETE("/api/tasks/:id", deleteTask(d.Tasks, d.Auth))
	e.POST("/api/tasks/:id/move", postMove(d))

	e.POST("/api/presence/online", postPresenceOnline(d.Presence, d.Auth))
	e.POST("/api/presence/offline", postPresenceOffline(d.Presence, d.Auth))
	e.DELETE("/api/presence", deletePresence(d.Presence, d.Auth))
	e.POST("/api/presence/viewing", postViewing(d.Presence, d.Auth))

	e.POST("/api/notifications/:id/read", postNotificationRead(d.Notifications, d.Auth))

	e.GET("/healthz", healthz())

	registerStreams(e, d)
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeJSON(c echo.Context, limit int64, v any) error {
	lr := io.LimitReader(c.Request().Body, limit)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrEmptyTitle) ||
		errors.Is(err, domain.ErrUnknownColumn) ||
		errors.Is(err, domain.ErrUnknownPriority)
}

func getTasks(tasks Tasks, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		snapshot := tasks.Snapshot()
		if snapshot == nil {
			snapshot = []domain.Task{}
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: snapshot})
	}
}

func postTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var draft domain.TaskDraft
		if err := decodeJSON(c, taskRequestMaxSize, &draft); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		id, err := d.Tasks.Add(ctx, draft)
		if err != nil {
			if isValidationError(err) {
				return c.String(http.StatusBadRequest, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}

		if d.Notifier != nil {
			created := domain.Task{ID: id, Title: draft.Title}
			d.Notifier.Send(ctx, notify.AssignmentEvent(created, userID, draft.AssignedTo))
		}
		return c.JSON(http.StatusCreated, createTaskResponse{ID: id})
	}
}

func patchTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		var patch domain.TaskPatch
		if err := decodeJSON(c, taskRequestMaxSize, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		if err := d.Tasks.Update(ctx, id, patch); err != nil {
			if isValidationError(err) {
				return c.String(http.StatusBadRequest, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update task")
		}

		if d.Notifier != nil && patch.AssignedTo != nil && *patch.AssignedTo != "" {
			d.Notifier.Send(ctx, notify.AssignmentEvent(findTask(d.Tasks, id), userID, *patch.AssignedTo))
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(tasks Tasks, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := tasks.Remove(ctx, c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to delete task")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postMove(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		metrics, spanCtx := newMoveRequestMetrics(ctx, d.Logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		// opErr is the failure that aborted the move, not the result of
		// writing the response.
		var opErr error
		defer func() {
			metrics.Log(c.Response().Status, opErr)
		}()

		authStart := time.Now()
		userID, authErr := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			opErr = authErr
			return c.String(http.StatusUnauthorized, authErr.Error())
		}

		var req moveRequest
		if decodeErr := decodeJSON(c, moveRequestMaxSize, &req); decodeErr != nil {
			metrics.SetErrorStage("decode")
			opErr = decodeErr
			return c.String(http.StatusBadRequest, "invalid body")
		}

		mv := domain.Move{
			TaskID:       c.Param("id"),
			SourceColumn: domain.Column(req.SourceColumn),
			SourceIndex:  req.SourceIndex,
			DestColumn:   domain.Column(req.DestColumn),
			DestIndex:    req.DestIndex,
		}
		if !mv.SourceColumn.Valid() {
			metrics.SetErrorStage("invalid_source")
			opErr = domain.ErrUnknownColumn
			return c.String(http.StatusBadRequest, domain.ErrUnknownColumn.Error())
		}

		key := c.Request().Header.Get("Idempotency-Key")
		if key == "" {
			key = uuid.NewString()
		}
		if d.Deduper != nil {
			added, dedupeErr := d.Deduper.Add(ctx, userID, key)
			if dedupeErr != nil {
				metrics.SetErrorStage("dedupe")
				opErr = dedupeErr
				c.Logger().Error(dedupeErr)
				return c.String(http.StatusInternalServerError, "failed to record move")
			}
			if !added {
				metrics.SetDuplicate(true)
				return c.JSON(http.StatusOK, moveResponse{IdempotencyKey: key, Duplicate: true})
			}
		}

		planStart := time.Now()
		patches, moveErr := d.Tasks.Move(ctx, mv)
		metrics.ObservePlan(time.Since(planStart))
		if moveErr != nil {
			opErr = moveErr
			// Free the key so the client can retry the same submission.
			if d.Deduper != nil {
				if remErr := d.Deduper.Remove(ctx, userID, key); remErr != nil {
					c.Logger().Errorf("dedupe remove failed: %v", remErr)
				}
			}
			if isValidationError(moveErr) {
				metrics.SetErrorStage("invalid_move")
				return c.String(http.StatusBadRequest, moveErr.Error())
			}
			metrics.SetErrorStage("move")
			c.Logger().Error(moveErr)
			return c.String(http.StatusInternalServerError, "failed to move task")
		}
		metrics.SetPatchCount(len(patches))

		if d.Notifier != nil && len(patches) > 0 && mv.DestColumn != mv.SourceColumn {
			task := findTask(d.Tasks, mv.TaskID)
			recipients := make([]string, 0)
			if task.AssignedTo != "" {
				recipients = append(recipients, task.AssignedTo)
			}
			d.Notifier.Send(ctx, notify.StatusChangeEvents(task, userID, mv.DestColumn, recipients))
		}

		return c.JSON(http.StatusOK, moveResponse{IdempotencyKey: key, Patches: len(patches)})
	}
}

func findTask(tasks Tasks, id string) domain.Task {
	for _, t := range tasks.Snapshot() {
		if t.ID == id {
			return t
		}
	}
	return domain.Task{ID: id}
}

// Presence writes are best effort: failures are logged and the client still
// gets a 204, matching the fire-and-forget lifecycle signals that drive them.
func postPresenceOnline(presence Presence, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req presenceOnlineRequest
		if err := decodeJSON(c, moveRequestMaxSize, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := presence.SetOnline(ctx, userID, req.DisplayName); err != nil {
			c.Logger().Errorf("presence online failed: %v", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postPresenceOffline(presence Presence, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := presence.SetOffline(ctx, userID); err != nil {
			c.Logger().Errorf("presence offline failed: %v", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deletePresence(presence Presence, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := presence.Remove(ctx, userID); err != nil {
			c.Logger().Errorf("presence delete failed: %v", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postViewing(presence Presence, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req viewingRequest
		if err := decodeJSON(c, moveRequestMaxSize, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Viewing && req.TaskID == "" {
			return c.String(http.StatusBadRequest, "missing taskId")
		}
		if err := presence.SetViewing(ctx, userID, req.TaskID, req.Viewing); err != nil {
			c.Logger().Errorf("presence viewing failed: %v", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postNotificationRead(notifications Notifications, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := notifications.MarkNotificationRead(ctx, userID, c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to mark notification read")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
