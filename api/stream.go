package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"boardly/domain"
	"boardly/store"
)

// registerStreams wires the SSE endpoints. The task and presence brokers are
// shared across connections and woken by store snapshot replacements; the
// notification stream builds a per-connection inbox instead, since rows are
// partitioned by recipient.
func registerStreams(e *echo.Echo, d Deps) {
	taskBroker := newUpdateBroker()
	presenceBroker := newUpdateBroker()
	if d.Tasks != nil {
		d.Tasks.OnChange(taskBroker.notify)
	}
	if d.Presence != nil {
		d.Presence.OnChange(presenceBroker.notify)
	}

	e.GET("/stream/tasks", streamTasks(d.Tasks, d.Auth, taskBroker))
	e.GET("/stream/presence", streamPresence(d.Presence, d.Auth, presenceBroker))
	e.GET("/stream/notifications", streamNotifications(d))
}

// authForStream accepts the bearer token either in the Authorization header
// or as a token query parameter, since EventSource cannot set headers.
func authForStream(c echo.Context, auth Authenticator) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			authHeader = "Bearer " + token
		}
	}
	return auth.UserIDFromAuthHeader(authHeader)
}

func startStream(c echo.Context) (http.Flusher, error) {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return nil, c.String(http.StatusInternalServerError, "stream unsupported")
	}
	return flusher, nil
}

func writeEvent(c echo.Context, flusher http.Flusher, v any) error {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func streamTasks(tasks Tasks, auth Authenticator, broker *updateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authForStream(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		flusher, err := startStream(c)
		if flusher == nil {
			return err
		}

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)
		for {
			snapshot := tasks.Snapshot()
			if snapshot == nil {
				snapshot = []domain.Task{}
			}
			if err := writeEvent(c, flusher, tasksResponse{Tasks: snapshot}); err != nil {
				c.Logger().Error(err)
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
			}
		}
	}
}

func streamPresence(presence Presence, auth Authenticator, broker *updateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authForStream(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		flusher, err := startStream(c)
		if flusher == nil {
			return err
		}

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)
		for {
			payload := buildPresencePayload(presence, userID)
			if err := writeEvent(c, flusher, payload); err != nil {
				c.Logger().Error(err)
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
			}
		}
	}
}

// buildPresencePayload snapshots the presence map together with the viewers
// projection for this connection's user. The projection excludes the user
// themselves, so each connection gets its own rendering of the same map.
func buildPresencePayload(presence Presence, selfUserID string) presencePayload {
	entries := presence.Snapshot()
	payload := presencePayload{
		Presence: make(map[string]presenceEntryJSON, len(entries)),
		Viewers:  make(map[string][]viewerJSON),
	}
	for userID, entry := range entries {
		payload.Presence[userID] = presenceEntryJSON{
			DisplayName:        entry.DisplayName,
			Online:             entry.Online,
			LastSeen:           entry.LastSeen,
			CurrentTaskViewing: entry.CurrentTaskViewing,
		}
	}
	for taskID, viewers := range presence.Viewers(selfUserID) {
		out := make([]viewerJSON, len(viewers))
		for i, v := range viewers {
			out[i] = viewerJSON{UserID: v.UserID, DisplayName: v.DisplayName}
		}
		payload.Viewers[taskID] = out
	}
	return payload
}

func streamNotifications(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authForStream(c, d.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		flusher, err := startStream(c)
		if flusher == nil {
			return err
		}

		ctx := c.Request().Context()
		inbox := store.NewNotifications(userID, d.Notifications, d.Logger)
		broker := newUpdateBroker()
		inbox.OnChange(broker.notify)
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)

		cancel, err := inbox.Subscribe(ctx)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to subscribe")
		}
		defer cancel()

		for {
			if err := writeEvent(c, flusher, buildNotificationsPayload(inbox)); err != nil {
				c.Logger().Error(err)
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
			}
		}
	}
}

func buildNotificationsPayload(inbox *store.Notifications) notificationsPayload {
	items := inbox.Snapshot()
	payload := notificationsPayload{
		Notifications: make([]notificationJSON, len(items)),
		Unread:        inbox.Unread(),
	}
	for i, n := range items {
		payload.Notifications[i] = notificationJSON{
			ID:        n.ID,
			Type:      string(n.Type),
			Title:     n.Title,
			Message:   n.Message,
			ActorID:   n.ActorID,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		}
	}
	return payload
}
