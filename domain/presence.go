package domain

import "sort"

// PresenceEntry is one user's slot in the ephemeral presence map. Fields are
// last-write-wins; no history is kept.
type PresenceEntry struct {
	UserID             string `json:"userId"`
	DisplayName        string `json:"displayName"`
	Online             bool   `json:"online"`
	LastSeen           int64  `json:"lastSeen"`
	CurrentTaskViewing string `json:"currentTaskViewing,omitempty"`
}

// PresenceWrite is a partial write to one user's presence slot. Nil fields
// are left untouched; ClearViewing removes the viewing pointer the way the
// original channel removes a sub-key.
type PresenceWrite struct {
	DisplayName  *string
	Online       *bool
	LastSeen     *int64
	Viewing      *string
	ClearViewing bool
}

// Viewer identifies a user currently looking at a task's edit dialog.
type Viewer struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Viewers projects the presence map into taskID -> viewers, excluding the
// local session's own user id. Viewers are sorted by display name (then user
// id) so repeated projections of the same map compare equal.
func Viewers(presence map[string]PresenceEntry, selfUserID string) map[string][]Viewer {
	out := make(map[string][]Viewer)
	for userID, entry := range presence {
		if userID == selfUserID || entry.CurrentTaskViewing == "" {
			continue
		}
		out[entry.CurrentTaskViewing] = append(out[entry.CurrentTaskViewing], Viewer{
			UserID:      userID,
			DisplayName: entry.DisplayName,
		})
	}
	for _, viewers := range out {
		sort.Slice(viewers, func(i, j int) bool {
			if viewers[i].DisplayName != viewers[j].DisplayName {
				return viewers[i].DisplayName < viewers[j].DisplayName
			}
			return viewers[i].UserID < viewers[j].UserID
		})
	}
	return out
}
