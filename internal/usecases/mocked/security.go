package mocked

import (
	"time"

	"github.com/google/uuid"

	"github.com/sand/whitetriangle/backend/internal/entities"
)

// LoginHistory builds the audit trail of a freshly materialized user:
// the login that just happened first, then two older entries.
func LoginHistory(client entities.ClientInfo, now time.Time) []entities.LoginEvent {
	return []entities.LoginEvent{
		{
			ID:        uuid.NewString(),
			Timestamp: now,
			IP:        client.IP,
			Device:    client.Device,
			Location:  client.Location,
			Status:    entities.LoginStatusSuccess,
		},
		{
			ID:        uuid.NewString(),
			Timestamp: now.Add(-26 * time.Hour),
			IP:        "185.220.101.4",
			Device:    "Chrome on Windows",
			Location:  "Frankfurt, DE",
			Status:    entities.LoginStatusFailed,
		},
		{
			ID:        uuid.NewString(),
			Timestamp: now.Add(-72 * time.Hour),
			IP:        "92.118.37.12",
			Device:    "Safari on iPhone (Mobile)",
			Location:  "Lisbon, PT",
			Status:    entities.LoginStatusSuccess,
		},
	}
}

// ActiveSessions returns the current session first and one other device.
func ActiveSessions(currentID string, client entities.ClientInfo, now time.Time) []entities.ActiveSession {
	return []entities.ActiveSession{
		{
			ID:         currentID,
			Device:     client.Device,
			IP:         client.IP,
			LastActive: now,
			IsCurrent:  true,
		},
		{
			ID:         uuid.NewString(),
			Device:     "Safari on iPhone (Mobile)",
			IP:         "92.118.37.12",
			LastActive: now.Add(-3 * time.Hour),
			IsCurrent:  false,
		},
	}
}
