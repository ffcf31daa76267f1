// Package audit builds the immutable action records written alongside every
// state-changing operation.
//
// The recorder only constructs entries; persistence happens inside the same
// repository transaction as the mutation the entry describes. No API for
// updating or deleting an entry exists anywhere in the codebase, which makes
// the append-only discipline structural rather than conventional.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trailpoint-systems/trailpoint/internal/models"
)

// Action types recorded in the audit trail.
const (
	ActionEventCreate           = "event.create"
	ActionAlertCreate           = "alert.create"
	ActionAlertStatusChange     = "alert.status_change"
	ActionAlertConfidenceChange = "alert.confidence_change"
)

// SystemUser is the principal attributed to actions with no explicit actor.
const SystemUser = "system"

// Recorder builds signed audit entries. The HMAC signature covers the
// fields that identify the action, providing tamper evidence for the trail.
type Recorder struct {
	secretKey []byte
}

func NewRecorder(secretKey string) *Recorder {
	return &Recorder{secretKey: []byte(secretKey)}
}

// Entry creates a new audit entry for the given actor and action. The ID
// (UUIDv7) and timestamp are assigned here, server-side; callers supply only
// the action's substance.
func (r *Recorder) Entry(userID, actionType string, details map[string]interface{}) (*models.AuditLog, error) {
	if userID == "" {
		userID = SystemUser
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate audit entry id: %w", err)
	}

	entry := &models.AuditLog{
		ID:            id.String(),
		Timestamp:     time.Now().UTC(),
		UserID:        userID,
		ActionType:    actionType,
		ActionDetails: details,
	}
	entry.Signature = r.sign(entry)
	return entry, nil
}

// Verify checks an entry's signature against its content.
func (r *Recorder) Verify(entry *models.AuditLog) bool {
	expected := r.sign(entry)
	return hmac.Equal([]byte(expected), []byte(entry.Signature))
}

func (r *Recorder) sign(entry *models.AuditLog) string {
	payload := entry.ID + entry.Timestamp.Format(time.RFC3339Nano) + entry.UserID + entry.ActionType
	h := hmac.New(sha256.New, r.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
