package jobs

// SendPasswordResetPayload carries what the worker needs to mail a reset
// token. Keep payloads minimal and ID-based where possible.
type SendPasswordResetPayload struct {
	UserID     int64  `json:"userId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	ResetToken string `json:"resetToken"`
	RequestID  string `json:"requestId,omitempty"` // optional: correlation
}

// ExportUserBackupPayload generates a backup document for a user offline.
type ExportUserBackupPayload struct {
	UserID  int64  `json:"userId"`
	ActorID int64  `json:"actorId,omitempty"`
}
