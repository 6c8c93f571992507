package jobs

import "strings"

// ValidatePayload performs minimal validation on decoded payloads.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobSendPasswordReset:
		var p SendPasswordResetPayload
		switch v := payload.(type) {
		case SendPasswordResetPayload:
			p = v
		case *SendPasswordResetPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if p.UserID <= 0 || trim(p.Email) == "" || trim(p.ResetToken) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobExportUserBackup:
		var p ExportUserBackupPayload
		switch v := payload.(type) {
		case ExportUserBackupPayload:
			p = v
		case *ExportUserBackupPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if p.UserID <= 0 {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
