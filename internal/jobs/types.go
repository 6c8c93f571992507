package jobs

type JobType string

const (
	JobSendPasswordReset JobType = "send_password_reset"

	// Future use cases

	JobExportUserBackup JobType = "export_user_backup"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobSendPasswordReset, JobExportUserBackup:
		return true
	default:
		return false
	}
}
