package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BackupJob runs the backup and rotation as a scheduled job.
type BackupJob struct {
	service *BackupService
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates a new backup job.
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		timeout: 30 * time.Minute,
		log:     log.With().Str("job", "nightly_backup").Logger(),
	}
}

// Run executes the backup job.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx); err != nil {
		// Rotation failure leaves extra archives behind, the next run
		// retries. The backup itself succeeded.
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// Name returns the job name for the scheduler.
func (j *BackupJob) Name() string {
	return "nightly_backup"
}
