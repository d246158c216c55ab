package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
)

const (
	// MinPollInterval is the floor for the batch cadence, so a misconfigured
	// job cannot hammer the platform.
	MinPollInterval = time.Minute

	// MinAutoDelete is the floor for the auto-delete delay when one is set.
	MinAutoDelete = time.Minute

	// MaxBatchSize caps how many posts one cycle may process.
	MaxBatchSize = 100

	// MaxButtons caps the inline keyboard rows attached to a forward.
	MaxButtons = 8
)

var validate = validator.New()

// JobConfig is the operator-supplied configuration for a relay job.
type JobConfig struct {
	UserID          int64                 `validate:"required"`
	Name            string                `validate:"required,min=3,max=64"`
	SourceChannelID int64                 `validate:"required"`
	TargetChannelID int64                 `validate:"required,nefield=SourceChannelID"`
	StartPostID     int                   `validate:"min=0"`
	EndPostID       int                   `validate:"min=0"` // 0 = all future posts
	BatchSize       int                   `validate:"required,min=1,max=100"`
	PollInterval    time.Duration         `validate:"required"`
	AutoDeleteAfter time.Duration         `validate:"min=0"` // 0 = never delete
	FilterMode      models.FilterMode     ``
	CaptionTemplate string                `validate:"max=1024"`
	Buttons         []models.InlineButton `validate:"max=8"`
}

// Validate checks struct tags plus the constraints validator tags cannot
// express (duration floors, enum membership, button urls).
func (c *JobConfig) Validate() error {
	if c.FilterMode == "" {
		c.FilterMode = models.FilterAll
	}

	if err := validate.Struct(c); err != nil {
		return &InvalidConfigError{Reason: err.Error()}
	}
	if !c.FilterMode.Valid() {
		return &InvalidConfigError{Reason: fmt.Sprintf("unknown filter mode %q", c.FilterMode)}
	}
	if c.PollInterval < MinPollInterval {
		return &InvalidConfigError{Reason: fmt.Sprintf("poll interval %s is below the %s floor", c.PollInterval, MinPollInterval)}
	}
	if c.AutoDeleteAfter != 0 && c.AutoDeleteAfter < MinAutoDelete {
		return &InvalidConfigError{Reason: fmt.Sprintf("auto-delete delay %s is below the %s floor", c.AutoDeleteAfter, MinAutoDelete)}
	}
	if c.EndPostID != 0 && c.EndPostID < c.StartPostID {
		return &InvalidConfigError{Reason: fmt.Sprintf("end post %d is before start post %d", c.EndPostID, c.StartPostID)}
	}
	for i, b := range c.Buttons {
		if strings.TrimSpace(b.Label) == "" {
			return &InvalidConfigError{Reason: fmt.Sprintf("button %d has an empty label", i+1)}
		}
		if !validButtonURL(b.URL) {
			return &InvalidConfigError{Reason: fmt.Sprintf("button %d has an invalid url %q", i+1, b.URL)}
		}
	}
	return nil
}

func validButtonURL(u string) bool {
	return strings.HasPrefix(u, "https://") ||
		strings.HasPrefix(u, "http://") ||
		strings.HasPrefix(u, "tg://")
}

// toJob materializes a validated config into a fresh stopped job.
func (c *JobConfig) toJob(id string) *models.Job {
	job := &models.Job{
		ID:              id,
		UserID:          c.UserID,
		Name:            c.Name,
		SourceChannelID: c.SourceChannelID,
		TargetChannelID: c.TargetChannelID,
		StartPostID:     c.StartPostID,
		EndPostID:       c.EndPostID,
		BatchSize:       c.BatchSize,
		PollInterval:    c.PollInterval,
		AutoDeleteAfter: c.AutoDeleteAfter,
		FilterMode:      c.FilterMode,
		CaptionTemplate: c.CaptionTemplate,
		Buttons:         c.Buttons,
		Status:          models.JobStatusStopped,
	}
	job.Cursor = job.InitialCursor()
	return job
}

// configOf rebuilds a JobConfig from a stored job, for re-validation after
// an edit merge.
func configOf(job *models.Job) *JobConfig {
	return &JobConfig{
		UserID:          job.UserID,
		Name:            job.Name,
		SourceChannelID: job.SourceChannelID,
		TargetChannelID: job.TargetChannelID,
		StartPostID:     job.StartPostID,
		EndPostID:       job.EndPostID,
		BatchSize:       job.BatchSize,
		PollInterval:    job.PollInterval,
		AutoDeleteAfter: job.AutoDeleteAfter,
		FilterMode:      job.FilterMode,
		CaptionTemplate: job.CaptionTemplate,
		Buttons:         job.Buttons,
	}
}

// JobPatch carries the changed fields of an edit; nil fields keep their
// current values.
type JobPatch struct {
	Name            *string
	SourceChannelID *int64
	TargetChannelID *int64
	StartPostID     *int
	EndPostID       *int
	BatchSize       *int
	PollInterval    *time.Duration
	AutoDeleteAfter *time.Duration
	FilterMode      *models.FilterMode
	CaptionTemplate *string
	Buttons         []models.InlineButton
}

func (p *JobPatch) apply(job *models.Job) {
	if p.Name != nil {
		job.Name = *p.Name
	}
	if p.SourceChannelID != nil {
		job.SourceChannelID = *p.SourceChannelID
	}
	if p.TargetChannelID != nil {
		job.TargetChannelID = *p.TargetChannelID
	}
	if p.StartPostID != nil {
		job.StartPostID = *p.StartPostID
	}
	if p.EndPostID != nil {
		job.EndPostID = *p.EndPostID
	}
	if p.BatchSize != nil {
		job.BatchSize = *p.BatchSize
	}
	if p.PollInterval != nil {
		job.PollInterval = *p.PollInterval
	}
	if p.AutoDeleteAfter != nil {
		job.AutoDeleteAfter = *p.AutoDeleteAfter
	}
	if p.FilterMode != nil {
		job.FilterMode = *p.FilterMode
	}
	if p.CaptionTemplate != nil {
		job.CaptionTemplate = *p.CaptionTemplate
	}
	if p.Buttons != nil {
		job.Buttons = p.Buttons
	}
}
