package scheduler

import (
	"strconv"
	"strings"

	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
)

// BuildCaption renders the job's caption template for one source post.
// An empty template (or a template rendering to nothing) returns "",
// which tells the gateway to keep the platform's original caption.
//
// Placeholders: {caption} = original caption or text, {message_id} = source
// post id, {job} = job name.
func BuildCaption(job *models.Job, msg *models.SourceMessage) string {
	if job.CaptionTemplate == "" {
		return ""
	}

	r := strings.NewReplacer(
		"{caption}", msg.OriginalCaption(),
		"{message_id}", strconv.Itoa(msg.MessageID),
		"{job}", job.Name,
	)
	return strings.TrimSpace(r.Replace(job.CaptionTemplate))
}
