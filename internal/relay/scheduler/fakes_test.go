package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
	"github.com/tmt-films/AutoPostingv2/internal/relay/repository"
)

// memJobs is an in-memory JobRepository with the same semantics as the Mongo
// implementation, including the compare-and-set contract.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*models.Job)}
}

func (m *memJobs) Create(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("duplicate job id %s", job.ID)
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobs) GetByID(_ context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memJobs) List(_ context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memJobs) ListByUser(ctx context.Context, userID int64) ([]*models.Job, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, job := range all {
		if job.UserID == userID {
			out = append(out, job)
		}
	}
	return out, nil
}

func (m *memJobs) ListRunning(_ context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, job := range m.jobs {
		if job.Status == models.JobStatusRunning {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobs) UpdateStatus(_ context.Context, id string, status models.JobStatus, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.Status = status
	job.LastError = lastError
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memJobs) Update(_ context.Context, in *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[in.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cp := *in
	cp.CreatedAt = job.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[in.ID] = &cp
	return nil
}

func (m *memJobs) CompareAndSetCursor(_ context.Context, id string, expected, next int) (bool, error) {
	if next < expected {
		return false, fmt.Errorf("cursor %d would move backward from %d", next, expected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if job.Cursor != expected {
		return false, nil
	}
	job.Cursor = next
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memJobs) IncrementCounters(_ context.Context, id string, processed, errors int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.ProcessedCount += processed
	job.ErrorCount += errors
	return nil
}

func (m *memJobs) TouchLastRun(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.LastRunAt = at
	return nil
}

func (m *memJobs) ResetProgress(_ context.Context, id string, cursor int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.Cursor = cursor
	job.ProcessedCount = 0
	job.ErrorCount = 0
	job.LastError = ""
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memJobs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *memJobs) Stats(_ context.Context) (*repository.JobStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &repository.JobStats{}
	for _, job := range m.jobs {
		stats.TotalJobs++
		if job.Status == models.JobStatusRunning {
			stats.RunningJobs++
		}
		stats.Forwarded += job.ProcessedCount
		stats.ForwardFails += job.ErrorCount
	}
	return stats, nil
}

func (m *memJobs) EnsureIndexes(context.Context) error { return nil }

// seed stores a job as-is, bypassing Create's timestamping.
func (m *memJobs) seed(job *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
}

// cursorOf reads the stored cursor directly.
func (m *memJobs) cursorOf(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id].Cursor
}

// setCursor overwrites the stored cursor, simulating a concurrent writer.
func (m *memJobs) setCursor(id string, cursor int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Cursor = cursor
}

// memDeletions is an in-memory DeletionRepository.
type memDeletions struct {
	mu      sync.Mutex
	records []*models.DeletionRecord
}

func newMemDeletions() *memDeletions {
	return &memDeletions{}
}

func (m *memDeletions) Create(_ context.Context, rec *models.DeletionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.ID = primitive.NewObjectID()
	rec.ID = cp.ID
	m.records = append(m.records, &cp)
	return nil
}

func (m *memDeletions) FindDue(_ context.Context, now time.Time, limit int) ([]*models.DeletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DeletionRecord
	for _, rec := range m.records {
		if !rec.DueAt.After(now) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memDeletions) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.records {
		if rec.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memDeletions) DeleteByJob(_ context.Context, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*models.DeletionRecord
	var removed int64
	for _, rec := range m.records {
		if rec.JobID == jobID {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return removed, nil
}

func (m *memDeletions) CountPending(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

func (m *memDeletions) EnsureIndexes(context.Context) error { return nil }

func (m *memDeletions) all() []*models.DeletionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DeletionRecord, len(m.records))
	for i, rec := range m.records {
		cp := *rec
		out[i] = &cp
	}
	return out
}

type forwardCall struct {
	sourceID int
	target   int64
	caption  string
	buttons  []models.InlineButton
}

type deleteCall struct {
	chatID    int64
	messageID int
}

// fakeGateway scripts platform behavior per call. forwardErrs and deleteErrs
// are consumed one per call; once drained, calls succeed.
type fakeGateway struct {
	mu sync.Mutex

	source      map[int64][]*models.SourceMessage
	forwardErrs []error
	deleteErrs  []error

	forwards  []forwardCall
	deletes   []deleteCall
	approvals []deleteCall

	nextForwardID int
	onForward     func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		source:        make(map[int64][]*models.SourceMessage),
		nextForwardID: 1000,
	}
}

func (g *fakeGateway) addPost(chatID int64, messageID int, text string, hasMedia bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.source[chatID] = append(g.source[chatID], &models.SourceMessage{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		Caption:   text,
		HasMedia:  hasMedia,
		PostedAt:  time.Now().UTC(),
	})
}

func (g *fakeGateway) FetchSince(_ context.Context, channelID int64, cursor, limit int) ([]*models.SourceMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.SourceMessage
	for _, msg := range g.source[channelID] {
		if msg.MessageID > cursor {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *fakeGateway) Forward(_ context.Context, msg *models.SourceMessage, targetChat int64, caption string, buttons []models.InlineButton) (int, error) {
	g.mu.Lock()
	var scripted error
	if len(g.forwardErrs) > 0 {
		scripted = g.forwardErrs[0]
		g.forwardErrs = g.forwardErrs[1:]
	}
	hook := g.onForward
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	if scripted != nil {
		return 0, scripted
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextForwardID++
	g.forwards = append(g.forwards, forwardCall{
		sourceID: msg.MessageID,
		target:   targetChat,
		caption:  caption,
		buttons:  buttons,
	})
	return g.nextForwardID, nil
}

func (g *fakeGateway) Delete(_ context.Context, chatID int64, messageID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.deleteErrs) > 0 {
		err := g.deleteErrs[0]
		g.deleteErrs = g.deleteErrs[1:]
		if err != nil {
			return err
		}
	}
	g.deletes = append(g.deletes, deleteCall{chatID: chatID, messageID: messageID})
	return nil
}

func (g *fakeGateway) ApproveJoinRequest(_ context.Context, chatID, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approvals = append(g.approvals, deleteCall{chatID: chatID, messageID: int(userID)})
	return nil
}

func (g *fakeGateway) forwardedSourceIDs() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int, len(g.forwards))
	for i, call := range g.forwards {
		out[i] = call.sourceID
	}
	return out
}

func (g *fakeGateway) deleteCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.deletes)
}
