package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// --- Mock implementations ---

type markValidCall struct {
	Valid     bool
	LastError string
}

type markFailureCall struct {
	LastError    string
	InvalidAfter int
}

type mockCredentialStore struct {
	mu       sync.Mutex
	byID     map[string]model.Credential
	due      []model.Credential
	dueErr   error
	used     []string
	valids   map[string][]markValidCall
	failures map[string][]markFailureCall
}

func newMockCredentialStore(creds ...model.Credential) *mockCredentialStore {
	s := &mockCredentialStore{
		byID:     make(map[string]model.Credential),
		valids:   make(map[string][]markValidCall),
		failures: make(map[string][]markFailureCall),
	}
	for _, c := range creds {
		s.byID[c.ID] = c
	}
	return s
}

func (m *mockCredentialStore) Create(_ context.Context, cred model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[cred.ID] = cred
	return nil
}

func (m *mockCredentialStore) Update(_ context.Context, cred model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[cred.ID] = cred
	return nil
}

func (m *mockCredentialStore) GetByID(_ context.Context, id string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (m *mockCredentialStore) List(_ context.Context) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Credential, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCredentialStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *mockCredentialStore) ListAutoSyncDue(_ context.Context, _ time.Time) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.due, m.dueErr
}

func (m *mockCredentialStore) MarkUsed(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used = append(m.used, id)
	return nil
}

func (m *mockCredentialStore) MarkValid(_ context.Context, id string, valid bool, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valids[id] = append(m.valids[id], markValidCall{Valid: valid, LastError: lastError})
	return nil
}

func (m *mockCredentialStore) MarkFailure(_ context.Context, id string, lastError string, invalidAfter int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = append(m.failures[id], markFailureCall{LastError: lastError, InvalidAfter: invalidAfter})
	return nil
}

func (m *mockCredentialStore) usedCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, u := range m.used {
		if u == id {
			n++
		}
	}
	return n
}

type mockJobLogStore struct {
	mu     sync.Mutex
	jobs   map[string]*model.SyncJobLog
	order  []string
	latest map[model.Platform]*model.SyncJobLog
}

func newMockJobLogStore() *mockJobLogStore {
	return &mockJobLogStore{
		jobs:   make(map[string]*model.SyncJobLog),
		latest: make(map[model.Platform]*model.SyncJobLog),
	}
}

func (m *mockJobLogStore) Create(_ context.Context, job model.SyncJobLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := job
	m.jobs[job.ID] = &j
	m.order = append(m.order, job.ID)
	return nil
}

func (m *mockJobLogStore) UpdateStatus(_ context.Context, jobID string, patch model.JobPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.ItemsTotal != nil {
		job.ItemsTotal = *patch.ItemsTotal
	}
	if patch.ItemsSuccess != nil {
		job.ItemsSuccess = *patch.ItemsSuccess
	}
	if patch.ItemsFailed != nil {
		job.ItemsFailed = *patch.ItemsFailed
	}
	if patch.ItemsNew != nil {
		job.ItemsNew = *patch.ItemsNew
	}
	if patch.ItemsExisting != nil {
		job.ItemsExisting = *patch.ItemsExisting
	}
	if patch.Message != nil {
		job.Message = *patch.Message
	}
	if patch.ErrorStack != nil {
		job.ErrorStack = *patch.ErrorStack
	}
	if patch.ErrorDetails != nil {
		job.ErrorDetails = patch.ErrorDetails
	}
	if patch.CompletedAt != nil {
		job.CompletedAt = patch.CompletedAt
	}
	if patch.DurationMS != nil {
		job.DurationMS = *patch.DurationMS
	}
	if patch.Metrics != nil {
		job.Metrics = patch.Metrics
	}
	return nil
}

func (m *mockJobLogStore) GetByID(_ context.Context, jobID string) (*model.SyncJobLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, nil
	}
	j := *job
	return &j, nil
}

func (m *mockJobLogStore) LatestByPlatform(_ context.Context, platform model.Platform) (*model.SyncJobLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest[platform], nil
}

func (m *mockJobLogStore) ListRecent(_ context.Context, _ string, _ int) ([]model.SyncJobLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SyncJobLog, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, *m.jobs[m.order[i]])
	}
	return out, nil
}

func (m *mockJobLogStore) created() []model.SyncJobLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SyncJobLog, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.jobs[id])
	}
	return out
}

type mockLegacyStore struct {
	rows map[model.Platform]*model.LegacySyncJob
}

func (m *mockLegacyStore) LatestByPlatform(_ context.Context, platform model.Platform) (*model.LegacySyncJob, error) {
	return m.rows[platform], nil
}

type mockRecordStore struct {
	mu        sync.Mutex
	upserts   []model.CanonicalRecord
	outcomes  map[string]model.UpsertOutcome
	upsertErr map[string]error
	latest    map[model.Platform]time.Time
	panicOn   string
}

func newMockRecordStore() *mockRecordStore {
	return &mockRecordStore{
		outcomes:  make(map[string]model.UpsertOutcome),
		upsertErr: make(map[string]error),
		latest:    make(map[model.Platform]time.Time),
	}
}

func (m *mockRecordStore) UpsertCanonical(_ context.Context, rec model.CanonicalRecord) (model.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn != "" && rec.ExternalID == m.panicOn {
		panic("record store blew up")
	}
	m.upserts = append(m.upserts, rec)
	if err, ok := m.upsertErr[rec.ExternalID]; ok {
		return "", err
	}
	if outcome, ok := m.outcomes[rec.ExternalID]; ok {
		return outcome, nil
	}
	return model.OutcomeNew, nil
}

func (m *mockRecordStore) LatestOccurredAt(_ context.Context, platform model.Platform) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest[platform], nil
}

type mockLockStore struct {
	mu      sync.Mutex
	holders map[string]string
}

func newMockLockStore() *mockLockStore {
	return &mockLockStore{holders: make(map[string]string)}
}

func (m *mockLockStore) Acquire(_ context.Context, credentialID, jobID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.holders[credentialID]; held {
		return driven.ErrLockHeld
	}
	m.holders[credentialID] = jobID
	return nil
}

func (m *mockLockStore) Holder(_ context.Context, credentialID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holders[credentialID], nil
}

func (m *mockLockStore) Release(_ context.Context, credentialID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holders[credentialID] == jobID {
		delete(m.holders, credentialID)
	}
	return nil
}

type mockPlatformClient struct {
	platform model.Platform
	probe    func(ctx context.Context, cred model.Credential) driven.ProbeResult
	fetch    func(ctx context.Context, cred model.Credential, since time.Time) (*driven.FetchResult, error)

	mu         sync.Mutex
	probeCalls int
	lastSince  time.Time
}

func (m *mockPlatformClient) Platform() model.Platform { return m.platform }

func (m *mockPlatformClient) Probe(ctx context.Context, cred model.Credential) driven.ProbeResult {
	m.mu.Lock()
	m.probeCalls++
	m.mu.Unlock()
	if m.probe == nil {
		return driven.ProbeResult{Status: driven.ProbeOk}
	}
	return m.probe(ctx, cred)
}

func (m *mockPlatformClient) FetchIncremental(ctx context.Context, cred model.Credential, since time.Time) (*driven.FetchResult, error) {
	m.mu.Lock()
	m.lastSince = since
	m.mu.Unlock()
	if m.fetch == nil {
		return &driven.FetchResult{}, nil
	}
	return m.fetch(ctx, cred, since)
}
