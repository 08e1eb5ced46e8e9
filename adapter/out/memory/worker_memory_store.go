// Package memory provides in-process implementations of the store ports. They
// back single-process runs without a database and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
)

// Store holds every record kind behind one mutex.
type Store struct {
	mu         sync.RWMutex
	calls      map[string]domain.CallRecord
	activities map[string]domain.EmailActivityRecord
	features   map[string]domain.CopyVariantFeatures
	campaigns  map[string]domain.CampaignAggregate
	progress   map[progressKey]domain.SyncProgress

	// FailUpserts makes the next n upsert calls fail with UpsertErr.
	FailUpserts int
	UpsertErr   error
}

type progressKey struct {
	connectionID string
	job          domain.JobKind
}

func NewStore() *Store {
	return &Store{
		calls:      make(map[string]domain.CallRecord),
		activities: make(map[string]domain.EmailActivityRecord),
		features:   make(map[string]domain.CopyVariantFeatures),
		campaigns:  make(map[string]domain.CampaignAggregate),
		progress:   make(map[progressKey]domain.SyncProgress),
	}
}

// Calls, Activities, CopyFeatures, Campaigns and Progress expose the port views.
func (s *Store) Calls() out.CallRepository { return callRepo{s} }
func (s *Store) Activities() out.ActivityRepository { return activityRepo{s} }
func (s *Store) CopyFeatures() out.CopyFeatureRepository { return featureRepo{s} }
func (s *Store) Campaigns() out.CampaignRepository { return campaignRepo{s} }
func (s *Store) Progress() out.ProgressRepository { return progressRepo{s} }

// must be called with mu held
func (s *Store) injectedFailure() error {
	if s.FailUpserts > 0 {
		s.FailUpserts--
		return s.UpsertErr
	}
	return nil
}

// =============================================================================
// Calls
// =============================================================================

type callRepo struct{ s *Store }

func (r callRepo) UpsertBatch(_ context.Context, records []*domain.CallRecord) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injectedFailure(); err != nil {
		return 0, err
	}
	for _, rec := range records {
		c := *rec
		c.Scores = append([]domain.CallScore(nil), rec.Scores...)
		r.s.calls[rec.ExternalID] = c
	}
	return len(records), nil
}

func (r callRepo) GetByExternalID(_ context.Context, externalID string) (*domain.CallRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.calls[externalID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r callRepo) CountByConnection(_ context.Context, connectionID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, c := range r.s.calls {
		if c.ConnectionID == connectionID {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Activities
// =============================================================================

type activityRepo struct{ s *Store }

func (r activityRepo) UpsertBatch(_ context.Context, records []*domain.EmailActivityRecord) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injectedFailure(); err != nil {
		return 0, err
	}
	for _, rec := range records {
		a := *rec
		if existing, ok := r.s.activities[rec.ExternalID]; ok {
			a.Classification = existing.Classification
		} else {
			a.Classification = nil
		}
		r.s.activities[rec.ExternalID] = a
	}
	return len(records), nil
}

func (r activityRepo) GetByExternalID(_ context.Context, externalID string) (*domain.EmailActivityRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.activities[externalID]
	if !ok {
		return nil, nil
	}
	if a.Classification != nil {
		cls := *a.Classification
		a.Classification = &cls
	}
	return &a, nil
}

func (r activityRepo) ListUnclassified(_ context.Context, connectionID string, offset, limit int) ([]*domain.EmailActivityRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, a := range r.s.activities {
		if a.ConnectionID == connectionID && a.Replied && !a.IsClassified() && a.HasUsableText() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	records := make([]*domain.EmailActivityRecord, 0, len(ids))
	for _, id := range ids {
		a := r.s.activities[id]
		records = append(records, &a)
	}
	return records, nil
}

func (r activityRepo) SaveClassifications(_ context.Context, updates []out.ClassificationUpdate) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injectedFailure(); err != nil {
		return 0, err
	}
	n := 0
	for _, u := range updates {
		a, ok := r.s.activities[u.ExternalID]
		if !ok || a.Classification != nil {
			continue
		}
		cls := u.Classification
		a.Classification = &cls
		r.s.activities[u.ExternalID] = a
		n++
	}
	return n, nil
}

func (r activityRepo) CountByCampaign(_ context.Context, campaignID string) (int, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	total, positive := 0, 0
	for _, a := range r.s.activities {
		if a.CampaignID != campaignID || a.Classification == nil {
			continue
		}
		total++
		if a.Classification.IsPositive {
			positive++
		}
	}
	return total, positive, nil
}

func (r activityRepo) ListStaleCampaigns(_ context.Context, connectionID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := map[string]bool{}
	var ids []string
	for _, a := range r.s.activities {
		if a.ConnectionID != connectionID || a.CampaignID == "" || a.Classification == nil || seen[a.CampaignID] {
			continue
		}
		agg, ok := r.s.campaigns[a.CampaignID]
		if ok && !agg.RecomputedAt.Before(a.Classification.ClassifiedAt) {
			continue
		}
		seen[a.CampaignID] = true
		ids = append(ids, a.CampaignID)
	}
	sort.Strings(ids)
	return ids, nil
}

// =============================================================================
// Copy features and campaigns
// =============================================================================

type featureRepo struct{ s *Store }

func (r featureRepo) UpsertBatch(_ context.Context, features []*domain.CopyVariantFeatures) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injectedFailure(); err != nil {
		return 0, err
	}
	for _, f := range features {
		r.s.features[f.VariantID] = *f
	}
	return len(features), nil
}

func (r featureRepo) GetByVariantID(_ context.Context, variantID string) (*domain.CopyVariantFeatures, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.features[variantID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

type campaignRepo struct{ s *Store }

func (r campaignRepo) UpsertAggregates(_ context.Context, aggregates []*domain.CampaignAggregate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range aggregates {
		r.s.campaigns[a.CampaignID] = *a
	}
	return nil
}

func (r campaignRepo) GetAggregate(_ context.Context, campaignID string) (*domain.CampaignAggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.campaigns[campaignID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// =============================================================================
// Progress
// =============================================================================

type progressRepo struct{ s *Store }

func (r progressRepo) Get(_ context.Context, connectionID string, job domain.JobKind) (*domain.SyncProgress, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.progress[progressKey{connectionID, job}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r progressRepo) Save(_ context.Context, p *domain.SyncProgress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.progress[progressKey{p.ConnectionID, p.Job}] = *p
	return nil
}

func (r progressRepo) ListByStatus(_ context.Context, status domain.SyncStatus) ([]*domain.SyncProgress, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var list []*domain.SyncProgress
	for _, p := range r.s.progress {
		if p.Status == status {
			p := p
			list = append(list, &p)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ConnectionID != list[j].ConnectionID {
			return list[i].ConnectionID < list[j].ConnectionID
		}
		return list[i].Job < list[j].Job
	})
	return list, nil
}
