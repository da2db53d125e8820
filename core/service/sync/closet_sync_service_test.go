package sync

import (
	"context"
	"fmt"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"closet_server/config"
	"closet_server/core/domain"
	"closet_server/core/port/out"
	"closet_server/core/service/color"
	"closet_server/core/service/dedup"
	"closet_server/core/service/extraction"
	"closet_server/core/service/job"
	"closet_server/core/service/normalize"
	"closet_server/core/service/retailer"
	"closet_server/core/service/token"
	"closet_server/pkg/apperr"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// --- fakes ---

type fakeCredRepo struct {
	entity *out.CredentialEntity
}

func (f *fakeCredRepo) GetByUser(ctx context.Context, userID, provider string) (*out.CredentialEntity, error) {
	if f.entity == nil {
		return nil, out.ErrNotFound
	}
	copied := *f.entity
	return &copied, nil
}
func (f *fakeCredRepo) Create(ctx context.Context, e *out.CredentialEntity) error { return nil }
func (f *fakeCredRepo) Update(ctx context.Context, e *out.CredentialEntity) error { return nil }
func (f *fakeCredRepo) Disconnect(ctx context.Context, userID, provider string) error {
	if f.entity != nil {
		f.entity.IsConnected = false
	}
	return nil
}
func (f *fakeCredRepo) TouchLastSync(ctx context.Context, userID, provider string, at time.Time) error {
	if f.entity != nil {
		f.entity.LastSyncAt = &at
	}
	return nil
}

type fakeProvider struct {
	mu         stdsync.Mutex
	emails     []*domain.RawEmail
	rateLimits int
	listCalls  int
	markedRead []string
}

func (f *fakeProvider) Email() string { return "user@example.com" }

func (f *fakeProvider) ListMessages(ctx context.Context, query *out.MailQuery) (*out.MailListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.rateLimits > 0 {
		f.rateLimits--
		return nil, apperr.RateLimited("gmail", fmt.Errorf("googleapi: Error 429"))
	}
	return &out.MailListResult{Messages: f.emails}, nil
}

func (f *fakeProvider) GetMessage(ctx context.Context, id string) (*domain.RawEmail, error) {
	for _, e := range f.emails {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, out.ErrNotFound
}

func (f *fakeProvider) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, id)
	return nil
}

type fakeFactory struct{ provider *fakeProvider }

func (f *fakeFactory) ForUser(ctx context.Context, userID string) (out.MailProvider, error) {
	return f.provider, nil
}

type fakeArchive struct {
	mu    stdsync.Mutex
	saved map[string]*out.ArchivedEmail
}

func (f *fakeArchive) Save(ctx context.Context, email *out.ArchivedEmail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string]*out.ArchivedEmail)
	}
	f.saved[email.EmailID] = email
	return nil
}

func (f *fakeArchive) Get(ctx context.Context, emailID string) (*out.ArchivedEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.saved[emailID]; ok {
		return e, nil
	}
	return nil, out.ErrNotFound
}

type fakeWardrobeRepo struct {
	mu      stdsync.Mutex
	records []*domain.WardrobeRecord
	nextID  int64
}

func (f *fakeWardrobeRepo) ListByUser(ctx context.Context, userID string) ([]*domain.WardrobeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var recs []*domain.WardrobeRecord
	for _, r := range f.records {
		if r.UserID.String() == userID {
			recs = append(recs, r)
		}
	}
	return recs, nil
}

func (f *fakeWardrobeRepo) FindByFingerprint(ctx context.Context, userID, fp string) (*domain.WardrobeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UserID.String() == userID && r.Fingerprint == fp {
			return r, nil
		}
	}
	return nil, out.ErrNotFound
}

func (f *fakeWardrobeRepo) Insert(ctx context.Context, record *domain.WardrobeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	record.ID = f.nextID
	f.records = append(f.records, record)
	return nil
}

func (f *fakeWardrobeRepo) UpdateColorTag(ctx context.Context, id int64, colorTag, dominantColor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			r.ColorTag = colorTag
		}
	}
	return nil
}

func (f *fakeWardrobeRepo) ListUntagged(ctx context.Context, userID string, limit int) ([]*domain.WardrobeRecord, error) {
	return nil, nil
}

func (f *fakeWardrobeRepo) ListUsersWithUntagged(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

type fakeJobRepo struct {
	mu   stdsync.Mutex
	jobs map[string]*domain.SyncJob
}

func newFakeJobRepo() *fakeJobRepo { return &fakeJobRepo{jobs: make(map[string]*domain.SyncJob)} }

func (f *fakeJobRepo) Create(ctx context.Context, j *domain.SyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *j
	f.jobs[j.ID.String()] = &copied
	return nil
}

func (f *fakeJobRepo) GetByID(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, out.ErrNotFound
	}
	copied := *j
	return &copied, nil
}

func (f *fakeJobRepo) Update(ctx context.Context, j *domain.SyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *j
	f.jobs[j.ID.String()] = &copied
	return nil
}

func (f *fakeJobRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.SyncJob, error) {
	return nil, nil
}

type emptyExtractor struct{}

func (e *emptyExtractor) ExtractItems(ctx context.Context, content, retailer string) ([]domain.ExtractedItem, error) {
	return nil, nil
}

// --- helpers ---

func myntraEmail(id, orderID, product string) *domain.RawEmail {
	return &domain.RawEmail{
		ID:      id,
		From:    "Myntra <noreply@myntra.com>",
		Subject: "Your order is confirmed",
		BodyHTML: fmt.Sprintf(`
<div id="OrderId">%s</div>
<div class="productListContainer">
  <span id="aItemProductBrandName">Roadster</span>
  <span id="aItemProductName">%s</span>
  <span id="aItemSize">Size: M</span>
  <span>₹999</span>
</div>`, orderID, product),
	}
}

type harness struct {
	svc      *Service
	tracker  *job.Tracker
	provider *fakeProvider
	wardrobe *fakeWardrobeRepo
	archive  *fakeArchive
	userID   uuid.UUID
}

func newHarness(t *testing.T, provider *fakeProvider) *harness {
	t.Helper()
	userID := uuid.New()

	credRepo := &fakeCredRepo{entity: &out.CredentialEntity{
		ID: 1, UserID: userID.String(), Provider: "gmail",
		Email: "user@example.com", AccessToken: "tok",
		ExpiresAt: time.Now().Add(time.Hour), IsConnected: true,
	}}
	tokens := token.NewService(credRepo, &oauth2.Config{ClientID: "test"}, 5*time.Minute)

	wardrobe := &fakeWardrobeRepo{}
	archive := &fakeArchive{}
	tracker := job.NewTracker(newFakeJobRepo(), nil)

	svc := NewService(Deps{
		Config:     &config.Config{ExtractionWorkers: 2, SyncMaxResults: 10, SyncDaysBack: 30, BackoffMaxTry: 3},
		Tokens:     tokens,
		Providers:  &fakeFactory{provider: provider},
		Archive:    archive,
		Normalizer: normalize.New(0.5),
		Classifier: retailer.NewClassifier(),
		Pipeline:   extraction.NewPipeline(extraction.NewAIParser(&emptyExtractor{}, 0), &extraction.MyntraParser{}),
		Dedup:      dedup.NewEngine(wardrobe),
		Tagger:     color.NewTagger(wardrobe),
		Tracker:    tracker,
	})

	return &harness{svc: svc, tracker: tracker, provider: provider, wardrobe: wardrobe, archive: archive, userID: userID}
}

func waitTerminal(t *testing.T, tracker *job.Tracker, jobID string) *domain.SyncJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := tracker.Get(context.Background(), jobID)
		if err == nil && j.Status.IsTerminal() {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status in time")
	return nil
}

// --- tests ---

func TestSyncBatchWithOneBadEmail(t *testing.T) {
	provider := &fakeProvider{emails: []*domain.RawEmail{
		myntraEmail("msg-1", "MON1001", "Cotton Shirt"),
		myntraEmail("msg-2", "MON1002", "Slim Jeans"),
		{ID: "msg-3", From: "Myntra <noreply@myntra.com>", Subject: "Your order", BodyHTML: "<p>We could not render this email.</p>"},
		myntraEmail("msg-4", "MON1004", "Linen Kurta"),
		myntraEmail("msg-5", "MON1005", "Denim Jacket"),
	}}
	h := newHarness(t, provider)

	started, err := h.svc.StartSync(context.Background(), h.userID, domain.SyncOptions{Retailer: domain.RetailerMyntra})
	if err != nil {
		t.Fatalf("StartSync failed: %v", err)
	}

	done := waitTerminal(t, h.tracker, started.ID.String())

	if done.Status != domain.SyncStatusCompleted {
		t.Errorf("status = %q, want completed (one bad email never fails the job)", done.Status)
	}
	if done.EmailsFound != 5 {
		t.Errorf("emails found = %d, want 5", done.EmailsFound)
	}
	if done.EmailsProcessed != 4 {
		t.Errorf("emails processed = %d, want 4", done.EmailsProcessed)
	}
	if done.FailedEmails != 1 {
		t.Errorf("failed emails = %d, want 1", done.FailedEmails)
	}
	if !strings.Contains(done.ErrorMessage, "msg-3") {
		t.Errorf("error message %q should reference the failing email id", done.ErrorMessage)
	}
	if done.OrdersCreated != 4 {
		t.Errorf("orders created = %d, want 4", done.OrdersCreated)
	}

	if len(h.wardrobe.records) != 4 {
		t.Errorf("wardrobe records = %d, want 4", len(h.wardrobe.records))
	}
	if len(h.archive.saved) != 5 {
		t.Errorf("archived emails = %d, want all 5", len(h.archive.saved))
	}
}

func TestSyncNotConnected(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	other := uuid.New() // no credential seeded for this user

	credRepo := &fakeCredRepo{}
	h.svc.tokens = token.NewService(credRepo, &oauth2.Config{}, 5*time.Minute)

	_, err := h.svc.StartSync(context.Background(), other, domain.SyncOptions{})
	if !apperr.IsCode(err, apperr.CodeNotConnected) {
		t.Fatalf("error = %v, want NOT_CONNECTED", err)
	}
}

func TestSyncEmptyMailbox(t *testing.T) {
	h := newHarness(t, &fakeProvider{})

	started, err := h.svc.StartSync(context.Background(), h.userID, domain.SyncOptions{})
	if err != nil {
		t.Fatalf("StartSync failed: %v", err)
	}

	done := waitTerminal(t, h.tracker, started.ID.String())
	if done.Status != domain.SyncStatusCompleted {
		t.Errorf("status = %q, want completed", done.Status)
	}
	if done.EmailsFound != 0 || done.EmailsProcessed != 0 {
		t.Errorf("counters = %+v, want zeros", done)
	}
}

func TestSyncRetriesRateLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("backoff sleep")
	}
	provider := &fakeProvider{
		rateLimits: 1,
		emails:     []*domain.RawEmail{myntraEmail("msg-1", "MON1", "Cotton Shirt")},
	}
	h := newHarness(t, provider)

	started, err := h.svc.StartSync(context.Background(), h.userID, domain.SyncOptions{Retailer: domain.RetailerMyntra})
	if err != nil {
		t.Fatalf("StartSync failed: %v", err)
	}

	done := waitTerminal(t, h.tracker, started.ID.String())
	if done.Status != domain.SyncStatusCompleted {
		t.Errorf("status = %q, want completed after retry", done.Status)
	}
	if provider.listCalls != 2 {
		t.Errorf("list calls = %d, want 2 (one 429 then success)", provider.listCalls)
	}
}

func TestSyncMarkAsRead(t *testing.T) {
	provider := &fakeProvider{emails: []*domain.RawEmail{
		myntraEmail("msg-1", "MON1", "Cotton Shirt"),
		{ID: "msg-2", From: "noreply@myntra.com", BodyHTML: "<p>nothing</p>"},
	}}
	h := newHarness(t, provider)

	started, err := h.svc.StartSync(context.Background(), h.userID, domain.SyncOptions{Retailer: domain.RetailerMyntra, MarkAsRead: true})
	if err != nil {
		t.Fatalf("StartSync failed: %v", err)
	}
	waitTerminal(t, h.tracker, started.ID.String())

	if len(provider.markedRead) != 1 || provider.markedRead[0] != "msg-1" {
		t.Errorf("marked read = %v, want only the successfully processed email", provider.markedRead)
	}
}

func TestCancelTerminalJob(t *testing.T) {
	h := newHarness(t, &fakeProvider{})

	started, err := h.svc.StartSync(context.Background(), h.userID, domain.SyncOptions{})
	if err != nil {
		t.Fatalf("StartSync failed: %v", err)
	}
	waitTerminal(t, h.tracker, started.ID.String())

	err = h.svc.Cancel(context.Background(), started.ID.String())
	if !apperr.IsCode(err, apperr.CodeJobAlreadyTerminal) {
		t.Fatalf("error = %v, want JOB_ALREADY_TERMINAL", err)
	}
}

func TestSyncIdempotentRerun(t *testing.T) {
	provider := &fakeProvider{emails: []*domain.RawEmail{
		myntraEmail("msg-1", "MON1", "Cotton Shirt"),
		myntraEmail("msg-2", "MON2", "Slim Jeans"),
	}}
	h := newHarness(t, provider)

	first, err := h.svc.StartSync(context.Background(), h.userID, domain.SyncOptions{Retailer: domain.RetailerMyntra})
	if err != nil {
		t.Fatalf("first StartSync failed: %v", err)
	}
	waitTerminal(t, h.tracker, first.ID.String())

	if len(h.wardrobe.records) != 2 {
		t.Fatalf("records after first run = %d, want 2", len(h.wardrobe.records))
	}

	second, err := h.svc.StartSync(context.Background(), h.userID, domain.SyncOptions{Retailer: domain.RetailerMyntra})
	if err != nil {
		t.Fatalf("second StartSync failed: %v", err)
	}
	done := waitTerminal(t, h.tracker, second.ID.String())

	if done.Status != domain.SyncStatusCompleted {
		t.Errorf("second run status = %q, want completed", done.Status)
	}
	if len(h.wardrobe.records) != 2 {
		t.Errorf("records after second run = %d, re-ingest must add nothing", len(h.wardrobe.records))
	}
	if done.OrdersCreated != 0 {
		t.Errorf("second run orders created = %d, want 0", done.OrdersCreated)
	}
}
