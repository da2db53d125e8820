// Package sync orchestrates a mailbox sync end to end: list candidate
// emails, archive raw bodies, extract items in parallel, ingest them
// serially per user, then enrich with color tags. One bad email never
// fails the job.
package sync

import (
	"context"
	"fmt"
	stdsync "sync"
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
	"closet_server/pkg/cache"
	"closet_server/pkg/logger"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
)

// Service runs sync jobs. Jobs execute on background goroutines; callers
// poll the tracker for progress.
type Service struct {
	cfg        *config.Config
	tokens     *token.Service
	providers  out.MailProviderFactory
	archive    out.EmailArchive
	normalizer *normalize.Normalizer
	classifier *retailer.Classifier
	pipeline   *extraction.Pipeline
	dedup      *dedup.Engine
	tagger     *color.Tagger
	tracker    *job.Tracker
	cache      *cache.RedisCache

	mu      stdsync.Mutex
	cancels map[string]context.CancelFunc
}

// Deps bundles the service's collaborators.
type Deps struct {
	Config     *config.Config
	Tokens     *token.Service
	Providers  out.MailProviderFactory
	Archive    out.EmailArchive
	Normalizer *normalize.Normalizer
	Classifier *retailer.Classifier
	Pipeline   *extraction.Pipeline
	Dedup      *dedup.Engine
	Tagger     *color.Tagger
	Tracker    *job.Tracker
	Cache      *cache.RedisCache
}

func NewService(deps Deps) *Service {
	return &Service{
		cfg:        deps.Config,
		tokens:     deps.Tokens,
		providers:  deps.Providers,
		archive:    deps.Archive,
		normalizer: deps.Normalizer,
		classifier: deps.Classifier,
		pipeline:   deps.Pipeline,
		dedup:      deps.Dedup,
		tagger:     deps.Tagger,
		tracker:    deps.Tracker,
		cache:      deps.Cache,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// StartSync validates the connection, creates a running job and kicks off
// the background run. The returned job is what the caller polls.
func (s *Service) StartSync(ctx context.Context, userID uuid.UUID, opts domain.SyncOptions) (*domain.SyncJob, error) {
	// Fail fast at the API boundary when the mailbox is not connected.
	if _, err := s.tokens.GetValidToken(ctx, userID.String()); err != nil {
		return nil, err
	}

	syncJob, err := s.tracker.Start(ctx, userID, opts.Retailer)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[syncJob.ID.String()] = cancel
	s.mu.Unlock()

	go s.run(runCtx, syncJob, opts)

	return syncJob, nil
}

// Cancel requests cooperative cancellation of a running job. The run
// observes it between emails and finishes the job as failed.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	syncJob, err := s.tracker.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if syncJob.Status.IsTerminal() {
		return apperr.JobAlreadyTerminal(jobID)
	}

	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()
	if !ok {
		// The run already finished its work and is completing.
		return nil
	}
	cancel()
	logger.Info("[SyncService] Cancellation requested for job %s", jobID)
	return nil
}

// extractionResult is one email's outcome from the parallel phase.
type extractionResult struct {
	emailID string
	items   []domain.ExtractedItem
	failed  bool
	errMsg  string
}

func (s *Service) run(ctx context.Context, syncJob *domain.SyncJob, opts domain.SyncOptions) {
	jobID := syncJob.ID.String()
	userID := syncJob.UserID

	defer func() {
		s.mu.Lock()
		delete(s.cancels, jobID)
		s.mu.Unlock()
		if r := recover(); r != nil {
			logger.Error("[SyncService] Job %s panicked: %v", jobID, r)
			s.finish(jobID, domain.SyncStatusFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	provider, err := s.providers.ForUser(ctx, userID.String())
	if err != nil {
		s.finish(jobID, domain.SyncStatusFailed, fmt.Sprintf("mailbox unavailable: %v", err))
		return
	}

	emails, err := s.listWithBackoff(ctx, provider, userID.String(), opts)
	if err != nil {
		s.finish(jobID, domain.SyncStatusFailed, fmt.Sprintf("listing emails: %v", err))
		return
	}

	s.tracker.Update(ctx, jobID, job.Delta{EmailsFound: len(emails)})
	if len(emails) == 0 {
		s.finish(jobID, domain.SyncStatusCompleted, "")
		return
	}

	s.archiveEmails(ctx, userID.String(), emails)

	results := s.extractAll(ctx, jobID, emails, opts)
	if ctx.Err() != nil {
		s.finish(jobID, domain.SyncStatusFailed, "canceled")
		return
	}

	var (
		processed int
		failed    int
		allItems  []domain.ExtractedItem
		errMsgs   string
		succeeded []string
	)
	for _, res := range results {
		if res.failed {
			failed++
			if errMsgs != "" {
				errMsgs += "; "
			}
			errMsgs += res.errMsg
			continue
		}
		processed++
		succeeded = append(succeeded, res.emailID)
		allItems = append(allItems, res.items...)
	}

	ingest, inserted, err := s.dedup.IngestBatch(ctx, userID, allItems)
	if err != nil {
		s.finish(jobID, domain.SyncStatusFailed, fmt.Sprintf("ingesting items: %v", err))
		return
	}

	s.tagger.TagBatch(ctx, inserted)

	if opts.MarkAsRead {
		s.markRead(ctx, provider, succeeded)
	}

	s.tracker.Update(ctx, jobID, job.Delta{
		EmailsProcessed: processed,
		OrdersCreated:   countOrders(inserted),
		FailedEmails:    failed,
		ErrorMessage:    errMsgs,
	})

	s.tokens.TouchLastSync(ctx, userID.String())

	logger.Info("[SyncService] Job %s done: %d emails, %d processed, %d failed, %d added, %d duplicates",
		jobID, len(emails), processed, failed, ingest.AddedItems, ingest.DuplicatesSkipped)
	s.finish(jobID, domain.SyncStatusCompleted, "")
}

// emailWorker implements pool.Worker for per-email extraction.
type emailWorker struct {
	svc     *Service
	opts    domain.SyncOptions
	mu      *stdsync.Mutex
	results *[]extractionResult
}

// Do implements pool.Worker.
func (w *emailWorker) Do(ctx context.Context, email *domain.RawEmail) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	res := w.svc.extractOne(ctx, email, w.opts)
	w.mu.Lock()
	*w.results = append(*w.results, res)
	w.mu.Unlock()
	return nil
}

// extractAll runs normalization, classification and extraction for every
// email on a bounded worker pool. Failures stay local to their email.
func (s *Service) extractAll(ctx context.Context, jobID string, emails []*domain.RawEmail, opts domain.SyncOptions) []extractionResult {
	var (
		mu      stdsync.Mutex
		results []extractionResult
	)

	workers := s.cfg.ExtractionWorkers
	if workers <= 0 {
		workers = 4
	}

	worker := &emailWorker{svc: s, opts: opts, mu: &mu, results: &results}
	p := pool.New[*domain.RawEmail](workers, worker).
		WithWorkerChanSize(len(emails)).
		WithContinueOnError()

	if err := p.Go(ctx); err != nil {
		logger.Error("[SyncService] Worker pool failed to start for job %s: %v", jobID, err)
		return nil
	}
	for _, email := range emails {
		if ctx.Err() != nil {
			break
		}
		p.Submit(email)
	}
	if err := p.Close(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("[SyncService] Worker pool closed with error for job %s: %v", jobID, err)
	}

	return results
}

// extractOne processes a single email through the full pipeline.
func (s *Service) extractOne(ctx context.Context, email *domain.RawEmail, opts domain.SyncOptions) (res extractionResult) {
	res.emailID = email.ID
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[SyncService] Extraction panicked for email %s: %v", email.ID, r)
			res.failed = true
			res.errMsg = fmt.Sprintf("email %s: internal error", email.ID)
			res.items = nil
		}
	}()

	content := s.normalizer.Normalize(email)
	if content.IsEmpty() {
		res.failed = true
		res.errMsg = fmt.Sprintf("email %s: empty body", email.ID)
		return res
	}

	retailerID := opts.Retailer
	if retailerID == "" {
		match := s.classifier.Classify(email.From, normalize.NormalizeSubject(email.Subject))
		retailerID = match.Retailer
	}

	items, trace := s.pipeline.Extract(ctx, email.ID, retailerID, content)
	if len(items) == 0 {
		res.failed = true
		res.errMsg = fmt.Sprintf("email %s: no items extracted", email.ID)
		return res
	}

	logger.Debug("[SyncService] Email %s yielded %d items via %s tier", email.ID, len(items), trace.WinningTier)
	res.items = items
	return res
}

// listWithBackoff lists candidate emails, backing off exponentially on
// provider rate limits. Base delay doubles per attempt up to the cap.
func (s *Service) listWithBackoff(ctx context.Context, provider out.MailProvider, userID string, opts domain.SyncOptions) ([]*domain.RawEmail, error) {
	query := s.buildQuery(opts)

	base := time.Duration(s.cfg.BackoffBaseSec) * time.Second
	if base <= 0 {
		base = time.Second
	}
	maxDelay := time.Duration(s.cfg.BackoffCapSec) * time.Second
	if maxDelay <= 0 {
		maxDelay = 5 * time.Minute
	}
	maxTries := s.cfg.BackoffMaxTry
	if maxTries <= 0 {
		maxTries = 5
	}

	delay := base
	for attempt := 1; ; attempt++ {
		result, err := provider.ListMessages(ctx, query)
		if err == nil {
			return result.Messages, nil
		}
		if !apperr.IsCode(err, apperr.CodeRateLimited) || attempt >= maxTries {
			return nil, err
		}

		if s.cache != nil {
			// Consecutive hits per user feed the ops dashboard.
			if _, cacheErr := s.cache.Incr(ctx, "sync:ratelimit:"+userID, time.Hour); cacheErr != nil {
				logger.Debug("[SyncService] Rate limit counter failed: %v", cacheErr)
			}
		}

		logger.Warn("[SyncService] Rate limited listing emails (attempt %d/%d), backing off %s", attempt, maxTries, delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (s *Service) buildQuery(opts domain.SyncOptions) *out.MailQuery {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.SyncMaxResults
	}
	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = s.cfg.SyncDaysBack
	}

	return &out.MailQuery{
		Query:      s.classifier.BuildQuery(opts.Retailer),
		MaxResults: maxResults,
		OnlyUnread: opts.OnlyUnread || s.cfg.SyncOnlyUnread,
		After:      time.Now().AddDate(0, 0, -daysBack),
	}
}

// archiveEmails stores raw bodies best-effort; the archive never gates
// the sync.
func (s *Service) archiveEmails(ctx context.Context, userID string, emails []*domain.RawEmail) {
	if s.archive == nil {
		return
	}
	for _, email := range emails {
		err := s.archive.Save(ctx, &out.ArchivedEmail{
			EmailID:    email.ID,
			UserID:     userID,
			From:       email.From,
			Subject:    email.Subject,
			ReceivedAt: email.ReceivedAt,
			HTML:       email.BodyHTML,
			Text:       email.BodyText,
		})
		if err != nil {
			logger.Warn("[SyncService] Failed to archive email %s: %v", email.ID, err)
		}
	}
}

func (s *Service) markRead(ctx context.Context, provider out.MailProvider, emailIDs []string) {
	for _, id := range emailIDs {
		if ctx.Err() != nil {
			return
		}
		if err := provider.MarkRead(ctx, id); err != nil {
			logger.Warn("[SyncService] Failed to mark email %s read: %v", id, err)
		}
	}
}

// finish moves the job terminal with a fresh context so cancellation does
// not block recording the outcome.
func (s *Service) finish(jobID string, status domain.SyncStatus, errorMessage string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.tracker.Complete(ctx, jobID, status, errorMessage); err != nil {
		logger.Warn("[SyncService] Failed to finish job %s: %v", jobID, err)
	}
}

// countOrders counts distinct order ids among inserted records. Records
// without an order id count individually.
func countOrders(records []*domain.WardrobeRecord) int {
	orders := make(map[string]bool)
	loose := 0
	for _, rec := range records {
		if rec.OrderID == "" {
			loose++
			continue
		}
		orders[rec.Retailer+"/"+rec.OrderID] = true
	}
	return len(orders) + loose
}
