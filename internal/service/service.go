package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"github.com/tolmv/elasticsearch/internal/config"
	"github.com/tolmv/elasticsearch/internal/domain"
	"github.com/tolmv/elasticsearch/internal/feed"
	"github.com/tolmv/elasticsearch/internal/repository"
	"github.com/tolmv/elasticsearch/internal/search"
	"github.com/tolmv/elasticsearch/internal/state"
)

// FeedReader is the two-pass feed access the ingest phase needs.
// *feed.Reader implements it.
type FeedReader interface {
	ReadCategories(ctx context.Context, fn func(domain.Category)) error
	ReadProducts(ctx context.Context, tree *domain.CategoryTree, fn func(domain.Product)) error
}

// Service runs the two phases of a matching run: ingest (parse, batch,
// dual-write) and similarity resolution (read back, query, link). Both
// phases share one bounded worker pool; each phase fully drains before the
// next starts.
type Service struct {
	repository repository.ProductRepository
	index      search.ProductIndex
	reader     FeedReader
	tracker    state.RunTracker
	pool       *ants.Pool

	chunkSize     int
	fetchPageSize int
}

func NewService(
	repository repository.ProductRepository,
	index search.ProductIndex,
	reader FeedReader,
	tracker state.RunTracker,
	cfg config.PipelineConfig,
) (*Service, error) {
	workers := cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Service{
		repository:    repository,
		index:         index,
		reader:        reader,
		tracker:       tracker,
		pool:          pool,
		chunkSize:     cfg.ChunkSize,
		fetchPageSize: cfg.FetchPageSize,
	}, nil
}

// Run executes a full matching run and reports per-phase totals.
func (s *Service) Run(ctx context.Context) error {
	start := time.Now()

	ingested, err := s.Ingest(ctx)
	if err != nil {
		return err
	}
	log.Infof("✅ Ingested %d products in %.2f seconds", ingested, time.Since(start).Seconds())

	if err := s.index.EnsureIndex(ctx); err != nil {
		return err
	}

	matched, err := s.MatchSimilar(ctx)
	if err != nil {
		return err
	}

	s.trackPhase(ctx, state.PhaseDone)
	log.Infof("✅ Matched %d products, run finished in %.2f seconds", matched, time.Since(start).Seconds())
	s.reportTrackerTotals(ctx)
	return nil
}

// reportTrackerTotals logs the tracker's cumulative per-phase counts, which
// outlive a single run when redis is configured.
func (s *Service) reportTrackerTotals(ctx context.Context) {
	ingested, err := s.tracker.GetProcessed(ctx, state.PhaseIngest)
	if err != nil {
		log.Warnf("Failed to read progress totals: %v", err)
		return
	}
	matched, err := s.tracker.GetProcessed(ctx, state.PhaseSimilarity)
	if err != nil {
		log.Warnf("Failed to read progress totals: %v", err)
		return
	}
	if ingested > 0 || matched > 0 {
		log.Infof("Tracker totals: %d products ingested, %d matched", ingested, matched)
	}
}

// Ingest streams the feed twice (categories, then offers), batches products
// and fans each batch out to the pool as an independent dual-write task:
// PostgreSQL insert first, Elasticsearch upsert second. The parse loop never
// waits on in-flight batches; the phase ends with a full pool drain.
// A failed batch is logged and excluded from the total, sibling batches are
// unaffected. Returns the number of products committed to PostgreSQL.
func (s *Service) Ingest(ctx context.Context) (int64, error) {
	s.trackPhase(ctx, state.PhaseIngest)

	tree := domain.NewCategoryTree()
	if err := s.reader.ReadCategories(ctx, tree.Add); err != nil {
		return 0, fmt.Errorf("category pass failed: %w", err)
	}
	log.Infof("Parsed %d categories", tree.Len())

	var (
		wg       sync.WaitGroup
		ingested atomic.Int64
	)

	batcher := feed.NewBatcher(s.chunkSize, func(batch []domain.Product) {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if n := s.writeBatch(ctx, batch); n > 0 {
				ingested.Add(int64(n))
				s.trackProcessed(ctx, state.PhaseIngest, n)
			}
		})
		if err != nil {
			wg.Done()
			log.Errorf("❌ Failed to submit batch of %d products: %v", len(batch), err)
		}
	})

	parseErr := s.reader.ReadProducts(ctx, tree, batcher.Add)
	batcher.Flush()
	wg.Wait()

	if parseErr != nil {
		return ingested.Load(), fmt.Errorf("product pass failed: %w", parseErr)
	}
	return ingested.Load(), nil
}

// writeBatch performs the per-batch dual write. The relational insert
// happens-before the search upsert for this batch only; there is no ordering
// across batches and no transaction spanning the two stores.
func (s *Service) writeBatch(ctx context.Context, batch []domain.Product) int {
	if err := s.repository.InsertProducts(ctx, batch); err != nil {
		log.Errorf("❌ Failed to insert batch of %d products: %v", len(batch), err)
		return 0
	}

	if _, err := s.index.UpsertBatch(ctx, batch); err != nil {
		// rows stay committed, PostgreSQL remains the system of record
		log.Errorf("❌ Failed to index batch of %d products: %v", len(batch), err)
	}
	return len(batch)
}

// MatchSimilar reads every stored product back in pages and submits one
// independent task per product: similarity query first, then the relational
// link update. Returns the number of products whose links were written.
func (s *Service) MatchSimilar(ctx context.Context) (int64, error) {
	s.trackPhase(ctx, state.PhaseSimilarity)

	var (
		wg      sync.WaitGroup
		matched atomic.Int64
	)

	fetchErr := s.repository.FetchProducts(ctx, s.fetchPageSize, func(page []domain.ProductRef) error {
		log.Infof("Fetched page with %d products", len(page))
		for _, ref := range page {
			wg.Add(1)
			err := s.pool.Submit(func() {
				defer wg.Done()
				if s.matchProduct(ctx, ref) {
					matched.Add(1)
					s.trackProcessed(ctx, state.PhaseSimilarity, 1)
				}
			})
			if err != nil {
				wg.Done()
				log.Errorf("❌ Failed to submit similarity task for %s: %v", ref.UUID, err)
			}
		}
		return nil
	})
	wg.Wait()

	if fetchErr != nil {
		return matched.Load(), fmt.Errorf("product read-back failed: %w", fetchErr)
	}
	return matched.Load(), nil
}

func (s *Service) matchProduct(ctx context.Context, ref domain.ProductRef) bool {
	similar, err := s.index.FindSimilar(ctx, ref.UUID)
	if err != nil {
		log.Errorf("❌ Failed to find similar products for %s: %v", ref.UUID, err)
		return false
	}

	if err := s.repository.UpdateSimilar(ctx, ref.UUID, similar); err != nil {
		log.Errorf("❌ Failed to update similar products for %s: %v", ref.UUID, err)
		return false
	}

	log.Infof("Updated product %s with similar SKUs: %v", ref.UUID, similar)
	return true
}

// Release shuts the worker pool down. The service must not be used after.
func (s *Service) Release() {
	s.pool.Release()
}

func (s *Service) trackPhase(ctx context.Context, phase string) {
	if err := s.tracker.SetPhase(ctx, phase); err != nil {
		log.Warnf("Failed to record run phase: %v", err)
	}
}

func (s *Service) trackProcessed(ctx context.Context, phase string, count int) {
	if err := s.tracker.AddProcessed(ctx, phase, count); err != nil {
		log.Warnf("Failed to record progress: %v", err)
	}
}
