package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vipclub/access-server/internal/repository"
)

type CleanupJob struct {
	adminSessionRepo repository.AdminSessionRepository
	grantRepo        repository.AccessGrantRepository
	grantRetention   time.Duration
	interval         time.Duration
	now              func() time.Time
	done             chan struct{}
}

// NewCleanupJob purges expired admin sessions and, when grantRetention is
// positive, grants that expired more than grantRetention ago.
func NewCleanupJob(
	adminSessionRepo repository.AdminSessionRepository,
	grantRepo repository.AccessGrantRepository,
	grantRetention time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		adminSessionRepo: adminSessionRepo,
		grantRepo:        grantRepo,
		grantRetention:   grantRetention,
		interval:         interval,
		now:              time.Now,
		done:             make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("grantRetention", j.grantRetention).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "admin sessions", j.adminSessionRepo.DeleteExpired)

	if j.grantRetention > 0 {
		cutoff := j.now().Add(-j.grantRetention)
		j.runCleanup(ctx, "expired access grants", func(ctx context.Context) (int64, error) {
			return j.grantRepo.DeleteExpiredBefore(ctx, cutoff)
		})
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
