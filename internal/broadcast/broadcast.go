// Package broadcast publishes consumer-specific projections of the shared
// project document. Each known consumer gets a stably named file under the
// sync directory; independent processes poll those files on their own
// schedule.
package broadcast

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/logging"
	"github.com/tasknexus/decomp-engine/internal/quality"
	"github.com/tasknexus/decomp-engine/internal/state"
)

// Known consumer names. Each maps to "<name>_agent.json" in the sync dir.
const (
	ConsumerDev        = "dev"
	ConsumerDiscovery  = "discovery"
	ConsumerComplexity = "complexity"
	ConsumerQuality    = "quality"
)

// Consumers returns the known consumer names in publish order.
func Consumers() []string {
	return []string{ConsumerDev, ConsumerDiscovery, ConsumerComplexity, ConsumerQuality}
}

// Project computes one projection per known consumer: the full state plus
// that consumer's extra view.
func Project(st *domain.ProjectState, gatePassed bool) map[string]domain.Projection {
	now := time.Now().Unix()
	base := func(consumer string) domain.Projection {
		return domain.Projection{
			Consumer:          consumer,
			GeneratedAtUnix:   now,
			State:             *st,
			QualityGatePassed: gatePassed,
		}
	}

	dev := base(ConsumerDev)
	dev.SkipDependencies = append([]string{}, st.InstalledDependencies...)
	dev.SkipFiles = append([]string{}, st.CreatedFiles...)

	discovery := base(ConsumerDiscovery)
	discovery.CompletedSubtasks = append([]string{}, st.CompletedSubtasks...)
	discovery.ProjectDeps = append([]string{}, st.InstalledDependencies...)

	complexity := base(ConsumerComplexity)
	complexity.Factors = &domain.ComplexityFactors{
		FileCount:       len(st.CreatedFiles),
		DependencyCount: len(st.InstalledDependencies),
		TestCoverage:    state.TestCoverage(st),
	}

	qual := base(ConsumerQuality)
	qual.QualityVerdict = quality.VerdictForScore(st.QualityScore)

	return map[string]domain.Projection{
		ConsumerDev:        dev,
		ConsumerDiscovery:  discovery,
		ConsumerComplexity: complexity,
		ConsumerQuality:    qual,
	}
}

// Broadcaster writes projection documents to the sync directory.
type Broadcaster struct {
	dir string
	log *logging.Logger
}

// New creates a Broadcaster publishing into syncDir.
func New(syncDir string, log *logging.Logger) *Broadcaster {
	return &Broadcaster{dir: syncDir, log: log}
}

// Dir returns the sync directory.
func (b *Broadcaster) Dir() string {
	return b.dir
}

// Publish writes each projection to its consumer file and returns the paths
// written. Writes are plain overwrites: publication is last-writer-wins per
// location. A failed write is logged and skipped so the remaining consumers
// still publish; the first failure is returned after the loop.
func (b *Broadcaster) Publish(ctx context.Context, projections map[string]domain.Projection) ([]string, error) {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return nil, domain.WrapEngineError(domain.ErrSyncWrite.Code, domain.ErrSyncWrite.Message, err)
	}

	var firstErr error
	written := []string{}
	for _, consumer := range Consumers() {
		proj, ok := projections[consumer]
		if !ok {
			continue
		}
		path := filepath.Join(b.dir, consumer+"_agent.json")
		data, err := json.MarshalIndent(proj, "", "  ")
		if err == nil {
			err = os.WriteFile(path, data, 0644)
		}
		if err != nil {
			b.log.Warn(ctx, "projection write failed",
				zap.String("consumer", consumer), zap.Error(err))
			if firstErr == nil {
				firstErr = domain.WrapEngineError(domain.ErrSyncWrite.Code, domain.ErrSyncWrite.Message, err)
			}
			continue
		}
		written = append(written, path)
	}

	b.log.Debug(ctx, "projections published",
		zap.String("dir", b.dir), zap.Int("count", len(written)))
	return written, firstErr
}
