package study

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/studyflow/internal/telemetry"
	"github.com/mohammad-safakhou/studyflow/models"
)

// ProgressFunc receives one orchestration step per state transition. It is
// invoked synchronously; callbacks must not block.
type ProgressFunc func(models.OrchestrationStep)

// Orchestrator sequences outline generation and resource fetching into a
// complete learning path. Outline failure aborts the whole build; a single
// module's resource failure only degrades that module.
type Orchestrator struct {
	generator *Generator
	fetcher   *Fetcher
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewOrchestrator creates a learning-path orchestrator
func NewOrchestrator(generator *Generator, fetcher *Fetcher, tele *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		fetcher:   fetcher,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
}

// BuildLearningPath builds a complete learning path for a topic.
//
// Phase 1 generates the module outline; any error here is fatal and is both
// reported through onProgress and returned. Phase 2 fetches resources for all
// modules concurrently; modules that come back empty are marked error while
// the pipeline still succeeds.
func (o *Orchestrator) BuildLearningPath(ctx context.Context, topic string, onProgress ProgressFunc) (models.LearningPath, error) {
	start := time.Now()
	emit := func(step models.OrchestrationStep) {
		if onProgress != nil {
			onProgress(step)
		}
	}

	o.logger.Printf("building learning path for topic %q", topic)
	emit(models.OrchestrationStep{Step: "generating", Message: "Breaking topic into learning modules..."})

	outline, err := o.generator.GenerateOutline(ctx, topic)
	if err != nil {
		emit(models.OrchestrationStep{Step: "error", Message: err.Error(), Err: err})
		o.telemetry.RecordPathBuild(time.Since(start), err)
		return models.LearningPath{}, err
	}

	// pending shells with fresh IDs; outline-provided order keys are kept as
	// display order but never used as identifiers
	subModules := make([]models.SubModule, len(outline.Modules))
	for i, mod := range outline.Modules {
		subModules[i] = models.SubModule{
			ID:               uuid.NewString(),
			Order:            mod.Order,
			Title:            mod.Title,
			Description:      mod.Description,
			EstimatedMinutes: mod.EstimatedMinutes,
			SearchQuery:      mod.SearchQuery,
			Difficulty:       mod.Difficulty,
			Articles:         []models.ArticleResource{},
			Videos:           []models.VideoResource{},
			Status:           models.ModulePending,
		}
	}

	emit(models.OrchestrationStep{Step: "searching", Message: "Finding articles and videos for each module..."})

	resources := o.fetcher.FetchAllModuleResources(ctx, subModules)

	for i := range subModules {
		subModules[i].Articles = resources[i].Articles
		subModules[i].Videos = resources[i].Videos
		if len(resources[i].Articles) > 0 || len(resources[i].Videos) > 0 {
			subModules[i].Status = models.ModuleComplete
		} else {
			subModules[i].Status = models.ModuleError
		}
	}

	path := models.LearningPath{
		ID:                    uuid.NewString(),
		Topic:                 outline.Topic,
		Overview:              outline.Overview,
		TotalModules:          len(subModules),
		EstimatedTotalMinutes: outline.EstimatedTotalMinutes,
		Difficulty:            outline.Difficulty,
		SubModules:            subModules,
		CreatedAt:             time.Now().UTC(),
		GeneratedBy:           "llm",
	}

	emit(models.OrchestrationStep{Step: "complete", Message: "Learning path ready!"})
	o.telemetry.RecordPathBuild(time.Since(start), nil)
	o.logger.Printf("learning path %s ready with %d modules in %v", path.ID, path.TotalModules, time.Since(start))

	return path, nil
}
