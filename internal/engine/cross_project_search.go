package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/scrypster/memento/pkg/types"
)

// consentRegistry is the minimal dependency SearchAllProjects needs from
// internal/connections.Registry.
type consentRegistry interface {
	OptedInProjects() []string
}

// ProjectSearchHit pairs a retrieved memory with the project it was found
// in, since results from multiple projects are merged into one list.
type ProjectSearchHit struct {
	Project string
	Memory  *types.Memory
	Score   float64
}

// ProjectSearchFailure records one project's fan-out failure without
// aborting the others (spec.md 4.10 step 4: partial failure is reported,
// not fatal).
type ProjectSearchFailure struct {
	Project string
	Error   string
}

// CrossProjectResult is the response shape of search_all_projects.
type CrossProjectResult struct {
	Results          []ProjectSearchHit
	ProjectsSearched []string
	FailedProjects   []ProjectSearchFailure
	QueryTimeMS      int64
}

// SearchAllProjects implements search_all_projects (spec.md 4.10): fan a
// query out to every opted-in project in parallel, merge by score
// descending, and truncate to limit. req's ProjectName is ignored and
// overwritten per project; its other fields (category/scope/filters) are
// reused for every fan-out.
func (s *SearchOrchestrator) SearchAllProjects(ctx context.Context, registry consentRegistry, req types.QueryRequest) (*CrossProjectResult, error) {
	start := time.Now()

	projects := registry.OptedInProjects()
	sort.Strings(projects)
	if len(projects) == 0 {
		return &CrossProjectResult{
			Results:          []ProjectSearchHit{},
			ProjectsSearched: []string{},
			QueryTimeMS:      time.Since(start).Milliseconds(),
		}, nil
	}

	type outcome struct {
		project string
		results []ScoredMemory
		err     error
	}

	outcomes := make([]outcome, len(projects))
	var wg sync.WaitGroup
	for i, project := range projects {
		wg.Add(1)
		go func(i int, project string) {
			defer wg.Done()
			perProjectReq := req
			perProjectReq.ProjectName = project
			res, err := s.RetrieveMemories(ctx, perProjectReq)
			if err != nil {
				outcomes[i] = outcome{project: project, err: err}
				return
			}
			outcomes[i] = outcome{project: project, results: res.Results}
		}(i, project)
	}
	wg.Wait()

	var merged []ProjectSearchHit
	var searched []string
	var failed []ProjectSearchFailure
	for _, o := range outcomes {
		if o.err != nil {
			failed = append(failed, ProjectSearchFailure{Project: o.project, Error: o.err.Error()})
			continue
		}
		searched = append(searched, o.project)
		for _, r := range o.results {
			merged = append(merged, ProjectSearchHit{Project: o.project, Memory: r.Memory, Score: r.Score})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if req.Limit > 0 && len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}

	return &CrossProjectResult{
		Results:          merged,
		ProjectsSearched: searched,
		FailedProjects:   failed,
		QueryTimeMS:      time.Since(start).Milliseconds(),
	}, nil
}
