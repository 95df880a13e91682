package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/memento/internal/classifier"
	"github.com/scrypster/memento/pkg/types"
)

func TestClassifyContextLevel_Preference(t *testing.T) {
	got := classifier.ClassifyContextLevel("I prefer tabs over spaces for indentation", types.CategoryPreference)
	assert.Equal(t, types.ContextUserPreference, got)
}

func TestClassifyContextLevel_ProjectContext(t *testing.T) {
	got := classifier.ClassifyContextLevel("This project's architecture depends on a central config module", types.CategoryContext)
	assert.Equal(t, types.ContextProjectContext, got)
}

func TestClassifyContextLevel_SessionState(t *testing.T) {
	got := classifier.ClassifyContextLevel("We are currently debugging the next step in the pipeline", types.CategoryEvent)
	assert.Equal(t, types.ContextSessionState, got)
}

func TestClassifyContextLevel_FallsBackByCategoryWhenScoreLow(t *testing.T) {
	assert.Equal(t, types.ContextUserPreference, classifier.ClassifyContextLevel("xyzzy", types.CategoryPreference))
	assert.Equal(t, types.ContextSessionState, classifier.ClassifyContextLevel("xyzzy", types.CategoryEvent))
	assert.Equal(t, types.ContextProjectContext, classifier.ClassifyContextLevel("xyzzy", types.CategoryFact))
}

func TestClassifyContextLevel_CaseInsensitive(t *testing.T) {
	upper := classifier.ClassifyContextLevel("I PREFER TABS OVER SPACES", types.CategoryPreference)
	lower := classifier.ClassifyContextLevel("i prefer tabs over spaces", types.CategoryPreference)
	assert.Equal(t, lower, upper)
}

func TestClassifyContextLevel_Deterministic(t *testing.T) {
	content := "This module's config depends on the other service"
	a := classifier.ClassifyContextLevel(content, types.CategoryContext)
	b := classifier.ClassifyContextLevel(content, types.CategoryContext)
	assert.Equal(t, a, b)
}

func TestClassifyContextLevel_CodeConstructNudgesProjectContext(t *testing.T) {
	got := classifier.ClassifyContextLevel("func handleRequest() { return nil }", types.CategoryFact)
	assert.Equal(t, types.ContextProjectContext, got)
}
