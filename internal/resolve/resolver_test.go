package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightlab/finsight/internal/extract"
	"github.com/finsightlab/finsight/internal/ledger"
	"github.com/finsightlab/finsight/internal/match"
)

type stubExtractor struct {
	sugg extract.Suggestion
	err  error
}

func (s stubExtractor) ExtractEntityName(context.Context, string) (extract.Suggestion, error) {
	return s.sugg, s.err
}

type slowExtractor struct{}

func (slowExtractor) ExtractEntityName(ctx context.Context, _ string) (extract.Suggestion, error) {
	<-ctx.Done()
	return extract.Suggestion{}, ctx.Err()
}

type stubClassifier struct {
	sugg extract.Suggestion
	err  error
}

func (s stubClassifier) ClassifyCategory(context.Context, string, []string) (extract.Suggestion, error) {
	return s.sugg, s.err
}

func entity(name string) ledger.Entity {
	return ledger.Entity{ID: uuid.New(), Name: name, NormalizedName: ledger.NormalizeName(name)}
}

func TestEntityResolver_ExactNameMatch(t *testing.T) {
	depot := entity("Office Depot")
	r := NewEntityResolver(match.TokenOverlap{}, extract.Disabled{}, DefaultConfig())

	res := r.Resolve(context.Background(), "Office Depot", nil, []ledger.Entity{depot})

	require.NotNil(t, res.TargetID)
	assert.Equal(t, depot.ID, *res.TargetID)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Equal(t, SourceExact, res.Source)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestEntityResolver_CorrectionOutranksExactMatch(t *testing.T) {
	netflix := entity("Netflix")
	other := entity("Netflix Inc")
	corrections := Corrections{match.Normalize("Netflix"): other.ID}
	r := NewEntityResolver(match.TokenOverlap{}, extract.Disabled{}, DefaultConfig())

	res := r.Resolve(context.Background(), "Netflix", corrections, []ledger.Entity{netflix, other})

	require.NotNil(t, res.TargetID)
	assert.Equal(t, other.ID, *res.TargetID, "correction rule must win over the exact name match")
	assert.Equal(t, SourceCorrection, res.Source)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestEntityResolver_FuzzyMatchAboveThreshold(t *testing.T) {
	netflix := entity("Netflix Subscription")
	r := NewEntityResolver(match.TokenOverlap{}, extract.Disabled{}, DefaultConfig())

	res := r.Resolve(context.Background(), "Netflix Subscription Fee", nil, []ledger.Entity{netflix})

	require.NotNil(t, res.TargetID)
	assert.Equal(t, netflix.ID, *res.TargetID)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Equal(t, SourceFuzzy, res.Source)
	assert.GreaterOrEqual(t, res.Confidence, 0.85)
}

func TestEntityResolver_BelowThresholdRanksAlternatives(t *testing.T) {
	acme := entity("ACME Corp")
	depot := entity("Office Depot")
	r := NewEntityResolver(match.TokenOverlap{}, extract.Disabled{}, DefaultConfig())

	res := r.Resolve(context.Background(), "ACME Corp Payment", nil, []ledger.Entity{acme, depot})

	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Nil(t, res.TargetID)
	require.NotEmpty(t, res.Alternatives)
	assert.Equal(t, acme.ID, res.Alternatives[0].ID)
	assert.Less(t, res.Alternatives[0].Score, 0.85)
}

func TestEntityResolver_ExtractionProposalStaysUnresolved(t *testing.T) {
	ex := stubExtractor{sugg: extract.Suggestion{Name: "Amazon", Confidence: 0.6}}
	r := NewEntityResolver(match.TokenOverlap{}, ex, DefaultConfig())

	res := r.Resolve(context.Background(), "AMZN MKTP", nil, nil)

	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Nil(t, res.TargetID)
	assert.Equal(t, "Amazon", res.ProposedName)
	assert.Equal(t, 0.6, res.Confidence)
	assert.Equal(t, SourceExtraction, res.Source)
}

func TestEntityResolver_CorrectionPropagatesToVendorVariants(t *testing.T) {
	amazon := entity("Amazon")
	corrections := Corrections{match.Normalize("AMZN MKTP"): amazon.ID}
	r := NewEntityResolver(match.TokenOverlap{}, extract.Disabled{}, DefaultConfig())

	res := r.Resolve(context.Background(), "AMZN Prime", corrections, []ledger.Entity{amazon})

	require.NotNil(t, res.TargetID)
	assert.Equal(t, amazon.ID, *res.TargetID)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Equal(t, SourceCorrection, res.Source)
	assert.GreaterOrEqual(t, res.Confidence, 0.85)
}

func TestEntityResolver_ExtractionTimeoutDegrades(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExtractTimeout = 5 * time.Millisecond
	r := NewEntityResolver(match.TokenOverlap{}, slowExtractor{}, cfg)

	res := r.Resolve(context.Background(), "AMZN MKTP", nil, nil)

	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Empty(t, res.ProposedName)
	assert.Equal(t, SourceNone, res.Source)
}

func TestCategoryResolver_ExactAndCorrection(t *testing.T) {
	owner := uuid.New()
	cats := ledger.DefaultCategories(owner)
	var marketing ledger.Category
	for _, c := range cats {
		if c.Name == "Marketing" {
			marketing = c
		}
	}
	require.NotEqual(t, uuid.Nil, marketing.ID)

	r := NewCategoryResolver(match.TokenOverlap{}, extract.Disabled{}, DefaultConfig())

	res := r.Resolve(context.Background(), "Marketing", nil, cats)
	require.NotNil(t, res.TargetID)
	assert.Equal(t, marketing.ID, *res.TargetID)
	assert.Equal(t, SourceExact, res.Source)

	corrections := Corrections{match.Normalize("FB ADS"): marketing.ID}
	res = r.Resolve(context.Background(), "FB ADS", corrections, cats)
	require.NotNil(t, res.TargetID)
	assert.Equal(t, marketing.ID, *res.TargetID)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestCategoryResolver_ClassifierSuggestionBelowBar(t *testing.T) {
	owner := uuid.New()
	cats := ledger.DefaultCategories(owner)
	cl := stubClassifier{sugg: extract.Suggestion{Name: "Software & Subscriptions", Confidence: 0.6}}
	r := NewCategoryResolver(match.TokenOverlap{}, cl, DefaultConfig())

	res := r.Resolve(context.Background(), "Spotify", nil, cats)

	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Nil(t, res.TargetID)
	require.NotEmpty(t, res.Alternatives)
	assert.Equal(t, "Software & Subscriptions", res.Alternatives[0].Name)
	assert.Equal(t, 0.6, res.Alternatives[0].Score)
	assert.Equal(t, SourceExtraction, res.Source)
}

func TestCategoryResolver_ClassifierAnswerOutsideTaxonomyIgnored(t *testing.T) {
	owner := uuid.New()
	cats := ledger.DefaultCategories(owner)
	cl := stubClassifier{sugg: extract.Suggestion{Name: "Groceries", Confidence: 0.9}}
	r := NewCategoryResolver(match.TokenOverlap{}, cl, DefaultConfig())

	res := r.Resolve(context.Background(), "Spotify", nil, cats)

	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Nil(t, res.TargetID)
	assert.Equal(t, SourceNone, res.Source)
}
