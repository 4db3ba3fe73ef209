// Package resolve maps transaction descriptions to counterparty entities
// and taxonomy categories.
//
// Resolution runs a fixed-order chain of stages, each a pure function that
// either yields a scored candidate or passes: correction-rule lookup, exact
// normalized-name match, fuzzy similarity, then an external extraction
// fallback (entities) or classifier fallback (categories). A correction
// rule always outranks every heuristic for the same owner.
package resolve

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/finsightlab/finsight/internal/extract"
	"github.com/finsightlab/finsight/internal/ledger"
	"github.com/finsightlab/finsight/internal/match"
)

// Config carries the resolution thresholds. The similarity threshold gates
// fuzzy acceptance; the auto-accept bar gates linking without user review.
type Config struct {
	SimilarityThreshold float64
	AutoAccept          float64
	ExtractTimeout      time.Duration
	MaxAlternatives     int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.85,
		AutoAccept:          0.85,
		ExtractTimeout:      10 * time.Second,
		MaxAlternatives:     3,
	}
}

// Source names the stage that produced a result.
type Source string

const (
	SourceCorrection Source = "correction"
	SourceExact      Source = "exact"
	SourceFuzzy      Source = "fuzzy"
	SourceExtraction Source = "extraction"
	SourceNone       Source = "none"
)

// Status is the per-transaction resolution state.
type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusMatched    Status = "matched"
	StatusConfirmed  Status = "confirmed"
	StatusCorrected  Status = "corrected"
)

// Candidate is one scored match against an existing record.
type Candidate struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Score float64   `json:"score"`
}

// Result is the outcome of one resolution call.
//
// TargetID is set when a stage cleared its threshold. ProposedName carries
// an extraction suggestion for an entity that does not exist yet.
// Alternatives is the ranked candidate list shown for review when nothing
// was accepted outright.
type Result struct {
	Status       Status      `json:"status"`
	TargetID     *uuid.UUID  `json:"target_id,omitempty"`
	ProposedName string      `json:"proposed_name,omitempty"`
	Confidence   float64     `json:"confidence"`
	Source       Source      `json:"source"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
}

// Corrections is an owner's correction memory, keyed by normalized
// description. The caller loads it and passes it in; the resolver never
// reaches into ambient state.
type Corrections map[string]uuid.UUID

// EntityResolver matches descriptions against a per-owner entity registry.
type EntityResolver struct {
	sim       match.Similarity
	extractor extract.Extractor
	cfg       Config
}

func NewEntityResolver(sim match.Similarity, extractor extract.Extractor, cfg Config) *EntityResolver {
	if extractor == nil {
		extractor = extract.Disabled{}
	}
	return &EntityResolver{sim: sim, extractor: extractor, cfg: cfg}
}

// Resolve runs the stage chain for one description. Corrections and the
// entity snapshot are owner-scoped; the caller guarantees that.
func (r *EntityResolver) Resolve(ctx context.Context, description string, corrections Corrections, entities []ledger.Entity) Result {
	key := match.Normalize(description)
	names := entityNames(entities)

	if cand, ok := correctionExact(key, corrections, names); ok {
		return accepted(cand, SourceCorrection, r.cfg.AutoAccept)
	}
	if cand, ok := exactEntity(key, entities); ok {
		return accepted(cand, SourceExact, r.cfg.AutoAccept)
	}

	ranked := rankEntities(key, corrections, names, entities, r.sim)
	if len(ranked) > 0 && ranked[0].Candidate.Score >= r.cfg.SimilarityThreshold {
		return accepted(ranked[0].Candidate, ranked[0].Source, r.cfg.AutoAccept)
	}
	alts := topCandidates(ranked, r.cfg.MaxAlternatives)

	sugg, err := r.extract(ctx, description)
	if err != nil {
		return Result{Status: StatusUnresolved, Source: SourceNone, Alternatives: alts}
	}
	if sugg.Confidence >= r.cfg.AutoAccept {
		return Result{
			Status:       StatusConfirmed,
			ProposedName: sugg.Name,
			Confidence:   sugg.Confidence,
			Source:       SourceExtraction,
			Alternatives: alts,
		}
	}
	return Result{
		Status:       StatusUnresolved,
		ProposedName: sugg.Name,
		Confidence:   sugg.Confidence,
		Source:       SourceExtraction,
		Alternatives: alts,
	}
}

func (r *EntityResolver) extract(ctx context.Context, description string) (extract.Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ExtractTimeout)
	defer cancel()
	return r.extractor.ExtractEntityName(ctx, description)
}

// CategoryResolver matches descriptions against a per-owner category
// taxonomy. Categories are flat; there is no merge.
type CategoryResolver struct {
	sim        match.Similarity
	classifier extract.CategoryClassifier
	cfg        Config
}

func NewCategoryResolver(sim match.Similarity, classifier extract.CategoryClassifier, cfg Config) *CategoryResolver {
	if classifier == nil {
		classifier = extract.Disabled{}
	}
	return &CategoryResolver{sim: sim, classifier: classifier, cfg: cfg}
}

// Resolve runs the same chain as entity resolution, against the owner's
// categories. The classifier fallback may only answer with a name already
// in the taxonomy, so its suggestion always carries a category id.
func (r *CategoryResolver) Resolve(ctx context.Context, description string, corrections Corrections, categories []ledger.Category) Result {
	key := match.Normalize(description)
	names := categoryNames(categories)

	if cand, ok := correctionExact(key, corrections, names); ok {
		return accepted(cand, SourceCorrection, r.cfg.AutoAccept)
	}
	if cand, ok := exactCategory(key, categories); ok {
		return accepted(cand, SourceExact, r.cfg.AutoAccept)
	}

	ranked := rankCategories(key, corrections, names, categories, r.sim)
	if len(ranked) > 0 && ranked[0].Candidate.Score >= r.cfg.SimilarityThreshold {
		return accepted(ranked[0].Candidate, ranked[0].Source, r.cfg.AutoAccept)
	}
	alts := topCandidates(ranked, r.cfg.MaxAlternatives)

	sugg, err := r.classify(ctx, description, categories)
	if err != nil {
		return Result{Status: StatusUnresolved, Source: SourceNone, Alternatives: alts}
	}
	cand, ok := lookupCategory(sugg.Name, categories)
	if !ok {
		return Result{Status: StatusUnresolved, Source: SourceNone, Alternatives: alts}
	}
	cand.Score = sugg.Confidence
	if sugg.Confidence >= r.cfg.AutoAccept {
		return accepted(cand, SourceExtraction, r.cfg.AutoAccept)
	}
	return Result{
		Status:       StatusUnresolved,
		Confidence:   sugg.Confidence,
		Source:       SourceExtraction,
		Alternatives: append([]Candidate{cand}, alts...),
	}
}

func (r *CategoryResolver) classify(ctx context.Context, description string, categories []ledger.Category) (extract.Suggestion, error) {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ExtractTimeout)
	defer cancel()
	return r.classifier.ClassifyCategory(ctx, description, names)
}

func accepted(c Candidate, src Source, autoAccept float64) Result {
	status := StatusMatched
	if src == SourceCorrection || c.Score >= autoAccept {
		status = StatusConfirmed
	}
	id := c.ID
	return Result{Status: status, TargetID: &id, Confidence: c.Score, Source: src}
}

func correctionExact(key string, corrections Corrections, names map[uuid.UUID]string) (Candidate, bool) {
	id, ok := corrections[key]
	if !ok {
		return Candidate{}, false
	}
	return Candidate{ID: id, Name: names[id], Score: 1.0}, true
}

func exactEntity(key string, entities []ledger.Entity) (Candidate, bool) {
	for _, e := range entities {
		if e.NormalizedName == key {
			return Candidate{ID: e.ID, Name: e.Name, Score: 1.0}, true
		}
	}
	return Candidate{}, false
}

func exactCategory(key string, categories []ledger.Category) (Candidate, bool) {
	for _, c := range categories {
		if c.NormalizedName == key {
			return Candidate{ID: c.ID, Name: c.Name, Score: 1.0}, true
		}
	}
	return Candidate{}, false
}

func lookupCategory(name string, categories []ledger.Category) (Candidate, bool) {
	norm := ledger.NormalizeName(name)
	for _, c := range categories {
		if c.NormalizedName == norm {
			return Candidate{ID: c.ID, Name: c.Name}, true
		}
	}
	return Candidate{}, false
}

// scored pairs a candidate with the stage that produced it, so a fuzzy hit
// on a correction key keeps correction precedence.
type scored struct {
	Candidate Candidate
	Source    Source
	sortKey   string
}

// rankEntities scores the key against every entity name and every
// correction key. A correction key whose leading vendor token equals the
// description's scores at least 0.9: merchant descriptors lead with the
// vendor code, so a correction for "amzn mktp" covers "amzn prime" too.
func rankEntities(key string, corrections Corrections, names map[uuid.UUID]string, entities []ledger.Entity, sim match.Similarity) []scored {
	out := make([]scored, 0, len(entities)+len(corrections))
	for _, e := range entities {
		out = append(out, scored{
			Candidate: Candidate{ID: e.ID, Name: e.Name, Score: sim.Score(key, e.NormalizedName)},
			Source:    SourceFuzzy,
			sortKey:   e.NormalizedName,
		})
	}
	out = append(out, scoreCorrections(key, corrections, names, sim)...)
	sortScored(out)
	return out
}

func rankCategories(key string, corrections Corrections, names map[uuid.UUID]string, categories []ledger.Category, sim match.Similarity) []scored {
	out := make([]scored, 0, len(categories)+len(corrections))
	for _, c := range categories {
		out = append(out, scored{
			Candidate: Candidate{ID: c.ID, Name: c.Name, Score: sim.Score(key, c.NormalizedName)},
			Source:    SourceFuzzy,
			sortKey:   c.NormalizedName,
		})
	}
	out = append(out, scoreCorrections(key, corrections, names, sim)...)
	sortScored(out)
	return out
}

func scoreCorrections(key string, corrections Corrections, names map[uuid.UUID]string, sim match.Similarity) []scored {
	out := make([]scored, 0, len(corrections))
	lead := leadingVendorToken(key)
	for ruleKey, id := range corrections {
		score := sim.Score(key, ruleKey)
		if lead != "" && lead == leadingVendorToken(ruleKey) {
			score = max(score, 0.9)
		}
		out = append(out, scored{
			Candidate: Candidate{ID: id, Name: names[id], Score: score},
			Source:    SourceCorrection,
			sortKey:   ruleKey,
		})
	}
	return out
}

// sortScored orders by score descending, corrections before heuristics on
// ties, then by sort key so map iteration order never leaks into results.
func sortScored(s []scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Candidate.Score != s[j].Candidate.Score {
			return s[i].Candidate.Score > s[j].Candidate.Score
		}
		if (s[i].Source == SourceCorrection) != (s[j].Source == SourceCorrection) {
			return s[i].Source == SourceCorrection
		}
		return s[i].sortKey < s[j].sortKey
	})
}

// topCandidates keeps at most n candidates with non-trivial scores,
// deduplicated by target id.
func topCandidates(ranked []scored, n int) []Candidate {
	seen := make(map[uuid.UUID]struct{}, n)
	var out []Candidate
	for _, s := range ranked {
		if len(out) == n || s.Candidate.Score < 0.3 {
			break
		}
		if _, dup := seen[s.Candidate.ID]; dup {
			continue
		}
		seen[s.Candidate.ID] = struct{}{}
		out = append(out, s.Candidate)
	}
	return out
}

// leadingVendorToken returns the first normalized token when it is long
// enough to identify a vendor and is not a bare number.
func leadingVendorToken(key string) string {
	tok, _, _ := strings.Cut(key, " ")
	if len(tok) < 4 {
		return ""
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return tok
		}
	}
	return ""
}

func entityNames(entities []ledger.Entity) map[uuid.UUID]string {
	m := make(map[uuid.UUID]string, len(entities))
	for _, e := range entities {
		m[e.ID] = e.Name
	}
	return m
}

func categoryNames(categories []ledger.Category) map[uuid.UUID]string {
	m := make(map[uuid.UUID]string, len(categories))
	for _, c := range categories {
		m[c.ID] = c.Name
	}
	return m
}
