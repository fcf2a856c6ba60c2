package extract

import (
	"log/slog"
	"strings"

	"github.com/kslau/tendergraph/chunk"
	"github.com/kslau/tendergraph/schema"
)

// DefaultConfidenceThreshold is the score below which a mention is flagged.
const DefaultConfidenceThreshold = 0.5

// LowConfidenceEntity records one mention whose confidence fell below the
// reconciler's threshold.
type LowConfidenceEntity struct {
	Label string  `json:"label"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// QualityFlags carries per-record extraction diagnostics. They are
// informational: a flagged record is still written.
type QualityFlags struct {
	HasEntities   bool                  `json:"has_entities"`
	HasRelations  bool                  `json:"has_relations"`
	LowConfidence []LowConfidenceEntity `json:"low_confidence_entities"`
	UnknownLabels []string              `json:"unknown_labels"`
	EmptyChunk    bool                  `json:"empty_chunk,omitempty"`
}

// ReconciledRecord is the merge of a chunk with its extraction result:
// deduped canonical entity mentions, a closed relation map, quality
// diagnostics, and the preserved source fields. Built once, then consumed by
// normalization and serialization; never mutated afterwards.
type ReconciledRecord struct {
	ChunkID      string                              `json:"chunk_id"`
	ChunkText    string                              `json:"chunk_text"`
	Entities     map[schema.EntityType][]string      `json:"entities"`
	Relations    map[schema.RelationType][][2]string `json:"relations"`
	QualityFlags QualityFlags                        `json:"quality_flags"`
	chunk.Record

	// Derived fields, set during normalization when the raw values parse.
	// The raw awarded_amt and award_date fields stay untouched for audit.
	AwardedAmtNormalized *float64 `json:"awarded_amt_normalized,omitempty"`
	AwardDateNormalized  string   `json:"award_date_normalized,omitempty"`
}

// Reconciler merges structured-field-derived relations (authoritative) with
// oracle-derived relations (enrichment). It is stateless apart from the
// read-only schema, so one value is safe for concurrent use.
type Reconciler struct {
	sch       *schema.Schema
	threshold float64
}

// NewReconciler creates a Reconciler. A non-positive threshold falls back to
// DefaultConfidenceThreshold.
func NewReconciler(sch *schema.Schema, threshold float64) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Reconciler{sch: sch, threshold: threshold}
}

// Empty builds the record for a chunk with no card text. Extraction is
// skipped entirely; the record carries empty maps and the empty_chunk flag.
func (r *Reconciler) Empty(c chunk.Chunk) ReconciledRecord {
	return ReconciledRecord{
		ChunkID:   c.ID,
		ChunkText: c.Text,
		Entities:  map[schema.EntityType][]string{},
		Relations: map[schema.RelationType][][2]string{},
		QualityFlags: QualityFlags{
			LowConfidence: []LowConfidenceEntity{},
			UnknownLabels: []string{},
			EmptyChunk:    true,
		},
		Record: c.Record,
	}
}

// Reconcile merges a chunk with the oracle's raw output.
//
// Structured fields win: PUBLISHED_BY, AWARDED_TO, and IN_CATEGORY are
// synthesized from the chunk and any oracle proposal for those types is
// ignored. HAS_REQUIREMENT and HAS_DEADLINE pairs are re-anchored to the
// chunk's tender number when their proposed source is not a known Tender
// entity. Relation types outside the schema's six are dropped, keeping the
// output closed. Malformed pairs vanish silently per the lenient contract.
func (r *Reconciler) Reconcile(c chunk.Chunk, raw *RawResult) ReconciledRecord {
	if c.Text == "" {
		return r.Empty(c)
	}
	if raw == nil {
		raw = &RawResult{}
	}

	flags := r.qualityFlags(c.ID, raw)
	entities := coerceEntities(raw.Entities)

	tenderNo := strings.TrimSpace(c.TenderNo)
	agency := strings.TrimSpace(c.Agency)
	supplier := strings.TrimSpace(c.Supplier)
	category := strings.TrimSpace(c.Category)

	// Backfill the chunk's own values so the authoritative relations always
	// have matching endpoint entities when materialized as edges.
	backfill(entities, schema.EntityTender, tenderNo)
	backfill(entities, schema.EntityAgency, agency)
	backfill(entities, schema.EntitySupplier, supplier)
	backfill(entities, schema.EntityCategory, category)

	relations := map[schema.RelationType][][2]string{
		schema.RelPublishedBy: {},
		schema.RelAwardedTo:   {},
		schema.RelInCategory:  {},
	}
	if tenderNo != "" && agency != "" {
		relations[schema.RelPublishedBy] = append(relations[schema.RelPublishedBy], [2]string{tenderNo, agency})
	}
	if tenderNo != "" && supplier != "" {
		relations[schema.RelAwardedTo] = append(relations[schema.RelAwardedTo], [2]string{tenderNo, supplier})
	}
	if tenderNo != "" && category != "" {
		relations[schema.RelInCategory] = append(relations[schema.RelInCategory], [2]string{tenderNo, category})
	}

	tenderNames := nameSet(entities[schema.EntityTender])

	// HAS_REQUIREMENT: re-anchor sources that are not known Tender entities.
	relations[schema.RelHasRequirement] = r.reanchor(
		raw.Relations[string(schema.RelHasRequirement)], tenderNames, tenderNo, nil)

	// HAS_DEADLINE: re-anchor, and make sure every target exists as a Date
	// entity so the edge can reference a node.
	dates := nameSet(entities[schema.EntityDate])
	relations[schema.RelHasDeadline] = r.reanchor(
		raw.Relations[string(schema.RelHasDeadline)], tenderNames, tenderNo,
		func(target string) {
			if !dates[target] {
				entities[schema.EntityDate] = append(entities[schema.EntityDate], target)
				dates[target] = true
			}
		})

	// HAS_KEYWORD passes through with endpoint coercion only; its pairs never
	// need re-anchoring because keyword edges are rebuilt from the entity list
	// downstream anyway. Any other oracle relation type is dropped here.
	relations[schema.RelHasKeyword] = coercePairs(raw.Relations[string(schema.RelHasKeyword)])

	return ReconciledRecord{
		ChunkID:      c.ID,
		ChunkText:    c.Text,
		Entities:     entities,
		Relations:    relations,
		QualityFlags: flags,
		Record:       c.Record,
	}
}

// qualityFlags inspects the oracle's raw output before any backfill, so
// structured-field anchors cannot mask an empty extraction.
func (r *Reconciler) qualityFlags(chunkID string, raw *RawResult) QualityFlags {
	flags := QualityFlags{
		LowConfidence: []LowConfidenceEntity{},
		UnknownLabels: []string{},
	}

	for _, mentions := range raw.Entities {
		if len(mentions) > 0 {
			flags.HasEntities = true
			break
		}
	}
	for _, pairs := range raw.Relations {
		if len(pairs) > 0 {
			flags.HasRelations = true
			break
		}
	}

	seenUnknown := make(map[string]bool)
	for label, mentions := range raw.Entities {
		if len(mentions) == 0 {
			continue
		}
		for _, m := range mentions {
			if m.Score != nil && *m.Score < r.threshold {
				flags.LowConfidence = append(flags.LowConfidence, LowConfidenceEntity{
					Label: label,
					Text:  m.Text,
					Score: *m.Score,
				})
			}
		}
		if !r.sch.ValidEntityType(label) && !seenUnknown[label] {
			seenUnknown[label] = true
			flags.UnknownLabels = append(flags.UnknownLabels, label)
		}
	}

	if len(flags.LowConfidence) > 0 {
		slog.Warn("extract: low-confidence entities",
			"chunk_id", chunkID, "count", len(flags.LowConfidence))
		for i, item := range flags.LowConfidence {
			if i == 3 {
				break
			}
			slog.Warn("extract: low-confidence entity",
				"label", item.Label, "text", item.Text, "score", scoreString(item.Score))
		}
	}
	if len(flags.UnknownLabels) > 0 {
		slog.Warn("extract: unknown entity labels",
			"chunk_id", chunkID, "labels", flags.UnknownLabels)
	}
	if !flags.HasEntities {
		slog.Warn("extract: no entities extracted", "chunk_id", chunkID)
	}

	return flags
}

// reanchor coerces proposed (source, target) pairs to trimmed string pairs,
// dropping malformed ones, and substitutes the chunk's tender number for any
// source that is not a known Tender entity. onTarget, when set, is invoked
// for every kept target.
//
// The substitution is deliberate: a requirement or deadline fact anchored to
// the wrong span is judged more valuable re-attached to the tender than
// discarded. Substituted pairs are not flagged differently from naturally
// anchored ones.
func (r *Reconciler) reanchor(pairs []RawPair, tenderNames map[string]bool, tenderNo string, onTarget func(string)) [][2]string {
	out := [][2]string{}
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		source := strings.TrimSpace(pair[0].Text)
		target := strings.TrimSpace(pair[1].Text)
		if source == "" || target == "" {
			continue
		}
		if !tenderNames[source] && tenderNo != "" {
			source = tenderNo
		}
		out = append(out, [2]string{source, target})
		if onTarget != nil {
			onTarget(target)
		}
	}
	return out
}

// coercePairs converts raw pairs to trimmed string pairs, dropping any that
// are not exactly two non-empty endpoints.
func coercePairs(pairs []RawPair) [][2]string {
	out := [][2]string{}
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		source := strings.TrimSpace(pair[0].Text)
		target := strings.TrimSpace(pair[1].Text)
		if source == "" || target == "" {
			continue
		}
		out = append(out, [2]string{source, target})
	}
	return out
}

// coerceEntities flattens oracle mentions to trimmed strings, deduplicated
// per label preserving first-seen order. Unknown labels are kept (they are
// flagged, not censored).
func coerceEntities(raw map[string][]Mention) map[schema.EntityType][]string {
	out := make(map[schema.EntityType][]string, len(raw))
	for label, mentions := range raw {
		seen := make(map[string]bool, len(mentions))
		list := make([]string, 0, len(mentions))
		for _, m := range mentions {
			text := strings.TrimSpace(m.Text)
			if text == "" || seen[text] {
				continue
			}
			seen[text] = true
			list = append(list, text)
		}
		out[schema.EntityType(label)] = list
	}
	return out
}

// backfill appends value to the entity list for t unless already present.
func backfill(entities map[schema.EntityType][]string, t schema.EntityType, value string) {
	if value == "" {
		return
	}
	for _, existing := range entities[t] {
		if existing == value {
			return
		}
	}
	entities[t] = append(entities[t], value)
}

// nameSet builds a membership set from an entity list.
func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = true
		}
	}
	return set
}
