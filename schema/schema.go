// Package schema defines the closed set of entity and relation types for the
// tender knowledge graph, with the endpoint pairing each relation requires.
// A Schema is validated once at construction and never mutated, so a single
// value can be shared across concurrent workers without locking.
package schema

import "fmt"

// Version tracks the extraction schema revision.
const Version = "1.0.0"

// EntityType is a node label in the knowledge graph.
type EntityType string

const (
	EntityTender      EntityType = "Tender"
	EntityAgency      EntityType = "Agency"
	EntitySupplier    EntityType = "Supplier"
	EntityCategory    EntityType = "Category"
	EntityRequirement EntityType = "Requirement"
	EntityKeyword     EntityType = "Keyword"
	EntityDate        EntityType = "Date"
)

// RelationType is an edge type in the knowledge graph.
type RelationType string

const (
	RelPublishedBy    RelationType = "PUBLISHED_BY"
	RelAwardedTo      RelationType = "AWARDED_TO"
	RelInCategory     RelationType = "IN_CATEGORY"
	RelHasRequirement RelationType = "HAS_REQUIREMENT"
	RelHasKeyword     RelationType = "HAS_KEYWORD"
	RelHasDeadline    RelationType = "HAS_DEADLINE"

	// RelMentions is the chunk -> entity traceability edge created at graph
	// import time; it is never proposed by the extraction oracle.
	RelMentions RelationType = "MENTIONS"
)

// Definition pins a relation type to its required source and target entity
// types. Required marks relations the structured source fields always supply.
type Definition struct {
	Relation RelationType `json:"relation_type"`
	Source   EntityType   `json:"source_entity"`
	Target   EntityType   `json:"target_entity"`
	Required bool         `json:"required"`
}

// entityDescriptions are the label prompts handed to the extraction oracle.
var entityDescriptions = map[EntityType]string{
	EntityTender:      "Government tender reference numbers, procurement IDs, or contract identifiers",
	EntityAgency:      "Government agencies, ministries, statutory boards, or public sector organizations",
	EntitySupplier:    "Companies, vendors, contractors, or service providers awarded tenders",
	EntityCategory:    "Product categories, service types, or procurement classifications",
	EntityRequirement: "Technical requirements, specifications, qualifications, or conditions mentioned in tenders",
	EntityKeyword:     "Key terms, technologies, or important concepts related to the tender",
	EntityDate:        "Dates, deadlines, or time periods mentioned in the tender",
}

// relationDescriptions are the relation prompts handed to the extraction oracle.
// MENTIONS is deliberately absent: it is synthesized at import, not extracted.
var relationDescriptions = map[RelationType]string{
	RelPublishedBy:    "A tender is published or issued by a government agency",
	RelAwardedTo:      "A tender is awarded to a supplier or contractor",
	RelInCategory:     "A tender belongs to a specific category or procurement type",
	RelHasRequirement: "A tender specifies or mentions a requirement",
	RelHasKeyword:     "A tender is associated with or mentions a key term or technology",
	RelHasDeadline:    "A tender has a deadline, closing date, or time period",
}

// Schema is the validated, read-only registry of entity and relation types.
type Schema struct {
	entityTypes   []EntityType
	relationTypes []RelationType
	definitions   []Definition
	defsByType    map[RelationType]Definition
}

// New builds and validates the extraction schema. It fails fast on duplicate
// type names or definitions referencing unregistered types.
func New() (*Schema, error) {
	s := &Schema{
		entityTypes: []EntityType{
			EntityTender, EntityAgency, EntitySupplier, EntityCategory,
			EntityRequirement, EntityKeyword, EntityDate,
		},
		relationTypes: []RelationType{
			RelPublishedBy, RelAwardedTo, RelInCategory,
			RelHasRequirement, RelHasKeyword, RelHasDeadline, RelMentions,
		},
		definitions: []Definition{
			{Relation: RelPublishedBy, Source: EntityTender, Target: EntityAgency, Required: true},
			{Relation: RelAwardedTo, Source: EntityTender, Target: EntitySupplier, Required: true},
			{Relation: RelInCategory, Source: EntityTender, Target: EntityCategory},
			{Relation: RelHasRequirement, Source: EntityTender, Target: EntityRequirement},
			{Relation: RelHasKeyword, Source: EntityTender, Target: EntityKeyword},
			{Relation: RelHasDeadline, Source: EntityTender, Target: EntityDate},
		},
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	s.defsByType = make(map[RelationType]Definition, len(s.definitions))
	for _, d := range s.definitions {
		s.defsByType[d.Relation] = d
	}
	return s, nil
}

// MustNew is New but panics on validation failure. The schema is static, so a
// failure here is a programming error, not a runtime condition.
func MustNew() *Schema {
	s, err := New()
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) validate() error {
	seenE := make(map[EntityType]bool, len(s.entityTypes))
	for _, e := range s.entityTypes {
		if seenE[e] {
			return fmt.Errorf("schema: duplicate entity type %q", e)
		}
		seenE[e] = true
	}

	seenR := make(map[RelationType]bool, len(s.relationTypes))
	for _, r := range s.relationTypes {
		if seenR[r] {
			return fmt.Errorf("schema: duplicate relation type %q", r)
		}
		seenR[r] = true
	}

	for _, d := range s.definitions {
		if !seenR[d.Relation] {
			return fmt.Errorf("schema: definition references unknown relation type %q", d.Relation)
		}
		if !seenE[d.Source] {
			return fmt.Errorf("schema: relation %q references unknown source entity type %q", d.Relation, d.Source)
		}
		if !seenE[d.Target] {
			return fmt.Errorf("schema: relation %q references unknown target entity type %q", d.Relation, d.Target)
		}
	}
	return nil
}

// EntityTypes returns all entity types in declaration order.
func (s *Schema) EntityTypes() []EntityType {
	out := make([]EntityType, len(s.entityTypes))
	copy(out, s.entityTypes)
	return out
}

// RelationTypes returns all relation types in declaration order.
func (s *Schema) RelationTypes() []RelationType {
	out := make([]RelationType, len(s.relationTypes))
	copy(out, s.relationTypes)
	return out
}

// Definitions returns the relation definitions in declaration order.
func (s *Schema) Definitions() []Definition {
	out := make([]Definition, len(s.definitions))
	copy(out, s.definitions)
	return out
}

// RelationDefinition looks up the definition for a relation type.
func (s *Schema) RelationDefinition(rt RelationType) (Definition, bool) {
	d, ok := s.defsByType[rt]
	return d, ok
}

// ValidEntityType reports whether the given label is a registered entity type.
func (s *Schema) ValidEntityType(label string) bool {
	_, ok := entityDescriptions[EntityType(label)]
	return ok
}

// ValidRelationType reports whether the given label is a registered relation type.
func (s *Schema) ValidRelationType(label string) bool {
	for _, r := range s.relationTypes {
		if string(r) == label {
			return true
		}
	}
	return false
}

// EntityDescriptions returns the label -> description map for the oracle prompt.
func (s *Schema) EntityDescriptions() map[string]string {
	out := make(map[string]string, len(entityDescriptions))
	for k, v := range entityDescriptions {
		out[string(k)] = v
	}
	return out
}

// RelationDescriptions returns the relation -> description map for the oracle
// prompt. Only extractable relations are included.
func (s *Schema) RelationDescriptions() map[string]string {
	out := make(map[string]string, len(relationDescriptions))
	for k, v := range relationDescriptions {
		out[string(k)] = v
	}
	return out
}
