package schema

import "testing"

func TestNewValidates(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := len(s.EntityTypes()); got != 7 {
		t.Errorf("entity type count: got %d, want 7", got)
	}
	if got := len(s.RelationTypes()); got != 7 {
		t.Errorf("relation type count: got %d, want 7", got)
	}
	if got := len(s.Definitions()); got != 6 {
		t.Errorf("definition count: got %d, want 6", got)
	}
}

func TestRelationDefinition(t *testing.T) {
	s := MustNew()

	tests := []struct {
		relation   RelationType
		wantSource EntityType
		wantTarget EntityType
		wantReq    bool
	}{
		{RelPublishedBy, EntityTender, EntityAgency, true},
		{RelAwardedTo, EntityTender, EntitySupplier, true},
		{RelInCategory, EntityTender, EntityCategory, false},
		{RelHasRequirement, EntityTender, EntityRequirement, false},
		{RelHasKeyword, EntityTender, EntityKeyword, false},
		{RelHasDeadline, EntityTender, EntityDate, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.relation), func(t *testing.T) {
			d, ok := s.RelationDefinition(tt.relation)
			if !ok {
				t.Fatalf("RelationDefinition(%s): not found", tt.relation)
			}
			if d.Source != tt.wantSource {
				t.Errorf("source: got %s, want %s", d.Source, tt.wantSource)
			}
			if d.Target != tt.wantTarget {
				t.Errorf("target: got %s, want %s", d.Target, tt.wantTarget)
			}
			if d.Required != tt.wantReq {
				t.Errorf("required: got %v, want %v", d.Required, tt.wantReq)
			}
		})
	}

	if _, ok := s.RelationDefinition(RelMentions); ok {
		t.Error("MENTIONS should have no extraction definition")
	}
}

func TestValidTypeChecks(t *testing.T) {
	s := MustNew()

	for _, label := range []string{"Tender", "Agency", "Supplier", "Category", "Requirement", "Keyword", "Date"} {
		if !s.ValidEntityType(label) {
			t.Errorf("ValidEntityType(%q) = false, want true", label)
		}
	}
	if s.ValidEntityType("Gadget") {
		t.Error("ValidEntityType(Gadget) = true, want false")
	}

	if !s.ValidRelationType("MENTIONS") {
		t.Error("ValidRelationType(MENTIONS) = false, want true")
	}
	if s.ValidRelationType("OWNS") {
		t.Error("ValidRelationType(OWNS) = true, want false")
	}
}

func TestDescriptionsCoverExtractableTypes(t *testing.T) {
	s := MustNew()

	ed := s.EntityDescriptions()
	for _, e := range s.EntityTypes() {
		if ed[string(e)] == "" {
			t.Errorf("missing entity description for %s", e)
		}
	}

	rd := s.RelationDescriptions()
	if _, ok := rd[string(RelMentions)]; ok {
		t.Error("MENTIONS must not be offered to the oracle")
	}
	for _, d := range s.Definitions() {
		if rd[string(d.Relation)] == "" {
			t.Errorf("missing relation description for %s", d.Relation)
		}
	}
}
