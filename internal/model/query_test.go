package model

import (
	"encoding/json"
	"testing"
	"time"
)

var base = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func runDoc(id, user string, distance float64, created time.Time) Document {
	return NewDocument(id, created, map[string]any{
		FieldUserID:   user,
		FieldDistance: distance,
	})
}

func TestQueryApply(t *testing.T) {
	docs := []Document{
		runDoc("r1", "u1", 5, base),
		runDoc("r2", "u2", 10, base.Add(time.Hour)),
		runDoc("r3", "u1", 3, base.Add(2*time.Hour)),
	}

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"no filters keeps order", Query{}, []string{"r1", "r2", "r3"}},
		{"eq", Query{Filters: []Predicate{Where(FieldUserID, OpEq, "u1")}}, []string{"r1", "r3"}},
		{"ne", Query{Filters: []Predicate{Where(FieldUserID, OpNe, "u1")}}, []string{"r2"}},
		{"gt number", Query{Filters: []Predicate{Where(FieldDistance, OpGt, 4)}}, []string{"r1", "r2"}},
		{"lte number", Query{Filters: []Predicate{Where(FieldDistance, OpLte, 5)}}, []string{"r1", "r3"}},
		{"gte createdAt", Query{Filters: []Predicate{Where(FieldCreatedAt, OpGte, base.Add(time.Hour))}}, []string{"r2", "r3"}},
		{"lt createdAt", Query{Filters: []Predicate{Where(FieldCreatedAt, OpLt, base.Add(time.Hour))}}, []string{"r1"}},
		{"id eq", Query{Filters: []Predicate{Where(FieldID, OpEq, "r2")}}, []string{"r2"}},
		{"sort desc", Query{Sort: &Order{Field: FieldCreatedAt, Descending: true}}, []string{"r3", "r2", "r1"}},
		{"sort asc distance", Query{Sort: &Order{Field: FieldDistance}}, []string{"r3", "r1", "r2"}},
		{"limit after sort", Query{Sort: &Order{Field: FieldCreatedAt, Descending: true}, Limit: 2}, []string{"r3", "r2"}},
		{"missing field never matches", Query{Filters: []Predicate{Where("nope", OpEq, "x")}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.q.Apply(docs)
			if len(got) != len(tt.want) {
				t.Fatalf("Apply() returned %d docs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("Apply()[%d].ID = %q, want %q", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestQueryApplyReturnsCopies(t *testing.T) {
	docs := []Document{runDoc("r1", "u1", 5, base)}
	got := Query{}.Apply(docs)
	got[0].Fields[FieldUserID] = "changed"
	if docs[0].Fields[FieldUserID] != "u1" {
		t.Error("Apply() result aliases the input field map")
	}
}

func TestQueryValidate(t *testing.T) {
	if err := (Query{Filters: []Predicate{Where("x", "in", 1)}}).Validate(); err == nil {
		t.Error("Validate() should reject unknown operators")
	}
	if err := (Query{Limit: -1}).Validate(); err == nil {
		t.Error("Validate() should reject negative limits")
	}
	if err := (Query{Filters: []Predicate{Where("x", OpGte, 1)}, Limit: 5}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestCompareMixedNumbers(t *testing.T) {
	c, err := Compare(int64(5), 5.0)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if c != 0 {
		t.Errorf("Compare(int64(5), 5.0) = %d, want 0", c)
	}
	c, err = Compare("2024-01-15T10:30:00Z", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if c != -1 {
		t.Errorf("Compare(string time, later) = %d, want -1", c)
	}
}

func TestDocumentJSONRoundTrip(t *testing.T) {
	d := NewDocument("e1", base, Event{
		Title:           "Weekend long run",
		Participants:    []string{"u1", "u2"},
		MaxParticipants: 20,
	}.Fields())

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got Document
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got.ID != "e1" {
		t.Errorf("ID = %q, want %q", got.ID, "e1")
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}
	ev := EventFromDocument(got)
	if ev.MaxParticipants != 20 {
		t.Errorf("MaxParticipants = %d, want 20", ev.MaxParticipants)
	}
	if len(ev.Participants) != 2 || ev.Participants[1] != "u2" {
		t.Errorf("Participants = %v, want [u1 u2]", ev.Participants)
	}
	if _, ok := got.Fields[FieldID]; ok {
		t.Error("Fields should not carry the id")
	}
}

func TestDocumentMergeSkipsReserved(t *testing.T) {
	d := NewDocument("u1", base, map[string]any{FieldDisplayName: "a"})
	d.Merge(map[string]any{FieldDisplayName: "b", FieldID: "hijack"}, base.Add(time.Minute))
	if d.ID != "u1" {
		t.Errorf("ID = %q, want u1", d.ID)
	}
	if d.Fields[FieldDisplayName] != "b" {
		t.Errorf("displayName = %v, want b", d.Fields[FieldDisplayName])
	}
	if !d.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("UpdatedAt = %v, want %v", d.UpdatedAt, base.Add(time.Minute))
	}
}
