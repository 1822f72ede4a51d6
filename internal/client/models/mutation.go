package models

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/teamsync/internal/models"
)

// Mutation is a change to one row: a partial update or a delete.
type Mutation struct {
	Kind  string           `json:"kind"`
	Patch *models.RowPatch `json:"patch,omitempty"`
}

func UpdateMutation(p models.RowPatch) Mutation {
	return Mutation{Kind: DraftUpdate, Patch: &p}
}

func DeleteMutation() Mutation {
	return Mutation{Kind: DraftDelete}
}

// Supersede returns the mutation that replaces prev when m is queued after
// it. Two updates fold into one so earlier field edits are not lost; any
// other combination keeps the newer mutation.
func (m Mutation) Supersede(prev Mutation) Mutation {
	if m.Kind != DraftUpdate || prev.Kind != DraftUpdate || prev.Patch == nil || m.Patch == nil {
		return m
	}
	merged := models.RowPatch{Fields: make(map[string]any, len(prev.Patch.Fields)+len(m.Patch.Fields))}
	for k, v := range prev.Patch.Fields {
		merged.Fields[k] = v
	}
	for k, v := range m.Patch.Fields {
		merged.Fields[k] = v
	}
	merged.Date = prev.Patch.Date
	if m.Patch.Date != nil {
		merged.Date = m.Patch.Date
	}
	return UpdateMutation(merged)
}

// DecodeMutation reads the mutation stored in a draft.
func DecodeMutation(d Draft) (Mutation, error) {
	m := Mutation{Kind: d.Kind}
	if d.Kind == DraftDelete {
		return m, nil
	}
	if d.Kind != DraftUpdate {
		return Mutation{}, fmt.Errorf("unknown draft kind %q", d.Kind)
	}
	var p models.RowPatch
	if err := json.Unmarshal(d.Payload, &p); err != nil {
		return Mutation{}, fmt.Errorf("decode draft %s: %w", d.ID, err)
	}
	m.Patch = &p
	return m, nil
}

// Payload is the stored form of the mutation.
func (m Mutation) Payload() ([]byte, error) {
	if m.Patch == nil {
		return nil, nil
	}
	return json.Marshal(m.Patch)
}
