package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Group is a named set of jobs. The id is assigned by the backend; names are
// not required to be unique.
type Group struct {
	ID   string `json:"group_id"`
	Name string `json:"group_name"`
}

// UnmarshalJSON accepts both the object form and the [id, name] tuple the
// backend's list endpoint returns.
func (g *Group) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var tuple []json.RawMessage
		if err := json.Unmarshal(data, &tuple); err != nil {
			return err
		}
		if len(tuple) != 2 {
			return fmt.Errorf("group tuple must have 2 elements, got %d", len(tuple))
		}
		id, err := decodeID(tuple[0])
		if err != nil {
			return fmt.Errorf("group id: %w", err)
		}
		var name string
		if err := json.Unmarshal(tuple[1], &name); err != nil {
			return fmt.Errorf("group name: %w", err)
		}
		*g = Group{ID: id, Name: name}
		return nil
	}

	var wire struct {
		GroupID   json.RawMessage `json:"group_id"`
		ID        json.RawMessage `json:"id"`
		GroupName string          `json:"group_name"`
		Name      string          `json:"name"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	id, err := firstID(wire.GroupID, wire.ID)
	if err != nil {
		return fmt.Errorf("group id: %w", err)
	}
	name := wire.GroupName
	if name == "" {
		name = wire.Name
	}
	*g = Group{ID: id, Name: name}
	return nil
}
