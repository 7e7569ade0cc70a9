package tree

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lazytree/internal/apperr"
)

// Record is the normalized node record exchanged with a DataSource.
//
// Fields are pointers so that a record missing a field can be told apart from
// one carrying the zero value. Children is only populated by filter queries.
type Record struct {
	ID         *NodeID  `json:"id"`
	Label      *string  `json:"node"`
	ParentID   *NodeID  `json:"parent"`
	ChildCount *int     `json:"childrenLength"`
	Children   []Record `json:"children,omitempty"`
}

// NewRecord builds a complete record. A zero parent produces a root record.
func NewRecord(id NodeID, label string, parentID NodeID, childCount int) Record {
	r := Record{
		ID:         &id,
		Label:      &label,
		ChildCount: &childCount,
	}
	if parentID != NoID {
		r.ParentID = &parentID
	}
	return r
}

// WithChildren returns a copy of r embedding children, as filter results do.
func (r Record) WithChildren(children ...Record) Record {
	r.Children = children
	return r
}

// Validate checks the record shape.
func (r Record) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, validation.Min(NodeID(1))),
		validation.Field(&r.Label, validation.NotNil),
		validation.Field(&r.ChildCount, validation.NotNil, validation.Min(0)),
		validation.Field(&r.ParentID, validation.By(func(v any) error {
			p, _ := v.(*NodeID)
			if p == nil || r.ID == nil {
				return nil
			}
			if *p == *r.ID {
				return errors.New("must not reference the node itself")
			}
			if *p < NoID {
				return errors.New("must be no less than 0")
			}
			return nil
		})),
	)
}

// MappingError reports the record that failed conversion into a Node.
type MappingError struct {
	Index int
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%s: record %d: %v", apperr.ErrMapping, e.Index, e.Err)
}

// Unwrap exposes both ErrMapping and the underlying validation error.
func (e *MappingError) Unwrap() []error {
	return []error{apperr.ErrMapping, e.Err}
}

// MapRecords converts records into nodes, failing on the first malformed
// record. Embedded children are mapped recursively and count as loaded.
func MapRecords(records []Record) ([]*Node, error) {
	nodes := make([]*Node, 0, len(records))
	for i, r := range records {
		n, err := mapRecord(r)
		if err != nil {
			return nil, &MappingError{Index: i, Err: err}
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// MapRecord converts a single record.
func MapRecord(r Record) (*Node, error) {
	n, err := mapRecord(r)
	if err != nil {
		return nil, &MappingError{Err: err}
	}
	return n, nil
}

func mapRecord(r Record) (*Node, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	n := &Node{
		ID:    *r.ID,
		Label: *r.Label,
	}
	if r.ParentID != nil {
		n.ParentID = *r.ParentID
	}
	if len(r.Children) > 0 {
		children, err := MapRecords(r.Children)
		if err != nil {
			return nil, fmt.Errorf("children: %w", err)
		}
		n.setChildren(children)
		return n, nil
	}
	n.HasMoreChildren = *r.ChildCount > 0
	return n, nil
}
