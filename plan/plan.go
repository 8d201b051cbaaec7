// Package plan holds the registration plan: the lesson sections chosen for each
// subject, kept in the order the subjects were added.
package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Entry is one subject of the plan with its chosen lesson IDs.
type Entry struct {
	SubjectID int   `json:"subject_id"`
	LessonIDs []int `json:"lesson_ids"`
}

// Plan maps subject IDs to lesson IDs and remembers insertion order.
// The zero value is an empty plan ready to use.
type Plan struct {
	entries []Entry
	index   map[int]int
}

// New builds a plan from entries. A repeated subject keeps its first position
// and its last lesson list.
func New(entries ...Entry) *Plan {
	p := &Plan{}
	for _, e := range entries {
		p.Set(e.SubjectID, e.LessonIDs)
	}
	return p
}

// Set stores the lessons for a subject. A new subject is appended; an existing
// one keeps its position.
func (p *Plan) Set(subjectID int, lessonIDs []int) {
	if p.index == nil {
		p.index = make(map[int]int)
	}
	lessons := slices.Clone(lessonIDs)
	if lessons == nil {
		lessons = []int{}
	}
	if i, ok := p.index[subjectID]; ok {
		p.entries[i].LessonIDs = lessons
		return
	}
	p.index[subjectID] = len(p.entries)
	p.entries = append(p.entries, Entry{SubjectID: subjectID, LessonIDs: lessons})
}

// Get returns a copy of a subject's lessons.
func (p *Plan) Get(subjectID int) ([]int, bool) {
	if p == nil {
		return nil, false
	}
	i, ok := p.index[subjectID]
	if !ok {
		return nil, false
	}
	return slices.Clone(p.entries[i].LessonIDs), true
}

// Has reports whether the subject is planned.
func (p *Plan) Has(subjectID int) bool {
	if p == nil {
		return false
	}
	_, ok := p.index[subjectID]
	return ok
}

// Len returns the number of subjects.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Entries returns a deep copy of the entries in insertion order.
func (p *Plan) Entries() []Entry {
	if p == nil {
		return nil
	}
	out := make([]Entry, len(p.entries))
	for i, e := range p.entries {
		out[i] = Entry{SubjectID: e.SubjectID, LessonIDs: slices.Clone(e.LessonIDs)}
	}
	return out
}

// SubjectIDs returns the planned subject IDs in insertion order.
func (p *Plan) SubjectIDs() []int {
	if p == nil {
		return nil
	}
	ids := make([]int, len(p.entries))
	for i, e := range p.entries {
		ids[i] = e.SubjectID
	}
	return ids
}

// Filter keeps only the subjects listed in available. It returns the kept plan
// and the dropped subject IDs, both in plan order. The receiver is not modified.
func (p *Plan) Filter(available []int) (*Plan, []int) {
	allowed := make(map[int]struct{}, len(available))
	for _, id := range available {
		allowed[id] = struct{}{}
	}

	kept := &Plan{}
	var dropped []int
	for _, e := range p.Entries() {
		if _, ok := allowed[e.SubjectID]; ok {
			kept.Set(e.SubjectID, e.LessonIDs)
		} else {
			dropped = append(dropped, e.SubjectID)
		}
	}
	return kept, dropped
}

// MarshalJSON writes the plan as an object keyed by subject ID, in insertion
// order: {"101": [5, 7], "102": [9]}.
func (p *Plan) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p.Entries() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(e.SubjectID)))
		buf.WriteByte(':')
		lessons, err := json.Marshal(e.LessonIDs)
		if err != nil {
			return nil, err
		}
		buf.Write(lessons)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form written by MarshalJSON. Keys are coerced
// to integers and the document order is kept.
func (p *Plan) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	if tok == nil {
		*p = Plan{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("read plan: expected object, got %v", tok)
	}

	fresh := Plan{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read plan key: %w", err)
		}
		key, _ := keyTok.(string)
		subjectID, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("read plan: subject id %q is not an integer", key)
		}

		var lessons []int
		if err := dec.Decode(&lessons); err != nil {
			return fmt.Errorf("read plan: lessons of subject %d: %w", subjectID, err)
		}
		fresh.Set(subjectID, lessons)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read plan: %w", err)
	}

	*p = fresh
	return nil
}
