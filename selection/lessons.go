// Package selection turns a subject's schedule into a chosen set of lesson IDs:
// it groups lessons into streams, validates a choice against the subject's
// formula and walks the user through the choice on a terminal.
package selection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"wsp-sniper/client"
)

// Lesson type IDs used by the schedule API.
const (
	LessonLecture  = 1
	LessonLab      = 2
	LessonPractice = 3
)

// LessonTypeName returns the display name of a lesson type.
func LessonTypeName(typeID int) string {
	switch typeID {
	case LessonLecture:
		return "Lecture"
	case LessonLab:
		return "Lab"
	case LessonPractice:
		return "Practice"
	default:
		return "N/A"
	}
}

// LessonShortCode returns the one-letter prefix of selection codes.
func LessonShortCode(typeID int) string {
	switch typeID {
	case LessonLecture:
		return "L"
	case LessonLab:
		return "B"
	case LessonPractice:
		return "P"
	default:
		return ""
	}
}

// LessonCode is the code a user types to pick a lesson, e.g. "L1" or "B2".
func LessonCode(l client.Lesson) string {
	return LessonShortCode(int(l.LessonTypeID)) + strings.ToUpper(l.Group.String())
}

// FormatHour renders fractional hours (14.5) as "14:30".
func FormatHour(hours *float64) string {
	if hours == nil {
		return "N/A"
	}
	h := int(*hours)
	m := int((*hours - float64(h)) * 60)
	return fmt.Sprintf("%02d:%02d", h, m)
}

// Counts is the number of lectures, labs and practices.
type Counts struct {
	Lectures  int
	Labs      int
	Practices int
}

func (c Counts) String() string {
	return fmt.Sprintf("L:%d, Lab:%d, Pr:%d", c.Lectures, c.Labs, c.Practices)
}

// ParseFormula parses "L/Lab/Pr" such as "2/1/1". ok is false when the formula
// is missing or malformed, in which case selections are not validated.
func ParseFormula(formula string) (c Counts, ok bool) {
	parts := strings.Split(strings.TrimSpace(formula), "/")
	if len(parts) != 3 {
		return Counts{}, false
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Counts{}, false
		}
		n[i] = v
	}
	return Counts{Lectures: n[0], Labs: n[1], Practices: n[2]}, true
}

// CountLessons tallies lessons by type. Unknown types are ignored.
func CountLessons(lessons []client.Lesson) Counts {
	var c Counts
	for _, l := range lessons {
		switch int(l.LessonTypeID) {
		case LessonLecture:
			c.Lectures++
		case LessonLab:
			c.Labs++
		case LessonPractice:
			c.Practices++
		}
	}
	return c
}

// MismatchError reports a selection that does not satisfy the formula.
type MismatchError struct {
	Required Counts
	Selected Counts
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("requirement mismatch. Needed: %s. Selected: %s.", e.Required, e.Selected)
}

// Validate checks the selected lessons against the subject formula. A formula
// that cannot be parsed accepts any selection.
func Validate(selected []client.Lesson, formula string) error {
	required, ok := ParseFormula(formula)
	if !ok {
		return nil
	}
	if got := CountLessons(selected); got != required {
		return &MismatchError{Required: required, Selected: got}
	}
	return nil
}

// Stream is a set of alternative lessons offered together.
type Stream struct {
	ID      string
	Lessons []client.Lesson
}

// Registered reports whether the student is already in any lesson of the stream.
func (s Stream) Registered() bool {
	for _, l := range s.Lessons {
		if l.StudentRegistered {
			return true
		}
	}
	return false
}

// CodeMap indexes the stream's lessons by selection code.
func (s Stream) CodeMap() map[string]client.Lesson {
	m := make(map[string]client.Lesson, len(s.Lessons))
	for _, l := range s.Lessons {
		m[LessonCode(l)] = l
	}
	return m
}

// GroupStreams groups lessons by stream, keeping lesson order within a stream.
// Numeric stream IDs sort numerically and before the others.
func GroupStreams(lessons []client.Lesson) []Stream {
	index := map[string]int{}
	var streams []Stream
	for _, l := range lessons {
		id := l.Stream.String()
		if id == "" {
			id = "N/A"
		}
		i, ok := index[id]
		if !ok {
			i = len(streams)
			index[id] = i
			streams = append(streams, Stream{ID: id})
		}
		streams[i].Lessons = append(streams[i].Lessons, l)
	}

	sort.SliceStable(streams, func(i, j int) bool {
		a, aErr := strconv.Atoi(streams[i].ID)
		b, bErr := strconv.Atoi(streams[j].ID)
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return streams[i].ID < streams[j].ID
		}
	})
	return streams
}

// ParseCodes splits user input into distinct upper-case codes.
func ParseCodes(input string) []string {
	seen := map[string]bool{}
	var codes []string
	for _, f := range strings.Fields(input) {
		c := strings.ToUpper(f)
		if !seen[c] {
			seen[c] = true
			codes = append(codes, c)
		}
	}
	return codes
}

// Resolve maps codes to lessons of a stream. It fails on the first unknown code.
func Resolve(codes []string, codeMap map[string]client.Lesson) ([]client.Lesson, error) {
	lessons := make([]client.Lesson, 0, len(codes))
	for _, c := range codes {
		l, ok := codeMap[c]
		if !ok {
			return nil, fmt.Errorf("invalid code %q", c)
		}
		lessons = append(lessons, l)
	}
	return lessons, nil
}

// LessonIDs returns the sorted IDs of lessons.
func LessonIDs(lessons []client.Lesson) []int {
	ids := make([]int, 0, len(lessons))
	for _, l := range lessons {
		ids = append(ids, int(l.ID))
	}
	sort.Ints(ids)
	return ids
}
