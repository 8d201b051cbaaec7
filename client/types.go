package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexInt decodes integers that the API sometimes sends as strings or floats.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = FlexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flexint: %q is not a number", s)
	}
	*f = FlexInt(int(v))
	return nil
}

// FlexString decodes values that may be strings, numbers or null.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	default:
		*f = FlexString(b)
	}
	return nil
}

func (f FlexString) String() string { return string(f) }

// ScheduleDocument is the schedule of one subject as returned by the
// registration endpoint.
type ScheduleDocument struct {
	Subject   SemesterSubject `json:"SEMESTER_SUBJECT"`
	Schedules []Lesson        `json:"SCHEDULES"`
}

// SemesterSubject describes the subject a schedule belongs to.
type SemesterSubject struct {
	ID             FlexInt    `json:"id"`
	Name           FlexString `json:"name"`
	Code           FlexString `json:"code"`
	DisciplineName FlexString `json:"disciplineName"`
	DisciplineCode FlexString `json:"disciplineCode"`
	Formula        FlexString `json:"formula"`
}

// DisplayName returns the best available subject name.
func (s SemesterSubject) DisplayName() string {
	if s.Name != "" {
		return s.Name.String()
	}
	if s.DisciplineName != "" {
		return s.DisciplineName.String()
	}
	return "Unknown Subject"
}

// DisplayCode returns the best available subject code.
func (s SemesterSubject) DisplayCode() string {
	if s.Code != "" {
		return s.Code.String()
	}
	if s.DisciplineCode != "" {
		return s.DisciplineCode.String()
	}
	if s.ID != 0 {
		return strconv.Itoa(int(s.ID))
	}
	return ""
}

// Lesson is a single scheduled section.
type Lesson struct {
	ID                FlexInt    `json:"id"`
	Stream            FlexString `json:"stream"`
	Group             FlexString `json:"group"`
	LessonTypeID      FlexInt    `json:"lessonTypeId"`
	Teacher           FlexString `json:"teacher"`
	Room              FlexString `json:"room"`
	WeekDay           FlexString `json:"weekDay"`
	BeginTime         *float64   `json:"beginTime"`
	EndTime           *float64   `json:"endTime"`
	StudentCount      FlexInt    `json:"studentCount"`
	StudentCountMax   FlexInt    `json:"studentCountMax"`
	StudentRegistered bool       `json:"studentRegistered"`
}

type accrualsResponse struct {
	Accruals []struct {
		ID FlexInt `json:"id"`
	} `json:"ACCRUALS"`
}

type loginResponse struct {
	ID FlexInt `json:"id"`
}
