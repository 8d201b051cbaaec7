package selection

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsp-sniper/client"
)

func hours(h float64) *float64 { return &h }

func lesson(id, typeID int, stream, group string) client.Lesson {
	return client.Lesson{
		ID:              client.FlexInt(id),
		Stream:          client.FlexString(stream),
		Group:           client.FlexString(group),
		LessonTypeID:    client.FlexInt(typeID),
		Teacher:         "Smith",
		Room:            "401",
		WeekDay:         "Mon",
		BeginTime:       hours(9),
		EndTime:         hours(10.5),
		StudentCount:    12,
		StudentCountMax: 30,
	}
}

func sampleDoc() *client.ScheduleDocument {
	return &client.ScheduleDocument{
		Subject: client.SemesterSubject{ID: 5, Name: "Algorithms", Code: "CSE201", Formula: "1/1/0"},
		Schedules: []client.Lesson{
			lesson(101, LessonLecture, "10", "1"),
			lesson(102, LessonLab, "10", "1"),
			lesson(103, LessonLab, "10", "2"),
			lesson(201, LessonLecture, "2", "1"),
			lesson(202, LessonLab, "2", "1"),
		},
	}
}

func TestParseFormula(t *testing.T) {
	c, ok := ParseFormula("2/1/1")
	require.True(t, ok)
	assert.Equal(t, Counts{Lectures: 2, Labs: 1, Practices: 1}, c)

	for _, bad := range []string{"", "2/1", "a/b/c", "1/2/3/4"} {
		_, ok := ParseFormula(bad)
		assert.False(t, ok, bad)
	}
}

func TestLessonHelpers(t *testing.T) {
	assert.Equal(t, "Lecture", LessonTypeName(1))
	assert.Equal(t, "Lab", LessonTypeName(2))
	assert.Equal(t, "Practice", LessonTypeName(3))
	assert.Equal(t, "N/A", LessonTypeName(9))

	assert.Equal(t, "B2", LessonCode(lesson(1, LessonLab, "1", "2")))
	assert.Equal(t, "P1", LessonCode(lesson(1, LessonPractice, "1", "1")))

	assert.Equal(t, "14:30", FormatHour(hours(14.5)))
	assert.Equal(t, "09:00", FormatHour(hours(9)))
	assert.Equal(t, "N/A", FormatHour(nil))
}

func TestValidate(t *testing.T) {
	lec := lesson(1, LessonLecture, "1", "1")
	lab := lesson(2, LessonLab, "1", "1")

	assert.NoError(t, Validate([]client.Lesson{lec, lab}, "1/1/0"))
	assert.NoError(t, Validate([]client.Lesson{lec}, "unknown"), "unparsable formula skips validation")

	err := Validate([]client.Lesson{lec}, "1/1/0")
	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, Counts{Lectures: 1}, mismatch.Selected)
	assert.Contains(t, err.Error(), "Needed: L:1, Lab:1, Pr:0")
}

func TestGroupStreams(t *testing.T) {
	lessons := []client.Lesson{
		lesson(1, 1, "10", "1"),
		lesson(2, 1, "B", "1"),
		lesson(3, 1, "2", "1"),
		lesson(4, 2, "10", "1"),
		lesson(5, 1, "", "1"),
	}
	lessons[2].StudentRegistered = true

	streams := GroupStreams(lessons)

	ids := make([]string, 0, len(streams))
	for _, s := range streams {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"2", "10", "B", "N/A"}, ids)
	assert.True(t, streams[0].Registered())
	assert.False(t, streams[1].Registered())
	require.Len(t, streams[1].Lessons, 2)
	assert.Equal(t, client.FlexInt(1), streams[1].Lessons[0].ID)
}

func TestParseCodesAndResolve(t *testing.T) {
	codes := ParseCodes(" l1  b2 L1 ")
	assert.Equal(t, []string{"L1", "B2"}, codes)

	s := GroupStreams(sampleDoc().Schedules)[1]
	got, err := Resolve(codes, s.CodeMap())
	require.NoError(t, err)
	assert.Equal(t, []int{101, 103}, LessonIDs(got))

	_, err = Resolve([]string{"P9"}, s.CodeMap())
	assert.Error(t, err)
}

func TestRenderStream(t *testing.T) {
	out := RenderStream(GroupStreams(sampleDoc().Schedules)[0])

	assert.Contains(t, out, "Stream 2")
	assert.Contains(t, out, "Code")
	assert.Contains(t, out, "L1")
	assert.Contains(t, out, "09:00-10:30")
	assert.Contains(t, out, "12/30")
}

func TestPrompter_SelectLessons(t *testing.T) {
	// Given a user who picks a stream, types an unknown code, then an
	// incomplete choice, retries and finally picks a valid one
	input := strings.Join([]string{"7", "10", "x9", "L1", "maybe", "y", "l1 b2"}, "\n") + "\n"
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader(input), &out)

	// When the subject is configured
	ids, err := p.SelectLessons(sampleDoc())

	// Then the valid selection is returned sorted
	require.NoError(t, err)
	assert.Equal(t, []int{101, 103}, ids)
	text := out.String()
	assert.Contains(t, text, "Configuring: Algorithms (CSE201)")
	assert.Contains(t, text, "Please select one of the available options")
	assert.Contains(t, text, "Invalid code entered.")
	assert.Contains(t, text, "Validation Error:")
	assert.Contains(t, text, "Please enter Y or N")
	assert.Contains(t, text, "Selection Validated.")
}

func TestPrompter_AbortSubject(t *testing.T) {
	p := NewPrompter(strings.NewReader("2\nL1\nn\n"), &bytes.Buffer{})

	ids, err := p.SelectLessons(sampleDoc())

	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestPrompter_EmptySchedule(t *testing.T) {
	var out bytes.Buffer
	ids, err := NewPrompter(strings.NewReader(""), &out).SelectLessons(&client.ScheduleDocument{})

	require.NoError(t, err)
	assert.Nil(t, ids)
	assert.Contains(t, out.String(), "No schedule available.")
}

func TestPrompter_EOF(t *testing.T) {
	_, err := NewPrompter(strings.NewReader("2\n"), &bytes.Buffer{}).SelectLessons(sampleDoc())
	assert.ErrorIs(t, err, ErrAborted)

	ok, err := NewPrompter(strings.NewReader("yes"), &bytes.Buffer{}).Confirm("Go?")
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := NewPrompter(strings.NewReader("\n"), &bytes.Buffer{}).AskDefault("Time", "10:00:00")
	require.NoError(t, err)
	assert.Equal(t, "10:00:00", v)
}

type fakeFetcher map[int]*client.ScheduleDocument

func (f fakeFetcher) FetchSchedule(_ context.Context, id int) (*client.ScheduleDocument, error) {
	doc, ok := f[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return doc, nil
}

func TestBuildPlan(t *testing.T) {
	fetcher := fakeFetcher{
		1: sampleDoc(),
		3: {Subject: client.SemesterSubject{Name: "Empty"}},
		4: sampleDoc(),
	}
	// subject 1: stream 2, L1 B1. subject 2: fetch fails. subject 3: empty.
	// subject 4: abort after a mismatch.
	input := "2\nL1 B1\n2\nL1\nn\n"
	p := NewPrompter(strings.NewReader(input), &bytes.Buffer{})

	got, err := BuildPlan(context.Background(), fetcher, p, []int{1, 2, 3, 4}, zerolog.Nop())

	require.NoError(t, err)
	assert.Equal(t, []int{1}, got.SubjectIDs())
	lessons, _ := got.Get(1)
	assert.Equal(t, []int{201, 202}, lessons)
}
