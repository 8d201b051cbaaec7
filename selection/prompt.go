package selection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"wsp-sniper/client"
	"wsp-sniper/plan"
)

// ErrAborted is returned when input ends before a question is answered.
var ErrAborted = errors.New("selection aborted: no more input")

// Prompter asks line-based questions on a terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Ask asks until the answer is one of choices. With no choices any non-empty
// answer is accepted.
func (p *Prompter) Ask(question string, choices []string) (string, error) {
	for {
		if len(choices) > 0 {
			fmt.Fprintf(p.out, "%s [%s]: ", question, strings.Join(choices, "/"))
		} else {
			fmt.Fprintf(p.out, "%s: ", question)
		}
		answer, err := p.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			continue
		}
		if len(choices) == 0 || slices.Contains(choices, answer) {
			return answer, nil
		}
		fmt.Fprintln(p.out, color.RedString("Please select one of the available options"))
	}
}

// AskDefault asks a free-form question and returns def on an empty answer.
func (p *Prompter) AskDefault(question, def string) (string, error) {
	fmt.Fprintf(p.out, "%s (%s): ", question, def)
	answer, err := p.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Confirm asks a yes/no question until it gets y, yes, n or no.
func (p *Prompter) Confirm(question string) (bool, error) {
	for {
		fmt.Fprintf(p.out, "%s [y/n]: ", question)
		answer, err := p.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, color.RedString("Please enter Y or N"))
	}
}

// SelectLessons shows a subject's streams and asks for a stream and lesson
// codes until the choice satisfies the formula. It returns nil when the
// schedule is empty or the user gives up on the subject.
func (p *Prompter) SelectLessons(doc *client.ScheduleDocument) ([]int, error) {
	fmt.Fprintln(p.out, "\n"+RenderSubject(doc.Subject))

	if len(doc.Schedules) == 0 {
		fmt.Fprintln(p.out, color.RedString("No schedule available."))
		return nil, nil
	}

	streams := GroupStreams(doc.Schedules)
	ids := make([]string, 0, len(streams))
	byID := make(map[string]Stream, len(streams))
	for _, s := range streams {
		fmt.Fprintln(p.out, "\n"+RenderStream(s))
		ids = append(ids, s.ID)
		byID[s.ID] = s
	}

	chosen, err := p.Ask("Select Stream ID", ids)
	if err != nil {
		return nil, err
	}
	codeMap := byID[chosen].CodeMap()

	for {
		fmt.Fprintf(p.out, "Selected Stream %s. Enter codes (e.g. L1 P1).\n", chosen)
		input, err := p.Ask("Codes", nil)
		if err != nil {
			return nil, err
		}

		lessons, err := Resolve(ParseCodes(input), codeMap)
		if err != nil {
			fmt.Fprintln(p.out, color.RedString("Invalid code entered."))
			continue
		}

		if err := Validate(lessons, doc.Subject.Formula.String()); err != nil {
			fmt.Fprintf(p.out, "%s %v\n", color.RedString("Validation Error:"), err)
			retry, err := p.Confirm("Retry selection? (no to abort subject)")
			if err != nil {
				return nil, err
			}
			if !retry {
				return nil, nil
			}
			continue
		}

		fmt.Fprintln(p.out, color.GreenString("Selection Validated."))
		return LessonIDs(lessons), nil
	}
}

// ScheduleFetcher reads one subject's schedule.
type ScheduleFetcher interface {
	FetchSchedule(ctx context.Context, subjectID int) (*client.ScheduleDocument, error)
}

// BuildPlan walks every subject interactively. A subject whose schedule
// cannot be fetched is logged and skipped; subjects with no lessons chosen
// are left out of the plan.
func BuildPlan(ctx context.Context, fetcher ScheduleFetcher, p *Prompter, subjectIDs []int, log zerolog.Logger) (*plan.Plan, error) {
	result := plan.New()
	for _, id := range subjectIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		doc, err := fetcher.FetchSchedule(ctx, id)
		if err != nil {
			log.Error().Err(err).Int("subject", id).Msg("error processing subject")
			continue
		}
		lessons, err := p.SelectLessons(doc)
		if err != nil {
			return result, err
		}
		if len(lessons) > 0 {
			result.Set(id, lessons)
		}
	}
	return result, nil
}
