package selection

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"wsp-sniper/client"
)

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	codeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	teacherStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cellStyle       = lipgloss.NewStyle().Padding(0, 1)
	streamStyle     = lipgloss.NewStyle().Bold(true)
	registeredStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	ruleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	formulaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

var tableHeaders = []string{"Code", "Group", "Type", "Teacher", "Room", "Day", "Time", "Limit"}

// Banner renders a title between two rules.
func Banner(text string) string {
	rule := ruleStyle.Render(strings.Repeat("═", 50))
	return rule + "\n" + lipgloss.NewStyle().Bold(true).Render(text) + "\n" + rule
}

// RenderSubject renders the subject header with its formula.
func RenderSubject(s client.SemesterSubject) string {
	title := fmt.Sprintf("Configuring: %s (%s)", s.DisplayName(), s.DisplayCode())
	return Banner(title) + "\nFormula: " + formulaStyle.Render(orNA(s.Formula.String()))
}

// RenderStream renders one stream as a titled table. Streams the student is
// already registered in get a green title.
func RenderStream(s Stream) string {
	titleStyle := streamStyle
	if s.Registered() {
		titleStyle = registeredStyle
	}

	rows := make([][]string, 0, len(s.Lessons))
	for _, l := range s.Lessons {
		rows = append(rows, []string{
			LessonCode(l),
			l.Group.String(),
			LessonTypeName(int(l.LessonTypeID)),
			orNA(l.Teacher.String()),
			orNA(l.Room.String()),
			orNA(l.WeekDay.String()),
			FormatHour(l.BeginTime) + "-" + FormatHour(l.EndTime),
			fmt.Sprintf("%d/%d", l.StudentCount, l.StudentCountMax),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))).
		Headers(tableHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 0:
				return codeStyle.Padding(0, 1)
			case col == 3:
				return teacherStyle.Padding(0, 1)
			case col == len(tableHeaders)-1:
				return cellStyle.Align(lipgloss.Right)
			default:
				return cellStyle
			}
		})

	return titleStyle.Render("→ Stream "+s.ID) + "\n" + t.Render()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
