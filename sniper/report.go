package sniper

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"wsp-sniper/client"
	"wsp-sniper/plan"
)

// Report is the execution summary of one attack.
type Report struct {
	BaseURL string
	Network string
	Mode    string

	TargetTime  time.Time
	ActualTime  time.Time
	ClockOffset time.Duration

	// Outcomes are in plan order.
	Outcomes     []Outcome
	SafetyReason string
}

// NewReport orders outcomes by the plan they were launched from.
func NewReport(p *plan.Plan, outcomes map[int]Outcome) Report {
	r := Report{Outcomes: make([]Outcome, 0, len(outcomes))}
	for _, id := range p.SubjectIDs() {
		if out, ok := outcomes[id]; ok {
			r.Outcomes = append(r.Outcomes, out)
		}
	}
	return r
}

// Drift is the actual fire time minus the target.
func (r Report) Drift() time.Duration {
	return r.ActualTime.Sub(r.TargetTime)
}

// Verdict is SUCCESS when every subject registered, PARTIAL when some did
// and FAILED otherwise.
func (r Report) Verdict() string {
	ok := 0
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			ok++
		}
	}
	switch {
	case len(r.Outcomes) > 0 && ok == len(r.Outcomes):
		return "SUCCESS"
	case ok > 0:
		return "PARTIAL"
	default:
		return "FAILED"
	}
}

// Print writes the colored execution report.
func (r Report) Print(w io.Writer) {
	headerColor := color.New(color.FgHiCyan, color.Bold).SprintFunc()
	sectionColor := color.New(color.FgHiYellow).SprintFunc()
	labelColor := color.New(color.FgWhite).SprintFunc()
	valueColor := color.New(color.FgHiWhite).SprintFunc()
	successColor := color.New(color.FgGreen, color.Bold).SprintFunc()
	errorColor := color.New(color.FgRed, color.Bold).SprintFunc()
	warnColor := color.New(color.FgYellow).SprintFunc()
	driftColor := color.New(color.FgHiMagenta).SprintfFunc()

	section := func(title string) {
		fmt.Fprintln(w, "\n"+sectionColor("--------------------------------------------------"))
		fmt.Fprintln(w, sectionColor(title))
		fmt.Fprintln(w, sectionColor("--------------------------------------------------"))
	}

	fmt.Fprintln(w, "\n"+headerColor("[WSP Sniper Execution Log]"))
	fmt.Fprintf(w, "%s     : %s\n", labelColor("Target Site"), valueColor(r.BaseURL))
	fmt.Fprintf(w, "%s  : %s\n", labelColor("Execution Mode"), valueColor(r.Mode))
	fmt.Fprintf(w, "%s         : %s\n", labelColor("Network"), valueColor(r.Network))

	section("[1] Scheduler & Timing")
	fmt.Fprintf(w, "%s : %s\n", labelColor("Target Execution Time"), valueColor(r.TargetTime.Format("2006-01-02 15:04:05.000000")))
	fmt.Fprintf(w, "%s      : %s\n", labelColor("Actual Fire Time"), valueColor(r.ActualTime.Format("2006-01-02 15:04:05.000000")))
	fmt.Fprintf(w, "%s          : %s\n", labelColor("Timing Drift"), driftColor("%+d µs", r.Drift().Microseconds()))
	fmt.Fprintf(w, "%s     : %s\n", labelColor("NTP Clock Offset"), valueColor(fmt.Sprintf("%+.3f s", r.ClockOffset.Seconds())))

	section("[2] Registration Attempts")
	for i, o := range r.Outcomes {
		res := o.Result.String()
		switch o.Result {
		case ResultSuccess:
			res = successColor(res)
		case ResultCancelled:
			res = warnColor(res)
		default:
			res = errorColor(res)
		}
		fmt.Fprintf(w, "  [%d] subject %d → %s (attempts: %d, last status: %d, %s)\n",
			i+1, o.SubjectID, res, o.Attempts, o.StatusCode, o.Duration().Round(time.Millisecond))
		if detail := outcomeDetail(o); detail != "" {
			fmt.Fprintf(w, "      %s\n", detail)
		}
	}

	section("[3] Result Summary")
	verdict := r.Verdict()
	verdictColor := errorColor
	switch verdict {
	case "SUCCESS":
		verdictColor = successColor
	case "PARTIAL":
		verdictColor = warnColor
	}
	fmt.Fprintf(w, "%s          : %s\n", labelColor("Result"), verdictColor(verdict))
	if r.SafetyReason != "" {
		fmt.Fprintf(w, "%s    : %s\n", labelColor("Safety Stop"), errorColor(r.SafetyReason))
	}
}

func outcomeDetail(o Outcome) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return client.SummarizeBody(o.Body)
}

type outcomeRecord struct {
	SubjectID  int    `json:"subject_id"`
	Result     Result `json:"result"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type reportRecord struct {
	BaseURL       string          `json:"base_url"`
	Network       string          `json:"network"`
	Mode          string          `json:"mode"`
	TargetTime    time.Time       `json:"target_time"`
	ActualTime    time.Time       `json:"actual_time"`
	DriftUS       int64           `json:"drift_us"`
	ClockOffsetMS float64         `json:"clock_offset_ms"`
	Verdict       string          `json:"verdict"`
	SafetyReason  string          `json:"safety_reason,omitempty"`
	Outcomes      []outcomeRecord `json:"outcomes"`
}

func (r Report) record() reportRecord {
	rec := reportRecord{
		BaseURL:       r.BaseURL,
		Network:       r.Network,
		Mode:          r.Mode,
		TargetTime:    r.TargetTime,
		ActualTime:    r.ActualTime,
		DriftUS:       r.Drift().Microseconds(),
		ClockOffsetMS: float64(r.ClockOffset) / float64(time.Millisecond),
		Verdict:       r.Verdict(),
		SafetyReason:  r.SafetyReason,
		Outcomes:      make([]outcomeRecord, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		or := outcomeRecord{
			SubjectID:  o.SubjectID,
			Result:     o.Result,
			StatusCode: o.StatusCode,
			Body:       client.SummarizeBody(o.Body),
			Attempts:   o.Attempts,
			DurationMS: o.Duration().Milliseconds(),
		}
		if o.Err != nil {
			or.Error = o.Err.Error()
		}
		rec.Outcomes = append(rec.Outcomes, or)
	}
	return rec
}

// WriteStructuredLog appends the report as one JSON line to filename.
func WriteStructuredLog(r Report, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(r.record())
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}
