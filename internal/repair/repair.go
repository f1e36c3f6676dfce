// Package repair drives the bounded validate→generate→revalidate loop
// that turns an invalid candidate source into a conforming one.
package repair

import (
	"context"
	"fmt"
	"time"

	"wayfinder/internal/prompt"
	"wayfinder/internal/validate"
)

// Oracle produces repaired or generated source text. Implementations
// must honor ctx cancellation on in-flight calls.
type Oracle interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Phase string

const (
	PhaseAnalysis     Phase = "analysis"
	PhaseGeneration   Phase = "generation"
	PhaseValidation   Phase = "validation"
	PhaseOptimization Phase = "optimization"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

// phaseIndex positions a phase within one iteration for the overall
// progress formula. Terminal phases sit at the end of the iteration.
func phaseIndex(p Phase) int {
	switch p {
	case PhaseAnalysis:
		return 0
	case PhaseGeneration:
		return 1
	case PhaseValidation:
		return 2
	default:
		return 3
	}
}

const phaseCount = 4

// Progress is emitted synchronously at every phase boundary.
type Progress struct {
	Phase           Phase   `json:"phase"`
	Iteration       int     `json:"iteration"`
	MaxIterations   int     `json:"max_iterations"`
	StepProgress    float64 `json:"step_progress"`
	Message         string  `json:"message"`
	Elapsed         float64 `json:"elapsed_seconds"`
	ErrorsFixed     int     `json:"errors_fixed"`
	WarningsFixed   int     `json:"warnings_fixed"`
	OverallProgress float64 `json:"overall_progress"`
}

// HistoryEntry records one completed generation attempt.
type HistoryEntry struct {
	Iteration     int             `json:"iteration"`
	PriorSource   string          `json:"prior_source"`
	NewSource     string          `json:"new_source"`
	PriorReport   validate.Report `json:"prior_report"`
	NewReport     validate.Report `json:"new_report"`
	ErrorsFixed   int             `json:"errors_fixed"`
	WarningsFixed int             `json:"warnings_fixed"`
	ScoreDelta    int             `json:"score_delta"`
}

// Result is the final outcome of a fix run.
type Result struct {
	Success     bool            `json:"success"`
	Iterations  int             `json:"iterations"`
	FinalSource string          `json:"final_source"`
	FinalReport validate.Report `json:"final_report"`
	History     []HistoryEntry  `json:"history"`
	Err         string          `json:"error,omitempty"`
	Elapsed     float64         `json:"elapsed_seconds"`
}

const (
	DefaultMaxIterations = 5
	defaultRetryPause    = 2 * time.Second
)

// Fixer orchestrates repair runs. Construct with New; the zero value
// has no oracle and cannot fix anything.
type Fixer struct {
	validator *validate.Validator
	oracle    Oracle
	maxIter   int
	pause     time.Duration
	now       func() time.Time
}

func New(v *validate.Validator, o Oracle) *Fixer {
	return &Fixer{
		validator: v,
		oracle:    o,
		maxIter:   DefaultMaxIterations,
		pause:     defaultRetryPause,
		now:       time.Now,
	}
}

// WithMaxIterations bounds the repair budget. Values below 1 keep the
// default.
func (f *Fixer) WithMaxIterations(n int) *Fixer {
	if n >= 1 {
		f.maxIter = n
	}
	return f
}

// WithRetryPause sets the wait between a failed oracle call and the
// next attempt.
func (f *Fixer) WithRetryPause(d time.Duration) *Fixer {
	f.pause = d
	return f
}

func (f *Fixer) WithClock(now func() time.Time) *Fixer {
	f.now = now
	return f
}

func (f *Fixer) MaxIterations() int { return f.maxIter }

// Fix repairs source toward the contract for typeName. onProgress may
// be nil. The run adopts every generated source forward; earlier
// versions survive only in the history.
func (f *Fixer) Fix(ctx context.Context, source, typeName string, onProgress func(Progress)) Result {
	start := f.now()
	var (
		history       []HistoryEntry
		errorsFixed   int
		warningsFixed int
	)

	emit := func(phase Phase, iteration int, step float64, msg string) {
		if onProgress == nil {
			return
		}
		overall := (float64(iteration-1) + float64(phaseIndex(phase))/phaseCount) / float64(f.maxIter) * 100
		if phase == PhaseCompleted {
			overall = 100
		}
		onProgress(Progress{
			Phase:           phase,
			Iteration:       iteration,
			MaxIterations:   f.maxIter,
			StepProgress:    step,
			Message:         msg,
			Elapsed:         f.now().Sub(start).Seconds(),
			ErrorsFixed:     errorsFixed,
			WarningsFixed:   warningsFixed,
			OverallProgress: overall,
		})
	}

	finish := func(success bool, iterations int, src string, report validate.Report, errMsg string) Result {
		phase := PhaseCompleted
		if !success {
			phase = PhaseFailed
		}
		msg := "repair succeeded"
		if errMsg != "" {
			msg = errMsg
		} else if !success {
			msg = "repair budget exhausted"
		}
		emit(phase, iterations, 100, msg)
		return Result{
			Success:     success,
			Iterations:  iterations,
			FinalSource: src,
			FinalReport: report,
			History:     history,
			Err:         errMsg,
			Elapsed:     f.now().Sub(start).Seconds(),
		}
	}

	report := validate.Report{}
	for iter := 1; iter <= f.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return finish(false, iter, source, report, fmt.Sprintf("repair cancelled: %v", err))
		}

		emit(PhaseAnalysis, iter, 0, fmt.Sprintf("analyzing candidate, attempt %d of %d", iter, f.maxIter))
		report = f.validator.Validate(source, typeName)
		emit(PhaseAnalysis, iter, 100, fmt.Sprintf("found %d errors, %d warnings", len(report.Errors), len(report.Warnings)))

		if report.Valid {
			source, report = f.optimize(ctx, source, typeName, report, iter, emit)
			return finish(true, iter, source, report, "")
		}

		emit(PhaseGeneration, iter, 0, prompt.Strategy(iter))
		reply, err := f.oracle.Complete(ctx, prompt.System(), prompt.Repair(source, typeName, report, iter, f.maxIter))
		code := prompt.ExtractCode(reply)
		if err == nil && code == "" {
			err = fmt.Errorf("oracle returned no code")
		}
		if err != nil {
			if ctx.Err() != nil {
				return finish(false, iter, source, report, fmt.Sprintf("repair cancelled: %v", ctx.Err()))
			}
			emit(PhaseGeneration, iter, 100, fmt.Sprintf("attempt %d failed: %v", iter, err))
			if iter == f.maxIter {
				return finish(false, iter, source, report, fmt.Sprintf("oracle failed on final attempt: %v", err))
			}
			// transient oracle trouble: pause briefly, then rerun the
			// analysis on the unchanged source
			if !f.sleep(ctx) {
				return finish(false, iter, source, report, "repair cancelled: context canceled")
			}
			continue
		}

		emit(PhaseValidation, iter, 0, "validating generated source")
		newReport := f.validator.Validate(code, typeName)
		entry := HistoryEntry{
			Iteration:     iter,
			PriorSource:   source,
			NewSource:     code,
			PriorReport:   report,
			NewReport:     newReport,
			ErrorsFixed:   len(report.Errors) - len(newReport.Errors),
			WarningsFixed: len(report.Warnings) - len(newReport.Warnings),
			ScoreDelta:    newReport.Score - report.Score,
		}
		history = append(history, entry)
		if entry.ErrorsFixed > 0 {
			errorsFixed += entry.ErrorsFixed
		}
		if entry.WarningsFixed > 0 {
			warningsFixed += entry.WarningsFixed
		}
		emit(PhaseValidation, iter, 100,
			fmt.Sprintf("score %d -> %d", report.Score, newReport.Score))

		// forward-only adoption: the generated source becomes the
		// candidate even when it scored worse
		source, report = code, newReport

		if report.Valid {
			source, report = f.optimize(ctx, source, typeName, report, iter, emit)
			return finish(true, iter, source, report, "")
		}
	}

	return finish(report.Valid, f.maxIter, source, report, "")
}

// optimize runs the terminal polish pass. The optimized source is
// adopted only when it still validates clean; any oracle trouble keeps
// the proven source.
func (f *Fixer) optimize(ctx context.Context, source, typeName string, report validate.Report, iter int, emit func(Phase, int, float64, string)) (string, validate.Report) {
	emit(PhaseOptimization, iter, 0, "optimizing valid candidate")
	reply, err := f.oracle.Complete(ctx, prompt.System(), prompt.Optimize(source, typeName))
	if err != nil {
		emit(PhaseOptimization, iter, 100, fmt.Sprintf("optimization skipped: %v", err))
		return source, report
	}
	code := prompt.ExtractCode(reply)
	if code == "" {
		emit(PhaseOptimization, iter, 100, "optimization skipped: oracle returned no code")
		return source, report
	}
	optReport := f.validator.Validate(code, typeName)
	if !optReport.Valid {
		emit(PhaseOptimization, iter, 100, "optimization discarded: result no longer validates")
		return source, report
	}
	emit(PhaseOptimization, iter, 100, "optimization applied")
	return code, optReport
}

// sleep waits the retry pause, returning false when ctx fired first.
func (f *Fixer) sleep(ctx context.Context) bool {
	if f.pause <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(f.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
