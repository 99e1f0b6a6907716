// Package watch follows evaluations as they land in the ledger.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/dyluth/appraise/internal/filter"
	"github.com/dyluth/appraise/pkg/ledger"
)

// OutputFormat specifies how streamed evaluations are written.
type OutputFormat string

const (
	// OutputFormatDefault writes one human-readable line per evaluation
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes line-delimited JSON
	OutputFormatJSON OutputFormat = "json"
)

// EvaluationGetter looks up a stored evaluation by fingerprint.
type EvaluationGetter interface {
	GetEvaluation(ctx context.Context, fingerprint string) (*ledger.Evaluation, error)
}

// EventSource delivers evaluations as they are saved.
type EventSource interface {
	SubscribeEvaluationEvents(ctx context.Context) (*ledger.Subscription, error)
}

// PollForEvaluation polls for the evaluation of a fingerprint.
// Returns the evaluation or an error if timeout occurs.
// Polls every 200ms for the specified timeout duration.
func PollForEvaluation(ctx context.Context, client EvaluationGetter, fingerprint string, timeout time.Duration) (*ledger.Evaluation, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for evaluation after %v", timeout)

		case <-ticker.C:
			evaluation, err := client.GetEvaluation(ctx, fingerprint)
			if err != nil {
				if ledger.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("failed to query for evaluation: %w", err)
			}

			return evaluation, nil
		}
	}
}

// StreamEvaluations writes every saved evaluation matching criteria to w until
// ctx is cancelled or the subscription ends. A nil criteria matches everything.
// Malformed events are logged and skipped.
func StreamEvaluations(ctx context.Context, source EventSource, criteria *filter.Criteria, format OutputFormat, w io.Writer) error {
	formatter, err := newFormatter(format, w)
	if err != nil {
		return err
	}

	sub, err := source.SubscribeEvaluationEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to evaluation events: %w", err)
	}
	defer sub.Close()

	events := sub.Events()
	errs := sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evaluation, ok := <-events:
			if !ok {
				return nil
			}
			if !criteria.Matches(evaluation) {
				continue
			}
			if err := formatter.FormatEvaluation(evaluation); err != nil {
				return fmt.Errorf("failed to write evaluation: %w", err)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("[Watch] WARN: %v", err)
		}
	}
}

type eventFormatter interface {
	FormatEvaluation(e *ledger.Evaluation) error
}

func newFormatter(format OutputFormat, w io.Writer) (eventFormatter, error) {
	switch format {
	case OutputFormatDefault, "":
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{writer: w}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// defaultFormatter writes one line per evaluation, e.g.
// "14:03:22 ✨ 0x1234 reward=4.42 agreement=high status=processed fp=abababab tags=coding"
type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatEvaluation(e *ledger.Evaluation) error {
	ts := time.UnixMilli(e.TimestampMs).Format("15:04:05")

	agreement := "none"
	if e.Consensus != nil {
		agreement = string(e.Consensus.Agreement)
	}

	fp := e.Fingerprint
	if len(fp) > 8 {
		fp = fp[:8]
	}

	tags := strings.Join(e.SkillTags(), ",")
	if tags == "" {
		tags = "-"
	}

	icon := "✨"
	if e.Status == ledger.EvaluationStatusPartial {
		icon = "⚠️"
	}

	_, err := fmt.Fprintf(f.writer, "%s %s %s reward=%.2f agreement=%s status=%s fp=%s tags=%s\n",
		ts, icon, e.Developer, e.EstimatedReward(), agreement, e.Status, fp, tags)
	return err
}

// jsonFormatter writes each evaluation as a compact JSON line.
type jsonFormatter struct {
	writer io.Writer
}

func (f *jsonFormatter) FormatEvaluation(e *ledger.Evaluation) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation: %w", err)
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", data)
	return err
}
