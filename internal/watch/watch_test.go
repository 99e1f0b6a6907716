package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/appraise/internal/filter"
	"github.com/dyluth/appraise/pkg/ledger"
)

func setupClient(t *testing.T) *ledger.Client {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := ledger.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func newEvaluation(developer, timestamp string) *ledger.Evaluation {
	c := &ledger.Contribution{Developer: developer, Code: "x := 1", Timestamp: ledger.Timestamp(timestamp)}
	return &ledger.Evaluation{
		ID:          uuid.New().String(),
		Fingerprint: ledger.Fingerprint(c),
		Developer:   developer,
		Decisions: []*ledger.Decision{
			{AgentType: ledger.AgentTypeCodeQuality, Developer: developer, RecommendedReward: 4, Confidence: 0.5, SkillTags: []string{"go"}},
			{AgentType: ledger.AgentTypeContributionImpact, Developer: developer, RecommendedReward: 6, Confidence: 0.5, SkillTags: []string{"impact_analysis"}},
		},
		Consensus: &ledger.ConsensusResult{
			EstimatedReward:   5,
			ConsensusStrength: 0.8,
			AverageConfidence: 0.5,
			Agreement:         ledger.AgreementMedium,
			DecisionCount:     2,
		},
		Status:      ledger.EvaluationStatusProcessed,
		TimestampMs: time.Now().UnixMilli(),
	}
}

func TestPollForEvaluation(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	t.Run("returns evaluation when found immediately", func(t *testing.T) {
		e := newEvaluation("0x1234", "1")
		require.NoError(t, client.SaveEvaluation(ctx, e))

		found, err := PollForEvaluation(ctx, client, e.Fingerprint, time.Second)
		require.NoError(t, err)
		require.Equal(t, e.ID, found.ID)
	})

	t.Run("returns evaluation saved after a delay", func(t *testing.T) {
		e := newEvaluation("0x1234", "2")

		go func() {
			time.Sleep(300 * time.Millisecond)
			_ = client.SaveEvaluation(ctx, e)
		}()

		found, err := PollForEvaluation(ctx, client, e.Fingerprint, 2*time.Second)
		require.NoError(t, err)
		require.Equal(t, e.ID, found.ID)
	})

	t.Run("times out when the evaluation never appears", func(t *testing.T) {
		_, err := PollForEvaluation(ctx, client, strings.Repeat("0", 64), 300*time.Millisecond)
		require.Error(t, err)
		require.Contains(t, err.Error(), "timeout waiting for evaluation")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := PollForEvaluation(cancelCtx, client, strings.Repeat("0", 64), time.Second)
		require.ErrorIs(t, err, context.Canceled)
	})
}

// syncBuffer guards a bytes.Buffer shared with the streaming goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStreamEvaluations(t *testing.T) {
	client := setupClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- StreamEvaluations(ctx, client, &filter.Criteria{Developer: "0xabcd"}, OutputFormatJSON, out)
	}()

	e := newEvaluation("0xabcd", "1")
	other := newEvaluation("0x9999", "1")

	// The subscription is established asynchronously; keep saving until the event arrives
	require.Eventually(t, func() bool {
		_ = client.SaveEvaluation(context.Background(), other)
		_ = client.SaveEvaluation(context.Background(), e)
		return strings.Contains(out.String(), e.ID)
	}, 3*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}

	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var decoded ledger.Evaluation
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
		require.Equal(t, "0xabcd", decoded.Developer, "filtered developers are not streamed")
	}
}

func TestStreamEvaluations_UnknownFormat(t *testing.T) {
	client := setupClient(t)

	err := StreamEvaluations(context.Background(), client, nil, OutputFormat("xml"), &bytes.Buffer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported output format")
}

func TestFormatters(t *testing.T) {
	t.Run("defaultFormatter formats processed evaluations", func(t *testing.T) {
		var buf bytes.Buffer
		formatter := &defaultFormatter{writer: &buf}

		e := newEvaluation("0x1234", "1")
		require.NoError(t, formatter.FormatEvaluation(e))

		output := buf.String()
		require.Contains(t, output, "✨ 0x1234")
		require.Contains(t, output, "reward=5.00")
		require.Contains(t, output, "agreement=medium")
		require.Contains(t, output, "status=processed")
		require.Contains(t, output, "fp="+e.Fingerprint[:8])
		require.Contains(t, output, "tags=go,impact_analysis")
	})

	t.Run("defaultFormatter flags partial evaluations", func(t *testing.T) {
		var buf bytes.Buffer
		formatter := &defaultFormatter{writer: &buf}

		e := newEvaluation("0x1234", "1")
		e.Decisions = e.Decisions[:1]
		e.Decisions[0].SkillTags = nil
		e.Consensus = nil
		e.Status = ledger.EvaluationStatusPartial

		require.NoError(t, formatter.FormatEvaluation(e))

		output := buf.String()
		require.Contains(t, output, "⚠️")
		require.Contains(t, output, "agreement=none")
		require.Contains(t, output, "reward=4.00")
		require.Contains(t, output, "tags=-")
	})

	t.Run("jsonFormatter writes one line per evaluation", func(t *testing.T) {
		var buf bytes.Buffer
		formatter := &jsonFormatter{writer: &buf}

		require.NoError(t, formatter.FormatEvaluation(newEvaluation("0x1234", "1")))
		require.NoError(t, formatter.FormatEvaluation(newEvaluation("0x5678", "1")))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		require.Contains(t, lines[1], `"developer":"0x5678"`)
	})
}
