package printer

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/appraise/pkg/ledger"
)

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})
}

func TestErrorWithContext(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		context := map[string]string{
			"Redis":    "redis://localhost:6379",
			"Instance": "test-instance",
		}
		err := ErrorWithContext("Test Error", "Explanation", context, []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		context := map[string]string{"Key": "Value"}
		err := ErrorWithContext("Test Error", "Explanation", context, []string{"Fix it"})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})
}

func TestAgreement(t *testing.T) {
	previous := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = previous }()

	assert.Equal(t, "high", Agreement(ledger.AgreementHigh))
	assert.Equal(t, "medium", Agreement(ledger.AgreementMedium))
	assert.Equal(t, "low", Agreement(ledger.AgreementLow))
}

func TestAgentStatus(t *testing.T) {
	previous := color.NoColor
	defer func() { color.NoColor = previous }()

	color.NoColor = true
	assert.Equal(t, "active", AgentStatus(ledger.AgentStatusActive))
	assert.Equal(t, "error", AgentStatus(ledger.AgentStatusError))

	color.NoColor = false
	assert.Contains(t, AgentStatus(ledger.AgentStatusUnhealthy), "unhealthy")
	assert.NotEqual(t, "unhealthy", AgentStatus(ledger.AgentStatusUnhealthy))
}

// Note: The Error and ErrorWithContext functions print formatted output to stderr
// with colors. The error object returned only contains the title for Cobra's error handling.
// This is intentional to avoid duplicate output while providing rich formatted errors.
