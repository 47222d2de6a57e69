package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_RegistersLoanInstruments(t *testing.T) {
	obs := New("loan-workers-test")
	defer obs.Shutdown()

	require.NotNil(t, obs.jobsHandled)
	require.NotNil(t, obs.jobDuration)

	obs.RecordJobHandled(context.Background(), "check-credit", 5*time.Millisecond)
}

func TestRecordJobHandled_WithoutInstrumentsIsSafe(t *testing.T) {
	obs := &Observability{}
	obs.RecordJobHandled(context.Background(), "verify-completeness", time.Millisecond)
	obs.Shutdown()
}
