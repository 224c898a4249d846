package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krakenhq/kraken/retry"
)

const testChannel = "C12345678"

func newTestTracker(opts ...Option) (*Tracker, *time.Time) {
	tr := New(opts...)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestShouldAlert_ConsecutiveFailures(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Record(testChannel, retry.KindTransient, "fetch page: timeout")
	tr.Record(testChannel, retry.KindTransient, "fetch page: timeout")

	alert, _ := tr.ShouldAlert(testChannel)
	assert.False(t, alert, "two failures are below the threshold")

	tr.Record(testChannel, retry.KindPermanent, "fetch page: invalid_auth")

	alert, message := tr.ShouldAlert(testChannel)
	require.True(t, alert)
	assert.Contains(t, message, testChannel)
	assert.Contains(t, message, "3 syncs in a row")
	assert.Contains(t, message, "invalid_auth")
}

func TestShouldAlert_WindowThreshold(t *testing.T) {
	tr, now := newTestTracker(WithConsecutiveThreshold(100)) // isolate the window signal

	for i := 0; i < DefaultWindowThreshold; i++ {
		tr.Record(testChannel, retry.KindTransient, fmt.Sprintf("failure %d", i))
		// A success between failures keeps the consecutive counter down
		// but leaves the window count intact.
		tr.RecordSuccess(testChannel)
		*now = now.Add(time.Hour)
	}

	alert, message := tr.ShouldAlert(testChannel)
	require.True(t, alert)
	assert.Contains(t, message, "in the last")
}

func TestShouldAlert_WindowExpires(t *testing.T) {
	tr, now := newTestTracker(WithConsecutiveThreshold(100), WithWindowThreshold(3))

	tr.Record(testChannel, retry.KindTransient, "old failure")
	tr.Record(testChannel, retry.KindTransient, "old failure")

	// Move past the window; the old failures age out.
	*now = now.Add(DefaultWindow + time.Minute)

	tr.Record(testChannel, retry.KindTransient, "recent failure")

	alert, _ := tr.ShouldAlert(testChannel)
	assert.False(t, alert)
	assert.Equal(t, 1, tr.Stats(testChannel).WindowCount)
}

func TestRecordSuccess_ResetsConsecutive(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Record(testChannel, retry.KindTransient, "failure")
	tr.Record(testChannel, retry.KindTransient, "failure")
	tr.RecordSuccess(testChannel)
	tr.Record(testChannel, retry.KindTransient, "failure")

	alert, _ := tr.ShouldAlert(testChannel)
	assert.False(t, alert, "a success breaks the consecutive run")
	assert.Equal(t, 1, tr.Stats(testChannel).Consecutive)
}

func TestDataErrorsDoNotCount(t *testing.T) {
	tr, _ := newTestTracker()

	for i := 0; i < 10; i++ {
		tr.Record(testChannel, retry.KindData, "validate item: empty content")
	}

	alert, _ := tr.ShouldAlert(testChannel)
	assert.False(t, alert, "bad items describe the data, not the channel")
	assert.Equal(t, 0, tr.Stats(testChannel).WindowCount)
}

func TestShouldAlert_OncePerIncident(t *testing.T) {
	tr, _ := newTestTracker()

	for i := 0; i < DefaultConsecutiveThreshold; i++ {
		tr.Record(testChannel, retry.KindTransient, "failure")
	}

	alert, _ := tr.ShouldAlert(testChannel)
	require.True(t, alert)

	tr.Record(testChannel, retry.KindTransient, "still failing")
	alert, _ = tr.ShouldAlert(testChannel)
	assert.False(t, alert, "no repeat alerts while the incident is open")

	// Recovery re-arms the alert for the next incident.
	tr.RecordSuccess(testChannel)
	for i := 0; i < DefaultConsecutiveThreshold; i++ {
		tr.Record(testChannel, retry.KindTransient, "failing again")
	}
	alert, _ = tr.ShouldAlert(testChannel)
	assert.True(t, alert)
}

func TestShouldAlert_UnknownChannel(t *testing.T) {
	tr, _ := newTestTracker()

	alert, message := tr.ShouldAlert("C99999999")
	assert.False(t, alert)
	assert.Empty(t, message)
}

func TestChannelsAreIndependent(t *testing.T) {
	tr, _ := newTestTracker()

	for i := 0; i < DefaultConsecutiveThreshold; i++ {
		tr.Record("C11111111", retry.KindTransient, "failure")
	}

	alert, _ := tr.ShouldAlert("C22222222")
	assert.False(t, alert)
	alert, _ = tr.ShouldAlert("C11111111")
	assert.True(t, alert)
}

func TestStats(t *testing.T) {
	tr, now := newTestTracker()

	stats := tr.Stats(testChannel)
	assert.Equal(t, 0, stats.Consecutive)
	assert.Equal(t, uint64(0), stats.TotalFailures)

	tr.Record(testChannel, retry.KindTransient, "failure")
	*now = now.Add(time.Minute)
	tr.Record(testChannel, retry.KindPermanent, "failure")

	stats = tr.Stats(testChannel)
	assert.Equal(t, 2, stats.Consecutive)
	assert.Equal(t, 2, stats.WindowCount)
	assert.Equal(t, uint64(2), stats.TotalFailures)
	assert.True(t, stats.LastFailure.Equal(*now))

	tr.RecordSuccess(testChannel)
	stats = tr.Stats(testChannel)
	assert.Equal(t, 0, stats.Consecutive)
	assert.Equal(t, uint64(2), stats.TotalFailures, "total survives a success")
}
