package relay_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"virtufit-backend/internal/relay"
	"virtufit-backend/internal/relay/relaytest"
	"virtufit-backend/internal/retry"
)

func pngBytes(t testing.TB) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newRelay(p relay.Provider) *relay.Relay {
	return relay.New(p, relay.Options{
		Retry: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
		Logger: zap.NewNop(),
	})
}

func TestSubmit_RejectsEmptyImage(t *testing.T) {
	p := relaytest.NewProvider("task-1")
	r := newRelay(p)

	_, err := r.Submit(context.Background(), relay.Image{Data: []byte(""), MimeType: "image/png"}, relay.SubmitOptions{})

	require.Error(t, err)
	assert.True(t, relay.IsKind(err, relay.KindValidation))
	assert.Equal(t, 0, p.Submits())
}

func TestSubmit_RejectsUnsupportedMimeType(t *testing.T) {
	p := relaytest.NewProvider("task-1")
	r := newRelay(p)

	_, err := r.Submit(context.Background(), relay.Image{Data: pngBytes(t), MimeType: "text/plain"}, relay.SubmitOptions{})

	require.Error(t, err)
	assert.True(t, relay.IsKind(err, relay.KindValidation))
	assert.Equal(t, 0, p.Submits())
}

func TestSubmit_RejectsMismatchedContent(t *testing.T) {
	p := relaytest.NewProvider("task-1")
	r := newRelay(p)

	_, err := r.Submit(context.Background(), relay.Image{Data: pngBytes(t), MimeType: "image/jpeg"}, relay.SubmitOptions{})

	require.Error(t, err)
	assert.True(t, relay.IsKind(err, relay.KindValidation))
}

func TestSubmit_RejectsOversizedImage(t *testing.T) {
	p := relaytest.NewProvider("task-1")
	r := relay.New(p, relay.Options{MaxImageBytes: 10})

	_, err := r.Submit(context.Background(), relay.Image{Data: pngBytes(t), MimeType: "image/png"}, relay.SubmitOptions{})

	require.Error(t, err)
	assert.True(t, relay.IsKind(err, relay.KindValidation))
}

func TestSubmit_MissingCredentialIsConfigurationError(t *testing.T) {
	p := relaytest.NewProvider("task-1")
	p.APIKey = ""
	r := newRelay(p)

	_, err := r.Submit(context.Background(), relay.Image{Data: pngBytes(t), MimeType: "image/png"}, relay.SubmitOptions{})

	require.Error(t, err)
	assert.True(t, relay.IsKind(err, relay.KindConfiguration))
	assert.Equal(t, 0, p.Submits())
}

func TestSubmit_ReturnsHandle(t *testing.T) {
	p := relaytest.NewProvider("task-1")
	r := newRelay(p)

	handle, err := r.Submit(context.Background(), relay.Image{Data: pngBytes(t), MimeType: "image/png"}, relay.SubmitOptions{})

	require.NoError(t, err)
	assert.Equal(t, "task-1", handle.TaskID)
	assert.Equal(t, "fake", handle.Provider)
	assert.False(t, handle.CreatedAt.IsZero())
}

func TestSubmit_RetriesTransportErrors(t *testing.T) {
	p := relaytest.NewProvider("task-1").FailSubmit(
		relay.NewTransportError("fake", "create task", errors.New("connection reset")),
	)
	r := newRelay(p)

	handle, err := r.Submit(context.Background(), relay.Image{Data: pngBytes(t), MimeType: "image/png"}, relay.SubmitOptions{})

	require.NoError(t, err)
	assert.Equal(t, "task-1", handle.TaskID)
	assert.Equal(t, 2, p.Submits())
}

func TestSubmit_DoesNotRetryPermanentRejection(t *testing.T) {
	rejection := relay.NewRejection("fake", "1002", "Authentication failed", "Check the API key", "trace-1", 403)
	p := relaytest.NewProvider("task-1").FailSubmit(rejection, rejection, rejection)
	r := newRelay(p)

	_, err := r.Submit(context.Background(), relay.Image{Data: pngBytes(t), MimeType: "image/png"}, relay.SubmitOptions{})

	require.Error(t, err)
	re, ok := relay.AsError(err)
	require.True(t, ok)
	assert.Equal(t, relay.KindProviderRejection, re.Kind)
	assert.Equal(t, "trace-1", re.TraceID)
	assert.Equal(t, 1, p.Submits())
}

func TestSubmit_RetriesRateLimitedRejection(t *testing.T) {
	limited := relay.NewRejection("fake", "2000", "rate limited", "", "", 429)
	p := relaytest.NewProvider("task-1").FailSubmit(limited, limited)
	r := newRelay(p)

	_, err := r.Submit(context.Background(), relay.Image{Data: pngBytes(t), MimeType: "image/png"}, relay.SubmitOptions{})

	require.NoError(t, err)
	assert.Equal(t, 3, p.Submits())
}

func TestPoll_RequiresTaskID(t *testing.T) {
	r := newRelay(relaytest.NewProvider("task-1"))
	_, err := r.Poll(context.Background(), " ")
	assert.True(t, relay.IsKind(err, relay.KindValidation))
}

func TestMalformedTaskIDNeverReachesProvider(t *testing.T) {
	ids := []string{
		"../../user/balance",
		"task-1?x=1",
		"task/1",
		"task 1",
		"%2e%2e",
		strings.Repeat("a", 129),
	}
	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			p := relaytest.NewProvider("task-1")
			r := newRelay(p)

			_, err := r.Poll(context.Background(), id)
			assert.True(t, relay.IsKind(err, relay.KindValidation), "poll: %v", err)

			_, err = r.AwaitCompletion(context.Background(), id, time.Millisecond, 10*time.Millisecond)
			assert.True(t, relay.IsKind(err, relay.KindValidation), "await: %v", err)

			assert.Zero(t, p.Polls())
		})
	}
}

func TestValidateTaskID_AcceptsProviderIDs(t *testing.T) {
	for _, id := range []string{"1ec04ced-4b87-44f6-a296-beee80777941", "018a210d8ba4705cb1111f1776f7f578", "task_1"} {
		assert.NoError(t, relay.ValidateTaskID(id), id)
	}
}

func TestPoll_ReportsUnrecognizedStatusAsRunning(t *testing.T) {
	p := relaytest.NewProvider("task-1").Script(relaytest.Status("warming_up"))
	r := newRelay(p)

	snap, err := r.Poll(context.Background(), "task-1")

	require.NoError(t, err)
	assert.Equal(t, relay.StatusRunning, snap.Status)
	assert.True(t, snap.Unrecognized)
	assert.Equal(t, "warming_up", snap.RawStatus)
	assert.Equal(t, relay.PublicProcessing, snap.PublicStatus())
}

func TestAwaitCompletion_Succeeds(t *testing.T) {
	p := relaytest.NewProvider("task-1").Script(
		relaytest.Status("queued"),
		relaytest.Status("running"),
		relaytest.Done("https://x/m.glb"),
	)
	r := newRelay(p)

	snap, err := r.AwaitCompletion(context.Background(), "task-1", time.Millisecond, time.Second)

	require.NoError(t, err)
	assert.Equal(t, relay.StatusSucceeded, snap.Status)
	assert.Equal(t, "https://x/m.glb", snap.ResultURL)
	assert.Equal(t, 100, snap.Progress)
	assert.Nil(t, snap.Error)
	assert.Equal(t, 3, p.Polls())
}

func TestAwaitCompletion_SuccessWithoutURLIsMissingResult(t *testing.T) {
	for _, url := range []string{"", "not a url", "/relative/m.glb", "ftp://x/m.glb"} {
		p := relaytest.NewProvider("task-1").Script(relaytest.Done(url))
		r := newRelay(p)

		snap, err := r.AwaitCompletion(context.Background(), "task-1", time.Millisecond, time.Second)

		require.NoError(t, err)
		assert.Equal(t, relay.StatusFailed, snap.Status, url)
		require.NotNil(t, snap.Error)
		assert.Equal(t, relay.CodeMissingResult, snap.Error.Code)
		assert.Empty(t, snap.ResultURL)
		assert.Equal(t, relay.PublicFailed, snap.PublicStatus())
	}
}

func TestAwaitCompletion_FailureVariantsCarryProviderStatus(t *testing.T) {
	cases := map[string]relay.Status{
		"failed":    relay.StatusFailed,
		"cancelled": relay.StatusCancelled,
		"expired":   relay.StatusExpired,
		"unknown":   relay.StatusUnknown,
	}
	for raw, want := range cases {
		p := relaytest.NewProvider("task-1").Script(relaytest.Status(raw))
		r := newRelay(p)

		snap, err := r.AwaitCompletion(context.Background(), "task-1", time.Millisecond, time.Second)

		require.NoError(t, err)
		assert.Equal(t, want, snap.Status)
		require.NotNil(t, snap.Error)
		assert.Equal(t, "task-"+string(want), snap.Error.Code)
		assert.Contains(t, snap.Error.Message, raw)
		assert.Equal(t, relay.PublicFailed, snap.PublicStatus())
	}
}

func TestAwaitCompletion_BudgetExhaustedReturnsProcessing(t *testing.T) {
	p := relaytest.NewProvider("task-1").Script(relaytest.Status("running"))
	r := newRelay(p)

	start := time.Now()
	snap, err := r.AwaitCompletion(context.Background(), "task-1", 50*time.Millisecond, 250*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, relay.PublicProcessing, snap.PublicStatus())
	assert.Equal(t, "task-1", snap.TaskID)
	assert.GreaterOrEqual(t, elapsed, 240*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.GreaterOrEqual(t, p.Polls(), 4)
}

func TestAwaitCompletion_FiveSecondBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("runs for five seconds")
	}
	p := relaytest.NewProvider("task-1").Script(relaytest.Status("queued"))
	r := newRelay(p)

	start := time.Now()
	snap, err := r.AwaitCompletion(context.Background(), "task-1", time.Second, 5*time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, relay.PublicProcessing, snap.PublicStatus())
	assert.Equal(t, "task-1", snap.TaskID)
	assert.GreaterOrEqual(t, elapsed, 4900*time.Millisecond)
	assert.Less(t, elapsed, 6500*time.Millisecond)
}

func TestAwaitCompletion_ContextDeadlineCapsBudget(t *testing.T) {
	p := relaytest.NewProvider("task-1").Script(relaytest.Status("running"))
	r := newRelay(p)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	snap, err := r.AwaitCompletion(ctx, "task-1", 20*time.Millisecond, time.Minute)

	require.NoError(t, err)
	assert.Equal(t, relay.PublicProcessing, snap.PublicStatus())
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaitCompletion_CancelledContextReturnsError(t *testing.T) {
	p := relaytest.NewProvider("task-1").Script(relaytest.Status("running"))
	r := newRelay(p)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.AwaitCompletion(ctx, "task-1", 10*time.Millisecond, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaitCompletion_UnrecognizedStatusEscalates(t *testing.T) {
	p := relaytest.NewProvider("task-1").Script(relaytest.Status("mystery"))
	r := newRelay(p)

	snap, err := r.AwaitCompletion(context.Background(), "task-1", time.Millisecond, time.Second)

	require.NoError(t, err)
	assert.Equal(t, relay.StatusFailed, snap.Status)
	require.NotNil(t, snap.Error)
	assert.Equal(t, relay.CodeUnrecognizedStatus, snap.Error.Code)
	assert.Equal(t, relay.DefaultMaxUnrecognized, p.Polls())
}

func TestAwaitCompletion_RecognizedStatusResetsUnrecognizedCount(t *testing.T) {
	p := relaytest.NewProvider("task-1").Script(
		relaytest.Status("mystery"),
		relaytest.Status("mystery"),
		relaytest.Status("running"),
		relaytest.Status("mystery"),
		relaytest.Status("mystery"),
		relaytest.Done("https://x/m.glb"),
	)
	r := newRelay(p)

	snap, err := r.AwaitCompletion(context.Background(), "task-1", time.Millisecond, time.Second)

	require.NoError(t, err)
	assert.Equal(t, relay.StatusSucceeded, snap.Status)
}

func TestAwaitCompletion_PermanentPollErrorIsReturned(t *testing.T) {
	notFound := relay.NewRejection("fake", "404", "task not found", "", "", 404)
	p := relaytest.NewProvider("task-1").Script(relaytest.Fail(notFound))
	r := newRelay(p)

	_, err := r.AwaitCompletion(context.Background(), "task-1", time.Millisecond, time.Second)

	require.Error(t, err)
	assert.True(t, relay.IsKind(err, relay.KindProviderRejection))
	assert.Equal(t, 1, p.Polls())
}

func TestAwaitCompletion_TransientPollErrorIsRetried(t *testing.T) {
	p := relaytest.NewProvider("task-1").Script(
		relaytest.Fail(relay.NewTransportError("fake", "get task", errors.New("timeout"))),
		relaytest.Done("https://x/m.glb"),
	)
	r := newRelay(p)

	snap, err := r.AwaitCompletion(context.Background(), "task-1", time.Millisecond, time.Second)

	require.NoError(t, err)
	assert.Equal(t, relay.StatusSucceeded, snap.Status)
}

func TestEffectiveBudget(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 5*time.Second, relay.EffectiveBudget(context.Background(), 5*time.Second, now))

	ctx, cancel := context.WithDeadline(context.Background(), now.Add(2*time.Second))
	defer cancel()
	assert.Equal(t, 2*time.Second, relay.EffectiveBudget(ctx, 5*time.Second, now))
	assert.Equal(t, time.Second, relay.EffectiveBudget(ctx, time.Second, now))

	expired, cancel2 := context.WithDeadline(context.Background(), now.Add(-time.Second))
	defer cancel2()
	assert.Equal(t, time.Duration(0), relay.EffectiveBudget(expired, 5*time.Second, now))
}
