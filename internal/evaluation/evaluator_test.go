package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/jobstate"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/ocr"
	"github.com/ocrlab/ocrlab/internal/ocr/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func samples(names ...string) []dataset.Sample {
	out := make([]dataset.Sample, 0, len(names)/2)
	for i := 0; i+1 < len(names); i += 2 {
		out = append(out, dataset.Sample{Filename: names[i], ImagePath: "/data/" + names[i], GroundTruth: names[i+1]})
	}
	return out
}

func text(s string) []ocr.Fragment {
	return []ocr.Fragment{{Text: s, Confidence: 0.9}}
}

func newEngine(t *testing.T) *mocks.MockEngine {
	ctrl := gomock.NewController(t)
	e := mocks.NewMockEngine(ctrl)
	e.EXPECT().Name().Return("fake").AnyTimes()
	return e
}

func begin(t *testing.T, n int) (*jobstate.State, *jobstate.Run) {
	t.Helper()
	st := jobstate.New()
	run, err := st.Begin(n, jobstate.RunMeta{ID: "run-1"})
	require.NoError(t, err)
	return st, run
}

func TestRunScoresSamples(t *testing.T) {
	engine := newEngine(t)
	gomock.InOrder(
		engine.EXPECT().Recognize(gomock.Any(), ocr.Request{ImagePath: "/data/a.jpg"}).Return(text("hello"), nil),
		engine.EXPECT().Recognize(gomock.Any(), ocr.Request{ImagePath: "/data/b.jpg"}).Return(text("wrong"), nil),
	)

	st, run := begin(t, 2)
	res, err := NewEvaluator(engine).Run(context.Background(), run, samples("a.jpg", "Hello", "b.jpg", "World"))
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalSamples)
	assert.Equal(t, 1, res.CorrectPredictions)
	assert.Equal(t, 50.0, res.Accuracy)
	require.Len(t, res.Details, 2)
	// Matching ignores case; the prediction is kept as the engine returned it.
	assert.Equal(t, models.SampleResult{
		Filename: "a.jpg", GroundTruth: "Hello", Predicted: "hello", Correct: true, Confidence: 0.9, CER: 0,
	}, res.Details[0])
	assert.Equal(t, "b.jpg", res.Details[1].Filename)
	assert.Equal(t, "wrong", res.Details[1].Predicted)
	assert.False(t, res.Details[1].Correct)
	assert.InDelta(t, 0.8, res.Details[1].CER, 1e-9)
	assert.InDelta(t, 0.4, res.MeanCER, 1e-9)

	snap := st.Snapshot()
	assert.Equal(t, models.JobCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	require.NotNil(t, snap.Results)
	assert.Equal(t, 50.0, snap.Results.Accuracy)
}

func TestRunJoinsFragments(t *testing.T) {
	engine := newEngine(t)
	engine.EXPECT().Recognize(gomock.Any(), gomock.Any()).Return([]ocr.Fragment{
		{Text: "Hello", Confidence: 0.8},
		{Text: "World", Confidence: 1.0},
	}, nil)

	_, run := begin(t, 1)
	res, err := NewEvaluator(engine).Run(context.Background(), run, samples("a.jpg", "hello world"))
	require.NoError(t, err)
	assert.Equal(t, "Hello World", res.Details[0].Predicted)
	assert.True(t, res.Details[0].Correct)
	assert.InDelta(t, 0.9, res.Details[0].Confidence, 1e-9)
}

func TestRunEmptyDataset(t *testing.T) {
	engine := newEngine(t)
	st, run := begin(t, 0)

	res, err := NewEvaluator(engine).Run(context.Background(), run, nil)
	require.NoError(t, err)
	assert.Zero(t, res.TotalSamples)
	assert.Zero(t, res.Accuracy)
	assert.NotNil(t, res.Details)
	assert.Empty(t, res.Details)

	snap := st.Snapshot()
	assert.Equal(t, models.JobCompleted, snap.Status)
	require.NotNil(t, snap.Results)
	assert.NotNil(t, snap.Results.Details)
}

func TestRunFailsOnSecondOfThree(t *testing.T) {
	engine := newEngine(t)
	gomock.InOrder(
		engine.EXPECT().Recognize(gomock.Any(), gomock.Any()).Return(text("A"), nil),
		engine.EXPECT().Recognize(gomock.Any(), gomock.Any()).Return(nil, &ocr.Error{Op: "recognize", Err: ocr.ErrUnreadableImage}),
	)

	st, run := begin(t, 3)
	_, err := NewEvaluator(engine).Run(context.Background(), run, samples("a.jpg", "A", "b.jpg", "B", "c.jpg", "C"))

	var serr *SampleError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 2, serr.Index)
	assert.Equal(t, "b.jpg", serr.Filename)
	assert.True(t, errors.Is(err, ocr.ErrUnreadableImage))

	snap := st.Snapshot()
	assert.Equal(t, models.JobFailed, snap.Status)
	assert.Equal(t, 33, snap.Progress)
	assert.Nil(t, snap.Results)
	assert.Contains(t, snap.Error, "sample 2/3 (b.jpg)")
}

func TestRunEmitsEvents(t *testing.T) {
	engine := newEngine(t)
	engine.EXPECT().Recognize(gomock.Any(), gomock.Any()).Return(text("x"), nil).Times(2)

	_, run := begin(t, 2)
	ev := NewEvaluator(engine)
	var got []EventType
	var nums []int
	ev.OnProgress(func(e ProgressEvent) {
		got = append(got, e.EventType)
		nums = append(nums, e.SampleNum)
		assert.Equal(t, "run-1", e.RunID)
	})

	_, err := ev.Run(context.Background(), run, samples("a.jpg", "x", "b.jpg", "y"))
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventRunStart, EventSampleComplete, EventSampleComplete, EventRunComplete}, got)
	assert.Equal(t, []int{0, 1, 2, 0}, nums)
}

func TestRunFailureEvent(t *testing.T) {
	engine := newEngine(t)
	engine.EXPECT().Recognize(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	_, run := begin(t, 1)
	ev := NewEvaluator(engine)
	var last ProgressEvent
	ev.OnProgress(func(e ProgressEvent) { last = e })

	_, err := ev.Run(context.Background(), run, samples("a.jpg", "x"))
	require.Error(t, err)
	assert.Equal(t, EventRunFailed, last.EventType)
	assert.Equal(t, "sample 1/1 (a.jpg): boom", last.Message)
	assert.Equal(t, 0, last.Progress)
}

func TestRunCanceledWritesNothing(t *testing.T) {
	engine := newEngine(t)
	st, run := begin(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEvaluator(engine).Run(ctx, run, samples("a.jpg", "x", "b.jpg", "y"))
	assert.ErrorIs(t, err, context.Canceled)

	snap := st.Snapshot()
	assert.Equal(t, models.JobRunning, snap.Status)
	assert.Zero(t, snap.Progress)
}

func TestRunStopsWhenStateReset(t *testing.T) {
	engine := newEngine(t)
	st, run := begin(t, 3)

	engine.EXPECT().Recognize(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, ocr.Request) ([]ocr.Fragment, error) {
		st.Reset()
		return text("x"), nil
	})

	_, err := NewEvaluator(engine).Run(context.Background(), run, samples("a.jpg", "x", "b.jpg", "y", "c.jpg", "z"))
	var invalid *jobstate.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.True(t, invalid.Stale)
	assert.Equal(t, models.Snapshot{Status: models.JobIdle}, st.Snapshot())
}
