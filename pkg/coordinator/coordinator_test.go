package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirabel-dev/folio/pkg/coordinator/models"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/store/blob/memory"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return New(st, memory.New())
}

// expireLeases backdates every dispatch so the next RequestJob sees no live
// lease.
func expireLeases(t *testing.T, c *Coordinator) {
	t.Helper()
	require.NoError(t, c.Store().DB().Exec(
		"UPDATE dispatches SET dispatched_time = ?",
		time.Now().UTC().Add(-2*LeaseWindow)).Error)
}

func queueOne(t *testing.T, c *Coordinator, workID int64) int64 {
	t.Helper()
	jobID, err := c.QueueWork(context.Background(), QueueWorkInput{
		WorkID:      workID,
		UpdatedTime: 1000,
		Format:      models.FormatPDF,
		Reporter:    "tester",
		Title:       "A Title",
	})
	require.NoError(t, err)
	require.NotNil(t, jobID)
	return *jobID
}

func TestQueueWorkInvalidFormat(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.QueueWork(context.Background(), QueueWorkInput{
		WorkID: 1, UpdatedTime: 1, Format: "docx",
	})
	assert.ErrorIs(t, err, models.ErrInvalidFormat)
}

func TestQueueWorkIdempotent(t *testing.T) {
	c := newTestCoordinator(t)

	first := queueOne(t, c, 1)
	second := queueOne(t, c, 1)
	assert.Equal(t, first, second, "re-reporting returns the existing job")
}

func TestQueueWorkAlreadyArchived(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	// Archive a version at updated_time 1000 through the full pipeline.
	queueOne(t, c, 1)
	order, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, order)
	_, err = c.SubmitJob(ctx, order.DispatchID, order.ReportCode, []byte("content"))
	require.NoError(t, err)

	// An equal or older report is already fetched; a newer one queues.
	jobID, err := c.QueueWork(ctx, QueueWorkInput{
		WorkID: 1, UpdatedTime: 1000, Format: models.FormatPDF,
	})
	require.NoError(t, err)
	assert.Nil(t, jobID)

	jobID, err = c.QueueWork(ctx, QueueWorkInput{
		WorkID: 1, UpdatedTime: 2000, Format: models.FormatPDF,
	})
	require.NoError(t, err)
	assert.NotNil(t, jobID)
}

func TestRequestJobEmptyQueue(t *testing.T) {
	c := newTestCoordinator(t)
	order, err := c.RequestJob(context.Background(), "w1")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestLeaseBlocksSecondWorker(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	queueOne(t, c, 1)

	order, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.True(t, order.GetImg)

	// The job is leased; a second worker sees an empty queue.
	second, err := c.RequestJob(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, second)

	// After lease expiry it is handed out again with a fresh dispatch.
	expireLeases(t, c)
	third, err := c.RequestJob(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, order.JobID, third.JobID)
	assert.NotEqual(t, order.DispatchID, third.DispatchID)
}

func TestSubmitJobCompletes(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	jobID := queueOne(t, c, 1)
	order, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)

	result, err := c.SubmitJob(ctx, order.DispatchID, order.ReportCode, []byte("the pdf bytes"))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)

	status, err := c.JobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, status)

	// The version is readable.
	data, _, err := c.GetHead(ctx, 1, models.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, []byte("the pdf bytes"), data)

	exists, err := c.WorkExists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSubmitJobWrongReportCode(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	queueOne(t, c, 1)
	order, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)

	_, err = c.SubmitJob(ctx, order.DispatchID, order.ReportCode+1, []byte("x"))
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	// The dispatch stays open for the honest holder of the code.
	_, err = c.SubmitJob(ctx, order.DispatchID, order.ReportCode, []byte("x"))
	require.NoError(t, err)
}

func TestSubmitJobTwice(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	queueOne(t, c, 1)
	order, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)

	_, err = c.SubmitJob(ctx, order.DispatchID, order.ReportCode, []byte("x"))
	require.NoError(t, err)

	// A completed dispatch is no longer actionable.
	_, err = c.SubmitJob(ctx, order.DispatchID, order.ReportCode, []byte("y"))
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestExpiredLeaseLoserCannotSubmit(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	jobID := queueOne(t, c, 42)

	first, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, first)

	// The first lease expires and the job is handed out a second time.
	expireLeases(t, c)
	second, err := c.RequestJob(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, second)
	require.NotEqual(t, first.DispatchID, second.DispatchID)

	_, err = c.SubmitJob(ctx, second.DispatchID, second.ReportCode, []byte("fresh bytes"))
	require.NoError(t, err)

	// The job is terminal; the stale holder's upload is rejected and leaves
	// no trace.
	_, err = c.SubmitJob(ctx, first.DispatchID, first.ReportCode, []byte("stale bytes"))
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	status, err := c.JobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, status)

	versions, err := c.WorkVersions(ctx, 42)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	data, _, err := c.GetVersion(ctx, versions[0].StorageID)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh bytes"), data)
}

func TestExpiredLeaseLoserCannotReportFailure(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	jobID := queueOne(t, c, 42)

	first, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)
	expireLeases(t, c)
	second, err := c.RequestJob(ctx, "w2")
	require.NoError(t, err)

	_, err = c.SubmitJob(ctx, second.DispatchID, second.ReportCode, []byte("fresh bytes"))
	require.NoError(t, err)

	// A failure report against the completed job bounces off too.
	err = c.MarkDispatchFail(ctx, first.DispatchID, 404, first.ReportCode)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	status, err := c.JobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, status)
}

func TestSubmitJobDuplicateContent(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	data := []byte("unchanged publisher bytes")

	jobID := queueOne(t, c, 1)
	order, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)
	_, err = c.SubmitJob(ctx, order.DispatchID, order.ReportCode, data)
	require.NoError(t, err)

	// The publisher bumps updated_time but returns identical bytes.
	jobID2, err := c.QueueWork(ctx, QueueWorkInput{
		WorkID: 1, UpdatedTime: 2000, Format: models.FormatPDF,
	})
	require.NoError(t, err)
	require.NotNil(t, jobID2)
	require.NotEqual(t, jobID, *jobID2)

	order, err = c.RequestJob(ctx, "w1")
	require.NoError(t, err)
	result, err := c.SubmitJob(ctx, order.DispatchID, order.ReportCode, data)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)

	// The job still counts as completed and no second version appears.
	status, err := c.JobStatus(ctx, *jobID2)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, status)

	versions, err := c.WorkVersions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestMarkDispatchFail(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	jobID := queueOne(t, c, 1)
	order, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)

	// Wrong code is rejected.
	err = c.MarkDispatchFail(ctx, order.DispatchID, 404, order.ReportCode+1)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	require.NoError(t, c.MarkDispatchFail(ctx, order.DispatchID, 404, order.ReportCode))

	// A failure may be reported once.
	err = c.MarkDispatchFail(ctx, order.DispatchID, 404, order.ReportCode)
	assert.ErrorIs(t, err, models.ErrAlreadyReported)

	// One failure out of three attempts leaves the job queued.
	status, err := c.JobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobInQueue, status)
}

func TestJobFailsAfterDispatchBudget(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	jobID := queueOne(t, c, 1)

	for i := 0; i < MaxDispatchAttempts; i++ {
		order, err := c.RequestJob(ctx, "w1")
		require.NoError(t, err)
		require.NotNil(t, order, "attempt %d", i)
		require.NoError(t, c.MarkDispatchFail(ctx, order.DispatchID, 500, order.ReportCode))
		expireLeases(t, c)
	}

	status, err := c.JobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, status)

	// Nothing left to lease.
	order, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestSilentWorkersExhaustBudget(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	jobID := queueOne(t, c, 1)

	// Three leases expire without any report.
	for i := 0; i < MaxDispatchAttempts; i++ {
		order, err := c.RequestJob(ctx, "w1")
		require.NoError(t, err)
		require.NotNil(t, order, "attempt %d", i)
		expireLeases(t, c)
	}

	// The next lease request fails the job on the spot instead of leasing.
	order, err := c.RequestJob(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, order)

	status, err := c.JobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, status)
}

func TestSideloadWork(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	result, err := c.SideloadWork(ctx, SideloadInput{
		WorkID:      8,
		Data:        []byte("sideloaded bytes"),
		Format:      models.FormatTXT,
		UpdatedTime: 42,
		RequesterID: "librarian",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Unfetched)

	data, entry, err := c.GetHead(ctx, 8, models.FormatTXT)
	require.NoError(t, err)
	assert.Equal(t, []byte("sideloaded bytes"), data)
	assert.Equal(t, "librarian", entry.RetrievedFrom)
}

func TestSideloadWorkInvalidFormat(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.SideloadWork(context.Background(), SideloadInput{
		WorkID: 8, Data: []byte("x"), Format: "rtf",
	})
	assert.ErrorIs(t, err, models.ErrInvalidFormat)
}

func TestSubmitObjectRoundTrip(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	page := []byte(`<html><body><img src="https://pub.example/pic.png"></body></html>`)
	result, err := c.SideloadWork(ctx, SideloadInput{
		WorkID:      3,
		Data:        page,
		Format:      models.FormatHTML,
		UpdatedTime: 1,
	})
	require.NoError(t, err)
	require.Len(t, result.Unfetched, 1)
	objectID := result.Unfetched[0].ObjectID

	payload := []byte("picture bytes")
	require.NoError(t, c.SubmitObject(ctx, objectID, payload, `"e1"`, "image/png"))

	data, index, err := c.GetObject(ctx, objectID)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, "image/png", index.Mimetype)
}

func TestGetVersionHistorical(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	v1 := []byte("first")
	v2 := []byte("second")

	_, err := c.SideloadWork(ctx, SideloadInput{WorkID: 4, Data: v1, Format: models.FormatTXT, UpdatedTime: 1})
	require.NoError(t, err)
	_, err = c.SideloadWork(ctx, SideloadInput{WorkID: 4, Data: v2, Format: models.FormatTXT, UpdatedTime: 2})
	require.NoError(t, err)

	versions, err := c.WorkVersions(ctx, 4)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	for _, v := range versions {
		data, entry, err := c.GetVersion(ctx, v.StorageID)
		require.NoError(t, err)
		assert.Equal(t, v.StorageID, entry.StorageID)
		if entry.UpdatedTime == 1 {
			assert.Equal(t, v1, data)
		} else {
			assert.Equal(t, v2, data)
		}
	}
}
