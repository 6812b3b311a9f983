package vtq_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sentinelle/dbopen"
	"github.com/hazyhaar/sentinelle/vtq"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t)
}

func newQ(t *testing.T, db *sql.DB, opts vtq.Options) *vtq.Q {
	t.Helper()
	q := vtq.New(db, opts)
	if err := q.EnsureTable(context.Background()); err != nil {
		t.Fatal(err)
	}
	return q
}

func TestPublishAndClaim(t *testing.T) {
	db := openDB(t)
	q := newQ(t, db, vtq.Options{Visibility: time.Second})

	ctx := context.Background()

	if err := q.Publish(ctx, "j1", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("expected a job")
	}
	if job.ID != "j1" {
		t.Fatalf("got id %q, want j1", job.ID)
	}
	if string(job.Payload) != "hello" {
		t.Fatalf("got payload %q, want hello", string(job.Payload))
	}
	if job.Attempts != 1 {
		t.Fatalf("got attempts %d, want 1", job.Attempts)
	}

	// Second claim returns nil — job is invisible.
	job2, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job2 != nil {
		t.Fatal("expected nil, job should be invisible")
	}
}

func TestPublishOnce(t *testing.T) {
	db := openDB(t)
	q := newQ(t, db, vtq.Options{Visibility: time.Second})
	ctx := context.Background()

	if err := q.PublishOnce(ctx, "alr-1", nil); err != nil {
		t.Fatal(err)
	}
	// Re-enqueueing the same ID while queued is a no-op.
	if err := q.PublishOnce(ctx, "alr-1", nil); err != nil {
		t.Fatal(err)
	}
	n, _ := q.Len(ctx)
	if n != 1 {
		t.Fatalf("got len %d, want 1", n)
	}

	// After the job is acked the ID can be enqueued again.
	job, _ := q.Claim(ctx)
	q.Ack(ctx, job.ID)
	if err := q.PublishOnce(ctx, "alr-1", nil); err != nil {
		t.Fatal(err)
	}
	n, _ = q.Len(ctx)
	if n != 1 {
		t.Fatalf("got len %d after requeue, want 1", n)
	}
}

func TestAck(t *testing.T) {
	db := openDB(t)
	q := newQ(t, db, vtq.Options{Visibility: time.Second})
	ctx := context.Background()

	q.Publish(ctx, "j1", nil)
	job, _ := q.Claim(ctx)
	if err := q.Ack(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	n, _ := q.Len(ctx)
	if n != 0 {
		t.Fatalf("queue should be empty after ack, got %d", n)
	}
}

func TestNack(t *testing.T) {
	db := openDB(t)
	q := newQ(t, db, vtq.Options{Visibility: 10 * time.Second})
	ctx := context.Background()

	q.Publish(ctx, "j1", []byte("retry-me"))
	job, _ := q.Claim(ctx)

	// Nack makes it visible again immediately.
	if err := q.Nack(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	job2, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job2 == nil {
		t.Fatal("expected job after nack")
	}
	if job2.Attempts != 2 {
		t.Fatalf("got attempts %d, want 2", job2.Attempts)
	}
}

func TestVisibilityTimeout(t *testing.T) {
	db := openDB(t)
	q := newQ(t, db, vtq.Options{Visibility: 50 * time.Millisecond})
	ctx := context.Background()

	q.Publish(ctx, "j1", nil)
	q.Claim(ctx) // claimed, invisible for 50ms

	// Immediately invisible.
	job, _ := q.Claim(ctx)
	if job != nil {
		t.Fatal("job should be invisible")
	}

	// Wait for visibility to expire.
	time.Sleep(80 * time.Millisecond)

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("job should have reappeared")
	}
	if job.Attempts != 2 {
		t.Fatalf("got attempts %d, want 2", job.Attempts)
	}
}

func TestMultipleQueues(t *testing.T) {
	db := openDB(t)
	q1 := newQ(t, db, vtq.Options{Queue: "alpha", Visibility: time.Second})
	q2 := newQ(t, db, vtq.Options{Queue: "beta", Visibility: time.Second})
	ctx := context.Background()

	q1.Publish(ctx, "a1", []byte("alpha"))
	q2.Publish(ctx, "b1", []byte("beta"))

	j1, _ := q1.Claim(ctx)
	j2, _ := q2.Claim(ctx)

	if j1 == nil || j1.ID != "a1" {
		t.Fatal("q1 should get a1")
	}
	if j2 == nil || j2.ID != "b1" {
		t.Fatal("q2 should get b1")
	}

	// q1 should not see q2's job.
	j, _ := q1.Claim(ctx)
	if j != nil {
		t.Fatal("q1 should have no more jobs")
	}
}

func TestRunConsumer(t *testing.T) {
	db := openDB(t)
	q := newQ(t, db, vtq.Options{
		Visibility:   time.Second,
		PollInterval: 10 * time.Millisecond,
		Workers:      2,
	})
	ctx := context.Background()

	q.Publish(ctx, "j1", []byte("one"))
	q.Publish(ctx, "j2", []byte("two"))
	q.Publish(ctx, "j3", []byte("three"))

	var mu sync.Mutex
	var got []string

	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	q.Run(runCtx, func(_ context.Context, j *vtq.Job) error {
		mu.Lock()
		got = append(got, j.ID)
		if len(got) == 3 {
			cancel()
		}
		mu.Unlock()
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("handled %d jobs, want 3: %v", len(got), got)
	}
	n, _ := q.Len(ctx)
	if n != 0 {
		t.Fatalf("queue should drain, got len=%d", n)
	}
}
