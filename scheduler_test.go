package pagedb

import (
	"testing"
	"time"

	"github.com/SimonWaldherr/pagedb/internal/storage/record"
)

func TestFlushSchedulerRunsOnSchedule(t *testing.T) {
	db, err := Open(t.TempDir(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	tf, err := db.CreateTable("events", sampleSchema())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tf.Insert(record.NewRecord(record.IntValue(1), record.NullValue(), record.NullValue())); err != nil {
		t.Fatal(err)
	}

	sched := NewFlushScheduler(db)
	if err := sched.Start("@every 1s"); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	time.Sleep(1200 * time.Millisecond)
	sched.Stop()

	if err := sched.LastError(); err != nil {
		t.Fatalf("scheduled flush reported an error: %v", err)
	}
}
