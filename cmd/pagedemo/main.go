// Command pagedemo drives a pagedb database end to end: it creates a
// table, bulk-inserts rows, builds an index, runs a range search, and
// registers both in a catalog, printing each step as it goes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/SimonWaldherr/pagedb"
	"github.com/SimonWaldherr/pagedb/internal/storage/record"
)

func main() {
	dir := flag.String("dir", "./pagedemo.db", "database directory")
	rows := flag.Int("rows", 1000, "number of rows to insert")
	flag.Parse()

	fmt.Println("=== pagedb demo ===")
	fmt.Println()

	cfg := pagedb.DefaultConfig()
	db, err := pagedb.Open(*dir, cfg)
	if err != nil {
		log.Fatalf("open %q: %v", *dir, err)
	}
	defer db.Close()

	catalog, err := pagedb.OpenCatalog(*dir)
	if err != nil {
		catalog, err = pagedb.CreateCatalog(*dir)
		if err != nil {
			log.Fatalf("open catalog: %v", err)
		}
	}

	schema := record.NewTableSchema("events", []record.ColumnDef{
		{Name: "id", Type: record.Int(), NotNull: true},
		{Name: "label", Type: record.Char(24)},
		{Name: "value", Type: record.Float()},
	})

	fmt.Println("1. Creating table 'events'...")
	if _, err := db.CreateTable("events", schema); err != nil {
		log.Fatalf("create table: %v", err)
	}
	tableID, err := catalog.PutTable(schema)
	if err != nil {
		log.Fatalf("register table: %v", err)
	}
	fmt.Printf("   table id: %s\n\n", tableID)

	fmt.Printf("2. Bulk-inserting %d rows...\n", *rows)
	records := make([]record.Record, *rows)
	for i := 0; i < *rows; i++ {
		records[i] = record.NewRecord(
			record.IntValue(int32(i)),
			record.StringValue(fmt.Sprintf("evt-%d", i)),
			record.FloatValue(float64(i)*1.5),
		)
	}
	ctx := context.Background()
	ids, err := db.BulkInsert(ctx, "events", records)
	if err != nil {
		log.Fatalf("bulk insert: %v", err)
	}
	fmt.Printf("   inserted %d rows\n\n", len(ids))

	fmt.Println("3. Building index on 'id'...")
	_, stats, err := db.CreateIndexFromTable(ctx, "events", "id", func(r record.Record) int64 {
		return int64(r.Values[0].Int)
	})
	if err != nil {
		log.Fatalf("create index: %v", err)
	}
	if _, err := catalog.PutIndex("events", "id"); err != nil {
		log.Fatalf("register index: %v", err)
	}
	fmt.Printf("   entries=%d optimal_depth=%d actual_height=%d\n\n",
		stats.Entries, stats.OptimalDepth, stats.ActualHeight)

	fmt.Println("4. Range search id in [100, 110]...")
	idx, err := db.Indexes().Get("events", "id")
	if err != nil {
		log.Fatalf("get index: %v", err)
	}
	for _, pair := range idx.RangeSearch(100, 110) {
		fmt.Printf("   id=%d -> page=%d slot=%d\n", pair.Key, pair.Value.PageID, pair.Value.SlotID)
	}
	fmt.Println()

	sched := pagedb.NewFlushScheduler(db)
	if err := sched.Start("@every 5s"); err != nil {
		log.Fatalf("start flush scheduler: %v", err)
	}
	defer sched.Stop()

	fmt.Println("5. Flushing...")
	if err := db.FlushAll(); err != nil {
		log.Fatalf("flush: %v", err)
	}
	fmt.Println("   done")
}
