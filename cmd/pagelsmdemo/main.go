// Command pagelsmdemo drives the pagelsm engine through a fixed sequence of
// operations, printing what it does and the database's stats along the way.
// It is not a shell: it takes no input and accepts no commands, only
// demonstrating the public API end to end.
package main

import (
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/arvindshah/pagelsm"
)

func main() {
	dbPath, err := os.MkdirTemp("", "pagelsmdemo-*")
	if err != nil {
		log.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dbPath)

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	fmt.Println("=== Basic Put and Get ===")
	basicPutGet(dbPath, logger)

	fmt.Println("\n=== Delete and tombstone shadowing ===")
	deleteOperations(dbPath, logger)

	fmt.Println("\n=== Reopen and recover from the metadata log ===")
	persistenceExample(dbPath, logger)

	fmt.Println("\n=== Compaction across levels ===")
	compactionExample(dbPath, logger)

	fmt.Println("\n=== Range scan ===")
	scanExample(dbPath, logger)
}

func mustOpen(dbPath string, opts *pagelsm.Options, logger *zap.Logger) *pagelsm.Engine {
	db, err := pagelsm.Open(dbPath, opts, logger)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	return db
}

func basicPutGet(dbPath string, logger *zap.Logger) {
	db := mustOpen(dbPath, nil, logger)
	defer db.Close()

	pairs := map[int64]int64{1: 100, 2: 200, 3: 300}
	for k, v := range pairs {
		if err := db.Put(k, v); err != nil {
			log.Fatalf("put %d failed: %v", k, err)
		}
	}
	for k := range pairs {
		v, err := db.Get(k)
		if err != nil {
			log.Fatalf("get %d failed: %v", k, err)
		}
		fmt.Printf("Get(%d) = %d\n", k, v)
	}

	miss, err := db.Get(999)
	if err != nil {
		log.Fatalf("get 999 failed: %v", err)
	}
	fmt.Printf("Get(999) = %d (absent)\n", miss)
}

func deleteOperations(dbPath string, logger *zap.Logger) {
	os.RemoveAll(dbPath)
	db := mustOpen(dbPath, nil, logger)
	defer db.Close()

	must(db.Put(10, 1000))
	v, _ := db.Get(10)
	fmt.Printf("before delete: Get(10) = %d\n", v)

	must(db.Del(10))
	v, _ = db.Get(10)
	fmt.Printf("after delete: Get(10) = %d\n", v)
}

func persistenceExample(dbPath string, logger *zap.Logger) {
	os.RemoveAll(dbPath)
	opts := pagelsm.DefaultOptions()
	opts.MemtableThreshold = 2

	db := mustOpen(dbPath, opts, logger)
	must(db.Put(1, 10))
	must(db.Put(2, 20))
	must(db.Put(3, 30))
	stats, _ := db.Stats()
	fmt.Printf("before close: %+v\n", stats)
	must(db.Close())

	reopened := mustOpen(dbPath, opts, logger)
	defer reopened.Close()
	v, err := reopened.Get(2)
	if err != nil {
		log.Fatalf("get after reopen failed: %v", err)
	}
	fmt.Printf("after reopen: Get(2) = %d\n", v)
	stats, _ = reopened.Stats()
	fmt.Printf("after reopen: %+v\n", stats)
}

func compactionExample(dbPath string, logger *zap.Logger) {
	os.RemoveAll(dbPath)
	opts := pagelsm.DefaultOptions()
	opts.MemtableThreshold = 3
	opts.LevelSizeRatio = 2

	db := mustOpen(dbPath, opts, logger)
	defer db.Close()

	for i := int64(1); i <= 12; i++ {
		must(db.Put(i, i*10))
	}
	stats, _ := db.Stats()
	fmt.Printf("after 12 puts (threshold 3): %+v\n", stats)

	v, err := db.Get(7)
	if err != nil {
		log.Fatalf("get 7 failed: %v", err)
	}
	fmt.Printf("Get(7) = %d (survives compaction)\n", v)
}

func scanExample(dbPath string, logger *zap.Logger) {
	os.RemoveAll(dbPath)
	db := mustOpen(dbPath, nil, logger)
	defer db.Close()

	for i := int64(1); i <= 5; i++ {
		must(db.Put(i, i*100))
	}
	must(db.Del(3))

	entries, err := db.Scan(1, 5)
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}
	for _, e := range entries {
		fmt.Printf("Scan: %d => %d\n", e.Key, e.Value)
	}
}

func must(err error) {
	if err != nil {
		log.Fatalf("operation failed: %v", err)
	}
}
