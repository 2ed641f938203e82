package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fenndb/fenndb/internal/enginebridge"
)

func main() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("fenndb Storage Core Demo: Paged Files, Buffer Pool, B+ Tree Index")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
	fmt.Println("This demo walks through the full storage stack end to end:")
	fmt.Println("  • Disk:   fixed-size pages, a header page tracking page count")
	fmt.Println("  • Buffer: pin-counted LRU cache of resident pages")
	fmt.Println("  • Pager:  page allocation on top of disk + buffer")
	fmt.Println("  • B+tree: typed index mapping keys to heap-page record ids")
	fmt.Println()

	demoPutGetDelete()
	fmt.Println()
	demoOverwrite()
	fmt.Println()
	demoRangeScan()
	fmt.Println()
	demoCompaction()
}

func demoPutGetDelete() {
	fmt.Println("### Put / Get / Delete ###")
	fmt.Println(strings.Repeat("-", 40))

	dbPath := "./data-demo.db"
	defer os.Remove(dbPath)

	cfg := enginebridge.DefaultConfig(dbPath)
	e, err := enginebridge.New(cfg, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	fmt.Println("✓ Created a fresh database file")

	fmt.Println("\n[Writing data]")
	testData := map[string]string{
		"user:1001":   `{"name": "Alice", "age": 30, "city": "NYC"}`,
		"user:1002":   `{"name": "Bob", "age": 25, "city": "SF"}`,
		"user:1003":   `{"name": "Charlie", "age": 35, "city": "LA"}`,
		"product:101": `{"name": "Laptop", "price": 999.99}`,
		"product:102": `{"name": "Mouse", "price": 29.99}`,
	}

	for key, value := range testData {
		if err := e.Put([]byte(key), []byte(value)); err != nil {
			log.Printf("Error writing %s: %v", key, err)
			continue
		}
		fmt.Printf("  PUT %s\n", key)
	}

	fmt.Println("\n[Reading data]")
	for key := range testData {
		value, err := e.Get([]byte(key))
		if err != nil {
			log.Printf("Error reading %s: %v", key, err)
			continue
		}
		fmt.Printf("  GET %s -> %s\n", key, truncate(string(value), 40))
	}

	fmt.Println("\n[Deleting data]")
	if err := e.Delete([]byte("product:102")); err != nil {
		log.Printf("Error deleting: %v", err)
	} else {
		fmt.Println("  DELETE product:102")
	}

	if _, err := e.Get([]byte("product:102")); err != nil {
		fmt.Println("  GET product:102 -> key not found (as expected)")
	}

	printStats(e)
}

func demoOverwrite() {
	fmt.Println("### Overwrite ###")
	fmt.Println(strings.Repeat("-", 40))

	dbPath := "./data-demo-overwrite.db"
	defer os.Remove(dbPath)

	e, err := enginebridge.New(enginebridge.DefaultConfig(dbPath), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	e.Put([]byte("config:app"), []byte(`{"version": "1.0", "debug": false}`))
	fmt.Println("  PUT config:app -> v1.0")

	e.Put([]byte("config:app"), []byte(`{"version": "2.0", "debug": true}`))
	fmt.Println("  PUT config:app -> v2.0 (overwrite: old index entry and heap record are retired)")

	value, _ := e.Get([]byte("config:app"))
	fmt.Printf("  GET config:app -> %s\n", truncate(string(value), 60))

	printStats(e)
}

func demoRangeScan() {
	fmt.Println("### B+ Tree Range Scan ###")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Println("Leaves are chained, so a scan walks sideways instead of")
	fmt.Println("re-descending the tree for every key.")

	dbPath := "./data-demo-range.db"
	defer os.Remove(dbPath)

	e, err := enginebridge.New(enginebridge.DefaultConfig(dbPath), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	fmt.Println("\n[Loading session keys]")
	const n = 20
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("session:%04d", i)
		value := fmt.Sprintf(`{"user_id": %d}`, 1000+i)
		if err := e.Put([]byte(key), []byte(value)); err != nil {
			log.Fatal(err)
		}
	}
	fmt.Printf("  Loaded %d keys\n", n)

	fmt.Println("\n[Scanning session:0005 .. session:0010] (inclusive)")
	pairs, err := e.Range([]byte("session:0005"), []byte("session:0010"))
	if err != nil {
		log.Fatal(err)
	}
	for _, p := range pairs {
		fmt.Printf("  %s -> %s\n", p.Key, truncate(string(p.Value), 40))
	}
	fmt.Printf("  Total: %d keys in range\n", len(pairs))
}

func demoCompaction() {
	fmt.Println("### Compaction ###")
	fmt.Println(strings.Repeat("-", 40))

	dbPath := "./data-demo-compact.db"
	defer os.Remove(dbPath)

	e, err := enginebridge.New(enginebridge.DefaultConfig(dbPath), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("tmp:%03d", i)
		e.Put([]byte(key), []byte("throwaway value"))
	}
	for i := 0; i < 50; i++ {
		e.Delete([]byte(fmt.Sprintf("tmp:%03d", i)))
	}
	fmt.Println("  Wrote and deleted 50 keys, leaving tombstones on the heap pages")

	if err := e.Compact(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("  Compact() repacked every heap page, reclaiming tombstoned space")

	printStats(e)
}

func printStats(e *enginebridge.Engine) {
	stats := e.Stats()
	fmt.Println("\n[Statistics]")
	fmt.Printf("  Keys: %d\n", stats.NumKeys)
	fmt.Printf("  Disk Usage: %.2f MB\n", float64(stats.TotalDiskSize)/(1024*1024))
	fmt.Printf("  Write Amplification: %.2fx\n", stats.WriteAmp)
	fmt.Printf("  Space Amplification: %.2fx\n", stats.SpaceAmp)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
