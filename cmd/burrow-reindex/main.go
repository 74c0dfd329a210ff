package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/burrow", "Burrow data directory")
	dryRun     = flag.Bool("dry-run", false, "Show what would change without making changes")
	backupPath = flag.String("backup", "", "Backup path for the database (default: <data-dir>/burrow.db.backup)")
	rollback   = flag.Int64("rollback", 0, "Roll the sync cursor back N blocks instead of wiping")
	genesis    = flag.Int64("genesis", 0, "Cursor floor when wiping or rolling back")
)

var (
	bucketRecords  = []byte("records")
	bucketCreators = []byte("creators")
	bucketProgress = []byte("sync_progress")
	progressKey    = []byte("progress")
)

// progress mirrors the daemon's persisted cursor.
type progress struct {
	LatestIndexedBlock int64     `json:"latestIndexedBlock"`
	LatestTx           string    `json:"latestTx"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Burrow Reindex Tool")
	log.Println("===================")

	if *rollback < 0 {
		log.Fatal("--rollback must be non-negative")
	}

	dbPath := filepath.Join(*dataDir, "burrow.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Database not found at %s (is the daemon's DATA_DIR %s?)", dbPath, *dataDir)
	}

	log.Printf("Database: %s", dbPath)
	log.Printf("Dry run: %v", *dryRun)

	// The daemon must be stopped: bbolt takes an exclusive lock.
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		log.Fatalf("Failed to open database (daemon still running?): %v", err)
	}
	defer db.Close()

	if err := ensureBurrowDB(db); err != nil {
		log.Fatalf("%v", err)
	}

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := backupDB(db, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("✓ Backup created successfully")
	}

	if *rollback > 0 {
		err = rollbackCursor(db, *rollback, *genesis, *dryRun)
	} else {
		err = wipeIndex(db, *genesis, *dryRun)
	}
	if err != nil {
		log.Fatalf("Reindex failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to apply.")
	} else {
		log.Println("\n✓ Done. Restart the daemon to begin re-walking the chain.")
	}
}

// wipeIndex drops every record and creator and resets the cursor to
// genesis. Templates are kept: they are chain-derived, harmless when
// stale, and needed to validate peer records while the re-walk runs.
func wipeIndex(db *bolt.DB, genesis int64, dryRun bool) error {
	var records, creators int
	err := db.View(func(tx *bolt.Tx) error {
		records = tx.Bucket(bucketRecords).Stats().KeyN
		creators = tx.Bucket(bucketCreators).Stats().KeyN
		return nil
	})
	if err != nil {
		return err
	}

	cur, err := readCursor(db)
	if err != nil {
		return err
	}
	log.Printf("Found %d records, %d creators, cursor at block %d", records, creators, cur.LatestIndexedBlock)

	if dryRun {
		log.Println("\n[DRY RUN] Would perform the following operations:")
		log.Printf("1. Delete %d records", records)
		log.Printf("2. Delete %d creators", creators)
		log.Printf("3. Reset the sync cursor to block %d", genesis)
		log.Println("4. Keep templates (re-validated during the re-walk)")
		return nil
	}

	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketCreators} {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("drop bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("recreate bucket %s: %w", name, err)
			}
			log.Printf("✓ Wiped bucket %s", name)
		}
		if err := writeCursor(tx, genesis); err != nil {
			return err
		}
		log.Printf("✓ Cursor reset to block %d", genesis)
		return nil
	})
}

// rollbackCursor moves the cursor back n blocks, floored at genesis.
// Records are left in place: the re-walk upserts them idempotently.
func rollbackCursor(db *bolt.DB, n, genesis int64, dryRun bool) error {
	cur, err := readCursor(db)
	if err != nil {
		return err
	}

	target := cur.LatestIndexedBlock - n
	if target < genesis {
		target = genesis
	}
	log.Printf("Cursor at block %d, rolling back %d to block %d", cur.LatestIndexedBlock, n, target)

	if dryRun {
		log.Println("\n[DRY RUN] Would perform the following operations:")
		log.Printf("1. Set the sync cursor to block %d (tx position cleared)", target)
		log.Println("2. Keep all indexed records (the re-walk overwrites them)")
		return nil
	}

	err = db.Update(func(tx *bolt.Tx) error {
		return writeCursor(tx, target)
	})
	if err != nil {
		return err
	}
	log.Printf("✓ Cursor rolled back to block %d", target)
	return nil
}

// ensureBurrowDB refuses to touch a database without the daemon's
// buckets, so pointing the tool at the wrong file cannot destroy it.
func ensureBurrowDB(db *bolt.DB) error {
	return db.View(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketCreators, bucketProgress} {
			if tx.Bucket(name) == nil {
				return fmt.Errorf("bucket %s missing: not a burrow database", name)
			}
		}
		return nil
	})
}

func readCursor(db *bolt.DB) (*progress, error) {
	var cur progress
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProgress).Get(progressKey)
		if data == nil {
			return nil // fresh database, zero cursor
		}
		return json.Unmarshal(data, &cur)
	})
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	return &cur, nil
}

// writeCursor persists a block-boundary cursor: LatestTx is cleared so
// the walker re-lists the whole target block.
func writeCursor(tx *bolt.Tx, block int64) error {
	data, err := json.Marshal(&progress{
		LatestIndexedBlock: block,
		UpdatedAt:          time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketProgress).Put(progressKey, data); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}

// backupDB writes a consistent snapshot through a read transaction, so
// it is safe even though we hold the database open.
func backupDB(db *bolt.DB, dst string) error {
	return db.View(func(tx *bolt.Tx) error {
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := tx.WriteTo(f); err != nil {
			return err
		}
		return f.Sync()
	})
}
