// Command coupon-ingest bulk-loads coupon codes into a discount's coupon set
// from one or more gzip-compressed code lists (one code per line). Files are
// scanned concurrently; a bloom filter drops the bulk of cross-file
// duplicates cheaply before the exact dedup set is consulted.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/webdna/commerce-multi-coupon/internal/storage/postgres"
)

const (
	bloomCapacity = 100_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 4
	maxCodeLen    = 32
)

func main() {
	var (
		databaseURL string
		discountID  int64
		maxUses     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Int64Var(&discountID, "discount-id", 0, "discount the codes belong to")
	flag.IntVar(&maxUses, "max-uses", 0, "per-coupon use limit (0 = unlimited)")
	flag.Parse()

	files := flag.Args()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if discountID == 0 {
		slog.Error("--discount-id is required")
		os.Exit(1)
	}
	if len(files) == 0 {
		slog.Error("at least one code file argument is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, discountID, maxUses, files); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, discountID int64, maxUses int, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	codes, err := collectCodes(ctx, files)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}

	slog.Info("distinct codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, pool, discountID, maxUses, codes)
}

// collector dedups codes across concurrently scanned files. The bloom
// filter answers "definitely new" without touching the exact set; only
// possible repeats pay for the map lookup.
type collector struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	seen   map[string]struct{}
	codes  []string
}

func (c *collector) add(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filter.TestAndAddString(code) {
		if _, ok := c.seen[code]; ok {
			return
		}
	}
	c.seen[code] = struct{}{}
	c.codes = append(c.codes, code)
}

// collectCodes streams every file concurrently and returns the distinct
// codes in first-seen order.
func collectCodes(ctx context.Context, files []string) ([]string, error) {
	c := &collector{
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		seen:   make(map[string]struct{}),
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(scanFile(ctx, i, f, c))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return c.codes, nil
}

func scanFile(ctx context.Context, idx int, path string, c *collector) func() error {
	return func() error {
		var count uint64
		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}
			c.add(code)
			count++
			if count%progressEvery == 0 {
				slog.Info("scan progress",
					slog.Int("file", idx+1),
					slog.Uint64("codes", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d", idx+1)
		}

		slog.Info("scan complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
		)
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeCoupons bulk-inserts the codes with COPY.
func writeCoupons(ctx context.Context, pool *pgxpool.Pool, discountID int64, maxUses int, codes []string) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)))

	var maxUsesVal *int
	if maxUses > 0 {
		maxUsesVal = &maxUses
	}

	rows := make([][]any, len(codes))
	for i, code := range codes {
		rows[i] = []any{discountID, code, maxUsesVal, 0}
	}

	written, err := pool.CopyFrom(ctx,
		pgx.Identifier{"coupons"},
		[]string{"discount_id", "code", "max_uses", "uses"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return errors.Wrap(err, "copy coupons")
	}

	slog.Info("coupons written", slog.Int64("count", written))
	return nil
}
