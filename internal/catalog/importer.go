package catalog

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"math/bits"
	"os"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-cart/internal/domain/product"
)

// MaxFiles is the number of dumps one import can merge.
const MaxFiles = bits.UintSize

const maxLineSize = 1 << 20

// Sink receives imported products.
type Sink interface {
	Upsert(ctx context.Context, products []product.Product) error
}

// ImportConfig tunes an Importer.
type ImportConfig struct {
	// ExpectedRecords sizes the per-file bloom filters.
	ExpectedRecords uint
	// FalsePositiveRate of the bloom filters.
	FalsePositiveRate float64
	// BatchSize is the number of products per Sink call.
	BatchSize int
}

func (c *ImportConfig) setDefaults() {
	if c.ExpectedRecords == 0 {
		c.ExpectedRecords = 1_000_000
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = 0.001
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
}

// Stats reports the outcome of an import.
type Stats struct {
	Files      int
	Records    int64
	Invalid    int64
	Candidates int
	Upserted   int64
	Superseded int64
}

// Importer merges product dumps in JSON-lines form, optionally gzipped.
// When a product ID occurs in several dumps the record from the last dump
// in argument order wins.
type Importer struct {
	cfg  ImportConfig
	sink Sink
}

// NewImporter creates an Importer writing to sink.
func NewImporter(sink Sink, cfg ImportConfig) *Importer {
	cfg.setDefaults()
	return &Importer{cfg: cfg, sink: sink}
}

// Import runs three passes over files. Pass 1 builds one bloom filter of IDs
// per file. Pass 2 collects the IDs that hit another file's filter, with a
// bitmask of the files they were seen in. Pass 3 upserts every record whose
// ID is unique or whose newest file is the one being read.
func (im *Importer) Import(ctx context.Context, files []string) (*Stats, error) {
	if len(files) == 0 {
		return nil, errors.New("no input files")
	}
	if len(files) > MaxFiles {
		return nil, errors.Errorf("at most %d files can be imported at once", MaxFiles)
	}
	lg := zctx.From(ctx)
	stats := &Stats{Files: len(files)}

	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := im.buildFilters(ctx, files, stats)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Pass 2: finding duplicate candidates")
	seenIn, err := im.findCandidates(ctx, files, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}
	stats.Candidates = len(seenIn)
	lg.Info("Candidates found", zap.Int("count", len(seenIn)))

	lg.Info("Pass 3: upserting products")
	if err := im.write(ctx, files, seenIn, stats); err != nil {
		return nil, errors.Wrap(err, "write products")
	}
	return stats, nil
}

func (im *Importer) buildFilters(ctx context.Context, files []string, stats *Stats) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	var records, invalid atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.cfg.ExpectedRecords, im.cfg.FalsePositiveRate)
			err := streamRecords(ctx, path, func(p product.Product) error {
				filter.AddString(p.ID)
				records.Add(1)
				return nil
			}, func(int, error) { invalid.Add(1) })
			if err != nil {
				return err
			}
			zctx.From(ctx).Info("Pass 1 file done",
				zap.String("file", path),
				zap.Uint("approx_ids", uint(filter.ApproximatedSize())),
			)
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.Records = records.Load()
	stats.Invalid = invalid.Load()
	return filters, nil
}

func (im *Importer) findCandidates(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]uint, error) {
	perFile := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			bit := uint(1) << uint(i)
			err := streamRecords(ctx, path, func(p product.Product) error {
				for j, f := range filters {
					if j != i && f.TestString(p.ID) {
						candidates[p.ID] |= bit
						break
					}
				}
				return nil
			}, nil)
			if err != nil {
				return err
			}
			perFile[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, candidates := range perFile {
		for id, mask := range candidates {
			merged[id] |= mask
		}
	}
	return merged, nil
}

// owner returns the index of the newest file that contains the ID.
func owner(mask uint) int {
	return bits.Len(mask) - 1
}

func (im *Importer) write(ctx context.Context, files []string, seenIn map[string]uint, stats *Stats) error {
	var upserted, superseded atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			batch := make([]product.Product, 0, im.cfg.BatchSize)
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				if err := im.sink.Upsert(ctx, batch); err != nil {
					return errors.Wrapf(err, "upsert batch from %s", path)
				}
				upserted.Add(int64(len(batch)))
				batch = batch[:0]
				return nil
			}
			err := streamRecords(ctx, path, func(p product.Product) error {
				if mask, ok := seenIn[p.ID]; ok && owner(mask) != i {
					superseded.Add(1)
					return nil
				}
				batch = append(batch, p)
				if len(batch) >= im.cfg.BatchSize {
					return flush()
				}
				return nil
			}, nil)
			if err != nil {
				return err
			}
			return flush()
		})
	}
	err := g.Wait()
	stats.Upserted = upserted.Load()
	stats.Superseded = superseded.Load()
	return err
}

// streamRecords calls fn for each valid product line of path. Invalid lines
// are reported to onInvalid, when set, and skipped.
func streamRecords(ctx context.Context, path string, fn func(product.Product) error, onInvalid func(line int, err error)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	if err := DecodeLines(ctx, r, fn, onInvalid); err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	return nil
}

// DecodeLines reads one product object per line from r. Blank lines are
// ignored.
func DecodeLines(ctx context.Context, r io.Reader, fn func(product.Product) error, onInvalid func(line int, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		p, err := readProduct(jx.DecodeBytes(data))
		if err != nil {
			if onInvalid != nil {
				onInvalid(line, err)
			}
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return scanner.Err()
}
