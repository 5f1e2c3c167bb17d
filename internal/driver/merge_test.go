package driver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"modscan/internal/decl"
	"modscan/internal/pipeline"
	"modscan/internal/shard"
	"modscan/internal/testkit"
)

// memLoader serves shards from memory and hands out fresh copies, since
// merging takes ownership of the records.
type memLoader struct {
	shards map[string][]*decl.Decl
	fail   map[string]error
}

func (l *memLoader) Load(path string) ([]*decl.Decl, error) {
	if err, ok := l.fail[path]; ok {
		return nil, err
	}
	src, ok := l.shards[path]
	if !ok {
		return nil, &shard.DecodeError{Path: path, Record: -1, Err: errors.New("missing")}
	}
	out := make([]*decl.Decl, len(src))
	for i, d := range src {
		out[i] = d.Clone()
	}
	return out, nil
}

func (l *memLoader) paths() []string {
	out := make([]string, 0, len(l.shards))
	for p := range l.shards {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []pipeline.Event
}

func (s *recordingSink) OnEvent(ev pipeline.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) count(stage pipeline.Stage, status pipeline.Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Stage == stage && ev.Status == status {
			n++
		}
	}
	return n
}

// syntheticShards spreads uses of a few symbols over many shards so that
// every worker sees overlapping USRs.
func syntheticShards(n int) *memLoader {
	l := &memLoader{shards: make(map[string][]*decl.Decl, n)}
	for i := 0; i < n; i++ {
		mod := fmt.Sprintf("mod%d", i%5)
		var records []*decl.Decl
		for s := 0; s < 8; s++ {
			usr := fmt.Sprintf("c:@F@sym%d#", s)
			owner := fmt.Sprintf("mod%d", s%5)
			records = append(records, &decl.Decl{
				USR:         usr,
				DisplayName: fmt.Sprintf("sym%d", s),
				Kind:        "FUNCTION_DECL",
				Loc:         fmt.Sprintf("src/%s/sym%d.h:%d", owner, s, 1+(i%3)),
				Mod:         owner,
				Defined:     i%4 == s%4,
				Visibility:  decl.VisibilityPrivate,
				UsedFrom:    decl.ModSet{mod: decl.NewLocSet(fmt.Sprintf("src/%s/unit%d.cpp:%d", mod, i, s))},
			})
		}
		l.shards[fmt.Sprintf("out/unit%03d.mod_scanner_decls.json.zst", i)] = records
	}
	return l
}

func usagePairs(t decl.Table) map[string][]string {
	out := make(map[string][]string, len(t))
	for usr, d := range t {
		var pairs []string
		for mod, locs := range d.UsedFrom {
			for loc := range locs {
				pairs = append(pairs, mod+"|"+loc)
			}
		}
		sort.Strings(pairs)
		out[usr] = pairs
	}
	return out
}

func TestMergeShardsParallelMatchesSerial(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader := syntheticShards(40)
	serial, err := MergeShards(context.Background(), loader.paths(), Options{Jobs: 1, Loader: loader})
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	for _, jobs := range []int{2, 4, 16, 0} {
		t.Run(fmt.Sprintf("jobs=%d", jobs), func(t *testing.T) {
			sink := &recordingSink{}
			res, err := MergeShards(context.Background(), loader.paths(), Options{Jobs: jobs, Loader: loader, Progress: sink})
			if err != nil {
				t.Fatalf("parallel: %v", err)
			}
			if res.Shards != 40 || res.Records != 320 {
				t.Fatalf("shards=%d records=%d, want 40/320", res.Shards, res.Records)
			}
			if diff := cmp.Diff(usagePairs(serial.Table), usagePairs(res.Table)); diff != "" {
				t.Fatalf("used_from differs from serial merge (-serial +parallel):\n%s", diff)
			}
			if got := sink.count(pipeline.StageMerge, pipeline.StatusDone); got != 40 {
				t.Fatalf("expected 40 merge events, got %d", got)
			}
			if err := testkit.CheckTableInvariants(res.Table); err != nil {
				t.Fatal(err)
			}
			for usr, d := range res.Table {
				if !d.Defined {
					t.Fatalf("%s: expected a defining record to win", usr)
				}
			}
		})
	}
}

func TestMergeShardsEmpty(t *testing.T) {
	res, err := MergeShards(context.Background(), nil, Options{Loader: &memLoader{}})
	if err != nil {
		t.Fatalf("MergeShards: %v", err)
	}
	if res.Table.Len() != 0 || res.Shards != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestMergeShardsRequiresLoader(t *testing.T) {
	if _, err := MergeShards(context.Background(), []string{"x"}, Options{}); !errors.Is(err, errNoLoader) {
		t.Fatalf("expected errNoLoader, got %v", err)
	}
}

func TestMergeShardsDecodeErrorAborts(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader := syntheticShards(30)
	bad := loader.paths()[7]
	loader.fail = map[string]error{
		bad: &shard.DecodeError{Path: bad, Record: -1, Err: errors.New("unexpected EOF")},
	}
	for _, jobs := range []int{1, 4} {
		res, err := MergeShards(context.Background(), loader.paths(), Options{Jobs: jobs, Loader: loader})
		if !errors.Is(err, shard.ErrDecode) {
			t.Fatalf("jobs=%d: expected ErrDecode, got %v", jobs, err)
		}
		if res != nil {
			t.Fatalf("jobs=%d: expected no partial result", jobs)
		}
	}
}

func TestMergeShardsConsistencyErrorAborts(t *testing.T) {
	loader := syntheticShards(12)
	clash := &decl.Decl{USR: "c:@F@sym3#", Kind: decl.KindClassDecl, Loc: "x.h:1", Mod: "x"}
	loader.shards["out/zz.mod_scanner_decls.json.zst"] = []*decl.Decl{clash}

	for _, jobs := range []int{1, 3} {
		_, err := MergeShards(context.Background(), loader.paths(), Options{Jobs: jobs, Loader: loader})
		if !errors.Is(err, decl.ErrKindMismatch) {
			t.Fatalf("jobs=%d: expected ErrKindMismatch, got %v", jobs, err)
		}
	}
}

func TestMergeShardsHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loader := syntheticShards(5)
	if _, err := MergeShards(ctx, loader.paths(), Options{Jobs: 2, Loader: loader}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMergeShardsFromDisk(t *testing.T) {
	dir := t.TempDir()
	mem := syntheticShards(6)
	var paths []string
	for i, p := range mem.paths() {
		path := filepath.Join(dir, fmt.Sprintf("u%d%s", i, shard.DefaultSuffix))
		if err := shard.Write(path, mem.shards[p]); err != nil {
			t.Fatalf("write shard: %v", err)
		}
		paths = append(paths, path)
	}
	loader, err := shard.NewLoader(shard.Options{Concurrency: 2})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer loader.Close()

	res, err := MergeShards(context.Background(), paths, Options{Jobs: 3, Loader: loader})
	if err != nil {
		t.Fatalf("MergeShards: %v", err)
	}
	if res.Table.Len() != 8 || res.Records != 48 {
		t.Fatalf("symbols=%d records=%d, want 8/48", res.Table.Len(), res.Records)
	}
	if !res.Timings.Has(pipeline.StageLoad) || !res.Timings.Has(pipeline.StageReduce) {
		t.Fatalf("expected load and reduce timings")
	}
}

func TestShardQueuePopsEachPathOnce(t *testing.T) {
	paths := make([]string, 1000)
	for i := range paths {
		paths[i] = fmt.Sprintf("p%d", i)
	}
	q := newShardQueue(paths)

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				p, ok := q.Pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[p]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != len(paths) {
		t.Fatalf("popped %d distinct paths, want %d", len(seen), len(paths))
	}
	for p, n := range seen {
		if n != 1 {
			t.Fatalf("%s popped %d times", p, n)
		}
	}
	if q.Remaining() != 0 {
		t.Fatalf("Remaining = %d after drain", q.Remaining())
	}
}

func TestMergeMetricsCounts(t *testing.T) {
	var m mergeMetrics
	m.shards.Add(3)
	m.records.Add(24)
	shards, records, err := m.counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if shards != 3 || records != 24 {
		t.Fatalf("counts = %d/%d, want 3/24", shards, records)
	}
	if got := m.summary(8, 2); got != "workers: 2 | shards: 3 | records: 24 | symbols: 8 | errors: 0" {
		t.Fatalf("summary = %q", got)
	}
}
