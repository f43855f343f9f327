package kafkaconsumer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/library-locator/internal/cache/keys"
	"github.com/mohammed-shakir/library-locator/internal/cache/redisstore"
	"github.com/mohammed-shakir/library-locator/internal/core/config"
	"github.com/mohammed-shakir/library-locator/internal/invalidation"
	"github.com/mohammed-shakir/library-locator/internal/region"
)

type fakeCache struct {
	failFirst atomic.Bool
	seenDel   []string
	mu        sync.Mutex
}

func (f *fakeCache) MGet(context.Context, []string) (map[string][]byte, error) { return nil, nil }
func (f *fakeCache) Set(context.Context, string, []byte, time.Duration) error  { return nil }
func (f *fakeCache) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	f.seenDel = append(f.seenDel, keys...)
	f.mu.Unlock()
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return errors.New("boom")
	}
	return nil
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "library-holdings" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func eventBytes(sub string) []byte {
	ev := invalidation.Event{
		Version: 1, Op: "update", ISBN: "9788936434120", Region: "11", SubRegion: sub,
		LibCode: "111042", TS: time.Now().UTC(),
	}
	b, _ := json.Marshal(ev)
	return b
}

func newConsumerForTest(fc *fakeCache) *Consumer {
	cfg := Config{Brokers: []string{"x"}, Topic: "library-holdings", GroupID: "g"}
	return New(cfg, slog.Default(), nil, fc, region.Default())
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	fc := &fakeCache{}
	c := newConsumerForTest(fc)

	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	cl := &claim{part: 0, msgs: ch}

	ch <- &sarama.ConsumerMessage{Topic: "library-holdings", Partition: 0, Offset: 10, Value: eventBytes("11110")}
	ch <- &sarama.ConsumerMessage{Topic: "library-holdings", Partition: 0, Offset: 11, Value: eventBytes("11110")}
	close(ch)

	if err := g.ConsumeClaim(s, cl); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if len(fc.seenDel) != 4 {
		t.Fatalf("deleted keys=%v", fc.seenDel)
	}
}

func TestProcessOne_DeletesRegionAndDistrictKeys(t *testing.T) {
	fc := &fakeCache{}
	c := newConsumerForTest(fc)

	msg := &sarama.ConsumerMessage{Topic: "t", Offset: 1, Value: eventBytes("11110")}
	if err := c.ProcessOne(t.Context(), msg); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	want := map[string]bool{
		keys.SearchKey("9788936434120", "11", ""):      true,
		keys.SearchKey("9788936434120", "11", "11110"): true,
	}
	if len(fc.seenDel) != len(want) {
		t.Fatalf("deleted=%v", fc.seenDel)
	}
	for _, k := range fc.seenDel {
		if !want[k] {
			t.Fatalf("unexpected key %s", k)
		}
	}
}

func TestProcessOne_WholeRegionWhenNoDistrict(t *testing.T) {
	fc := &fakeCache{}
	c := newConsumerForTest(fc)

	if err := c.ProcessOne(t.Context(), &sarama.ConsumerMessage{Value: eventBytes("")}); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if want := len(region.Default().SubRegions("11")) + 1; len(fc.seenDel) != want {
		t.Fatalf("deleted %d keys want %d", len(fc.seenDel), want)
	}
}

func TestProcessOne_MalformedIsSkipped(t *testing.T) {
	fc := &fakeCache{}
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	c := New(Config{}, slog.Default(), &zl, fc, region.Default())

	bad := [][]byte{
		[]byte(`{not json`),
		[]byte(`{"version":1,"op":"update","isbn":"123","region":"11","ts":"2025-01-01T00:00:00Z"}`),
	}
	for i, b := range bad {
		if err := c.ProcessOne(t.Context(), &sarama.ConsumerMessage{Offset: int64(i), Value: b}); err != nil {
			t.Fatalf("malformed message must not block the partition: %v", err)
		}
	}
	if len(fc.seenDel) != 0 {
		t.Fatalf("deleted on malformed input: %v", fc.seenDel)
	}
	out := buf.String()
	if !strings.Contains(out, `"kind":"decode"`) || !strings.Contains(out, `"kind":"validate"`) {
		t.Fatalf("skip reasons not logged:\n%s", out)
	}
}

func TestRetry_NoCommitOnFailure_ThenCommitOnSuccess(t *testing.T) {
	fc := &fakeCache{}
	fc.failFirst.Store(true)
	c := newConsumerForTest(fc)
	ctx := t.Context()

	msg := &sarama.ConsumerMessage{Topic: "library-holdings", Partition: 0, Offset: 5, Value: eventBytes("11110")}
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
}

func TestMultiPartition_Parallel_NoCrossOrdering(t *testing.T) {
	fc := &fakeCache{}
	c := newConsumerForTest(fc)
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}

	p0 := make(chan *sarama.ConsumerMessage, 2)
	p1 := make(chan *sarama.ConsumerMessage, 2)
	p0 <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 1, Value: eventBytes("11110")}
	p0 <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 2, Value: eventBytes("11110")}
	p1 <- &sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 1, Value: eventBytes("")}
	p1 <- &sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 2, Value: eventBytes("")}
	close(p0)
	close(p1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 0, msgs: p0}) }()
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 1, msgs: p1}) }()
	wg.Wait()

	if len(s.marked) != 4 {
		t.Fatalf("expected 4 marks total; got %v", s.marked)
	}
}

func TestIntegration_Miniredis_DeletesCachedSearches(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rc, err := redisstore.New(t.Context(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	isbn := "9788936434120"
	stale := []string{keys.SearchKey(isbn, "11", "11110"), keys.SearchKey(isbn, "11", "")}
	keep := keys.SearchKey(isbn, "21", "21010")
	for _, k := range append(stale, keep) {
		_ = mr.Set(k, `[{"code":"111042"}]`)
	}

	cfg := FromConfig(config.Config{
		Invalidation:   config.InvalidationCfg{Brokers: "a:9092,b:9092", Topic: "library-holdings", GroupID: "g"},
		CacheOpTimeout: time.Second,
	})
	if len(cfg.Brokers) != 2 || cfg.Topic != "library-holdings" {
		t.Fatalf("cfg=%+v", cfg)
	}
	cons := New(cfg, nil, nil, rc, region.Default())

	if err := cons.ProcessOne(context.Background(), &sarama.ConsumerMessage{Value: eventBytes("11110")}); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	for _, k := range stale {
		if mr.Exists(k) {
			t.Fatalf("expected %s to be deleted", k)
		}
	}
	if !mr.Exists(keep) {
		t.Fatalf("unrelated key %s was deleted", keep)
	}
}
