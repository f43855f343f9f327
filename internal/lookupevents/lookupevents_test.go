package lookupevents

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/mohammed-shakir/library-locator/internal/core/model"
	"github.com/mohammed-shakir/library-locator/internal/locator"
	h3mapper "github.com/mohammed-shakir/library-locator/internal/mapper/h3"
)

func TestObserver_PublishesCellNotCoordinate(t *testing.T) {
	cfg := sarama.NewConfig()
	prod := mocks.NewAsyncProducer(t, cfg)

	var got Event
	prod.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
		if err := json.Unmarshal(b, &got); err != nil {
			return err
		}
		if got.Cell == "" {
			return fmt.Errorf("missing cell in %s", b)
		}
		return nil
	})

	p := newWithProducer(prod, "library-lookups", 4, nil)
	obs := p.Observer(h3mapper.New(), 7)
	obs(context.Background(), locator.Lookup{
		Mode:     locator.ModeNearest,
		ISBN:     "9788936434120",
		Origin:   model.Coordinate{Lat: 37.6542, Lon: 127.0568},
		Region:   model.RegionCode{Region: "11", SubRegion: "11110"},
		Strategy: "sub_region",
		Found:    1,
		Duration: 42 * time.Millisecond,
	})

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want, _ := h3mapper.New().CellForPoint(model.Coordinate{Lat: 37.6542, Lon: 127.0568}, 7)
	if got.Cell != want || got.ISBN != "9788936434120" || got.SubRegion != "11110" ||
		got.Mode != "nearest" || got.Found != 1 || got.TookMS != 42 {
		t.Fatalf("event=%+v", got)
	}
}

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	p := &Publisher{events: make(chan Event, 1), stopped: make(chan struct{})}
	p.Publish(Event{ISBN: "a"})
	p.Publish(Event{ISBN: "b"})

	if len(p.events) != 1 {
		t.Fatalf("queue len=%d", len(p.events))
	}
	if ev := <-p.events; ev.ISBN != "a" {
		t.Fatalf("kept %q, want first event", ev.ISBN)
	}
}

func TestPublish_AfterCloseIsNoop(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, sarama.NewConfig())
	p := newWithProducer(prod, "t", 1, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	p.Publish(Event{ISBN: "late"})
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
