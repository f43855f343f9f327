// Command probe checks the external dependencies of library-locator: it
// resolves one coordinate through the geocoder and region table, optionally
// runs a catalog search, and pings Redis and Kafka.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"

	"github.com/mohammed-shakir/library-locator/internal/cache/redisstore"
	"github.com/mohammed-shakir/library-locator/internal/catalog"
	"github.com/mohammed-shakir/library-locator/internal/core/config"
	"github.com/mohammed-shakir/library-locator/internal/core/httpclient"
	"github.com/mohammed-shakir/library-locator/internal/core/model"
	"github.com/mohammed-shakir/library-locator/internal/geocoder"
	"github.com/mohammed-shakir/library-locator/internal/invalidation"
	h3mapper "github.com/mohammed-shakir/library-locator/internal/mapper/h3"
	"github.com/mohammed-shakir/library-locator/internal/region"
	"github.com/mohammed-shakir/library-locator/internal/resolver"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	lat := flag.Float64("lat", 37.6542, "latitude to resolve")
	lon := flag.Float64("lon", 127.0568, "longitude to resolve")
	isbn := flag.String("isbn", "", "also run a catalog search for this ISBN")
	withRedis := flag.Bool("redis", false, "ping REDIS_ADDR")
	kafkaEvent := flag.Bool("kafka", false, "publish a test invalidation event to KAFKA_TOPIC")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.CatalogSearchTimeout)
	defer cancel()

	p := model.Coordinate{Lat: *lat, Lon: *lon}
	if err := p.Validate(); err != nil {
		fmt.Println("bad coordinate:", err)
		os.Exit(2)
	}

	failed := false
	step := func(name string, fn func() error) {
		fmt.Println(name)
		if err := fn(); err != nil {
			fmt.Printf("  %s error: %v\n", name, err)
			failed = true
		}
	}

	fmt.Printf("H3 cell (res %d): %s\n", cfg.LogCellRes, h3mapper.New().CellOrEmpty(p, cfg.LogCellRes))
	fmt.Printf("region table version %s, %d regions\n", region.Default().Version(), len(region.Default().Regions()))

	var code model.RegionCode
	step("geocoder", func() error {
		geo, err := geocoder.New(geocoder.Config{
			BaseURL: cfg.GeocoderBaseURL,
			APIKey:  cfg.VWorldAPIKey,
			Domain:  cfg.GeocoderDomain,
			Layer:   cfg.GeocoderLayer,
			Timeout: cfg.GeocoderTimeout,
		}, nil, nil)
		if err != nil {
			return err
		}
		area, err := geo.LookupDistrict(ctx, p)
		if err != nil {
			return err
		}
		fmt.Printf("  full_nm=%q sig_cd=%s\n", area.FullName, area.Code)

		code, err = resolver.New(staticArea(area), region.Default()).Resolve(ctx, p)
		if err != nil {
			return err
		}
		fmt.Printf("  region=%s sub_region=%s (%s)\n", code.Region, code.SubRegion, code)
		return nil
	})

	if *isbn != "" && code.Region != "" {
		step("catalog", func() error {
			cat, err := catalog.New(catalog.Config{
				BaseURL:             cfg.CatalogBaseURL,
				APIKey:              cfg.LibraryAPIKey,
				SearchTimeout:       cfg.CatalogSearchTimeout,
				AvailabilityTimeout: cfg.AvailabilityTimeout,
			}, httpclient.NewOutbound(cfg.CatalogSearchTimeout), nil)
			if err != nil {
				return err
			}
			libs, err := cat.SearchBySubRegion(ctx, code.Region, code.SubRegion, *isbn)
			if err != nil {
				return err
			}
			fmt.Printf("  %d libraries in %s\n", len(libs), code.SubRegion)
			for i, l := range libs {
				if i == 5 {
					break
				}
				fmt.Printf("  - %s %s (%s,%s)\n", l.Code, l.Name, l.Latitude, l.Longitude)
			}
			return nil
		})
	}

	if *withRedis {
		step("redis", func() error {
			rc, err := redisstore.New(ctx, cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer func() { _ = rc.Close() }()
			return rc.Ping(ctx)
		})
	}

	if *kafkaEvent {
		step("kafka", func() error {
			return publishTestEvent(config.SplitCSV(cfg.Invalidation.Brokers), cfg.Invalidation.Topic, code)
		})
	}

	if failed {
		os.Exit(1)
	}
	fmt.Println("All checks completed")
}

// staticArea replays an already fetched geocoder answer.
type staticArea model.AdminArea

func (s staticArea) LookupDistrict(context.Context, model.Coordinate) (model.AdminArea, error) {
	return model.AdminArea(s), nil
}

func publishTestEvent(brokers []string, topic string, code model.RegionCode) error {
	if code.Region == "" {
		code = model.RegionCode{Region: "11", SubRegion: "11110"}
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	ev := invalidation.Event{
		Version:   1,
		Op:        "update",
		ISBN:      "9788936434120",
		Region:    code.Region,
		SubRegion: code.SubRegion,
		TS:        time.Now().UTC(),
		Source:    "probe",
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	part, off, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.ISBN),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("  produced to %s[%d]@%d\n", topic, part, off)
	return nil
}
