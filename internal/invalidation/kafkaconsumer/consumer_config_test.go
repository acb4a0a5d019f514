package kafkaconsumer

import (
	"testing"

	"github.com/openpoi/placecache/internal/core/config"
)

func testInvalidationCfg() config.InvalidationCfg {
	return config.InvalidationCfg{
		Enabled: true,
		Topic:   "place-invalidation",
		Brokers: "broker-1:9092, broker-2:9092,",
		GroupID: "placecache-invalidator",
	}
}

func TestFromService(t *testing.T) {
	cfg := FromService(testInvalidationCfg())

	if len(cfg.Brokers) != 2 || cfg.Brokers[0] != "broker-1:9092" || cfg.Brokers[1] != "broker-2:9092" {
		t.Fatalf("brokers=%v", cfg.Brokers)
	}
	if cfg.Topic != "place-invalidation" || cfg.GroupID != "placecache-invalidator" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if !cfg.InitialOffsetOldest {
		t.Fatal("consumer must start from the oldest offset")
	}
}
