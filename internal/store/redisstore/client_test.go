package redisstore

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("empty address must fail")
	}
}

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	cli := newClient(t)

	if _, found, err := cli.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("absent key: found=%v err=%v", found, err)
	}

	if err := cli.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, found, err := cli.Get(ctx, "k")
	if err != nil || !found || string(v) != "v" {
		t.Fatalf("Get: %q found=%v err=%v", v, found, err)
	}
}

func TestMGet_SkipsMissing(t *testing.T) {
	ctx := context.Background()
	cli := newClient(t)

	_ = cli.Set(ctx, "a", []byte("1"))
	_ = cli.Set(ctx, "b", []byte("2"))

	got, err := cli.MGet(ctx, []string{"a", "missing", "b"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Fatalf("got %v", got)
	}

	empty, err := cli.MGet(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty MGet: %v err=%v", empty, err)
	}
}

func TestSets(t *testing.T) {
	ctx := context.Background()
	cli := newClient(t)

	if err := cli.SAdd(ctx, "s", "x", "y", "x"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	members, err := cli.SMembers(ctx, "s")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	sort.Strings(members)
	if len(members) != 2 || members[0] != "x" || members[1] != "y" {
		t.Fatalf("members=%v", members)
	}
}

func TestScanAndDelPatterns(t *testing.T) {
	ctx := context.Background()
	cli := newClient(t)

	_ = cli.Set(ctx, "place:a", []byte("1"))
	_ = cli.Set(ctx, "place:b", []byte("2"))
	_ = cli.Set(ctx, "review:r", []byte("3"))

	keys, err := cli.ScanKeys(ctx, "place:*")
	if err != nil || len(keys) != 2 {
		t.Fatalf("ScanKeys: %v err=%v", keys, err)
	}

	if err := cli.DelPatterns(ctx, "place:*"); err != nil {
		t.Fatalf("DelPatterns: %v", err)
	}
	if keys, _ := cli.ScanKeys(ctx, "place:*"); len(keys) != 0 {
		t.Fatalf("keys survived delete: %v", keys)
	}
	if _, found, _ := cli.Get(ctx, "review:r"); !found {
		t.Fatal("unrelated key deleted")
	}

	// no matches is a no-op
	if err := cli.DelPatterns(ctx, "nothing:*"); err != nil {
		t.Fatalf("empty DelPatterns: %v", err)
	}
}
