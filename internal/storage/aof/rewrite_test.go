package aof

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/encoding/ziplist"
	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/object"
)

var testNow = time.UnixMilli(1_700_000_000_000)

func fixedNow() time.Time { return testNow }

// parseCommands decodes a multi-bulk command stream.
func parseCommands(t *testing.T, data []byte) [][]string {
	t.Helper()
	r := bufio.NewReader(bytes.NewReader(data))
	readLine := func(prefix byte) int {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read header: %v", err)
		}
		if line[0] != prefix || !strings.HasSuffix(line, "\r\n") {
			t.Fatalf("bad header %q", line)
		}
		n, err := strconv.Atoi(line[1 : len(line)-2])
		if err != nil {
			t.Fatalf("bad count %q", line)
		}
		return n
	}

	var cmds [][]string
	for {
		if _, err := r.Peek(1); err == io.EOF {
			return cmds
		}
		argc := readLine('*')
		cmd := make([]string, argc)
		for i := range cmd {
			n := readLine('$')
			buf := make([]byte, n+2)
			if _, err := io.ReadFull(r, buf); err != nil {
				t.Fatalf("read arg: %v", err)
			}
			cmd[i] = string(buf[:n])
		}
		cmds = append(cmds, cmd)
	}
}

func rewrite(t *testing.T, ks *keyspace.Keyspace, opts Options) ([][]string, *Stats) {
	t.Helper()
	var buf bytes.Buffer
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	stats, err := Rewrite(&buf, ks, opts)
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if stats.Bytes != int64(buf.Len()) {
		t.Errorf("Stats.Bytes = %d, wrote %d", stats.Bytes, buf.Len())
	}
	return parseCommands(t, buf.Bytes()), stats
}

func TestRewrite_StringExact(t *testing.T) {
	ks := keyspace.New(1)
	ks.DB(0).Set("k", object.NewStringAuto([]byte("v")))

	var buf bytes.Buffer
	if _, err := Rewrite(&buf, ks, Options{Now: fixedNow}); err != nil {
		t.Fatal(err)
	}
	want := "*2\r\n$6\r\nSELECT\r\n$1\r\n0\r\n" +
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"
	if buf.String() != want {
		t.Errorf("Rewrite() = %q, want %q", buf.String(), want)
	}
}

func TestRewrite_Collections(t *testing.T) {
	th := object.DefaultThresholds()
	ks := keyspace.New(1)
	db := ks.DB(0)

	list := object.NewList(th)
	for i := 0; i < 3; i++ {
		list.Quicklist().PushTail([]byte("e" + strconv.Itoa(i)))
	}
	db.Set("list", list)

	set := object.NewSetIntset()
	for i := 0; i < 100; i++ {
		set.SetAdd([]byte(strconv.Itoa(i)), th)
	}
	db.Set("set", set)

	zs := object.NewZSetSkiplist(0)
	zs.ZSet().Add("a", 1)
	zs.ZSet().Add("b", 2.5)
	db.Set("zset", zs)

	h := object.NewHashZiplist(ziplist.New())
	if _, err := h.HashSet([]byte("f"), []byte("v"), th); err != nil {
		t.Fatal(err)
	}
	db.Set("hash", h)

	cmds, stats := rewrite(t, ks, Options{})
	if stats.Keys != 4 || stats.Databases != 1 {
		t.Errorf("Stats = %+v", stats)
	}

	byKey := map[string][][]string{}
	for _, c := range cmds[1:] {
		byKey[c[1]] = append(byKey[c[1]], c)
	}

	if got := byKey["list"]; len(got) != 1 || strings.Join(got[0], " ") != "RPUSH list e0 e1 e2" {
		t.Errorf("list commands = %v", got)
	}

	sadd := byKey["set"]
	if len(sadd) != 2 {
		t.Fatalf("set emitted %d commands, want 2 batches", len(sadd))
	}
	if len(sadd[0]) != 2+ItemsPerCommand || len(sadd[1]) != 2+100-ItemsPerCommand {
		t.Errorf("batch sizes %d and %d", len(sadd[0])-2, len(sadd[1])-2)
	}
	var members []int
	for _, c := range sadd {
		for _, m := range c[2:] {
			n, _ := strconv.Atoi(m)
			members = append(members, n)
		}
	}
	sort.Ints(members)
	for i, m := range members {
		if m != i {
			t.Fatalf("set members = %v", members)
		}
	}

	if got := byKey["zset"]; len(got) != 1 || strings.Join(got[0], " ") != "ZADD zset 1 a 2.5 b" {
		t.Errorf("zset commands = %v", got)
	}
	if got := byKey["hash"]; len(got) != 1 || strings.Join(got[0], " ") != "HSET hash f v" {
		t.Errorf("hash commands = %v", got)
	}
}

func TestRewrite_Expiry(t *testing.T) {
	ks := keyspace.New(1)
	db := ks.DB(0)
	db.Set("gone", object.NewStringAuto([]byte("x")))
	db.SetExpire("gone", testNow.UnixMilli()-1)
	db.Set("later", object.NewStringAuto([]byte("y")))
	db.SetExpire("later", testNow.UnixMilli()+60_000)

	cmds, stats := rewrite(t, ks, Options{})
	if stats.Keys != 1 || stats.Expired != 1 {
		t.Errorf("Stats = %+v", stats)
	}
	want := []string{"SELECT 0", "SET later y", "PEXPIREAT later " + strconv.FormatInt(testNow.UnixMilli()+60_000, 10)}
	if len(cmds) != len(want) {
		t.Fatalf("commands = %v", cmds)
	}
	for i, c := range cmds {
		if strings.Join(c, " ") != want[i] {
			t.Errorf("command %d = %v, want %s", i, c, want[i])
		}
	}

	_, stats = rewrite(t, ks, Options{KeepExpired: true})
	if stats.Keys != 2 || stats.Expired != 0 {
		t.Errorf("KeepExpired Stats = %+v", stats)
	}
}

func TestRewrite_DatabasesAndSkipped(t *testing.T) {
	ks := keyspace.New(4)
	ks.DB(1).Set("a", object.NewStringAuto([]byte("1")))
	ks.DB(3).Set("b", object.NewStringAuto([]byte("2")))
	ks.DB(3).Set("events", object.NewStream())

	cmds, stats := rewrite(t, ks, Options{})
	var selects []string
	for _, c := range cmds {
		if c[0] == "SELECT" {
			selects = append(selects, c[1])
		}
	}
	if strings.Join(selects, ",") != "1,3" {
		t.Errorf("SELECT commands for dbs %v, want 1,3", selects)
	}
	if stats.Databases != 2 || stats.Keys != 2 {
		t.Errorf("Stats = %+v", stats)
	}
	if stats.Skipped[object.TypeStream.String()] != 1 {
		t.Errorf("Skipped = %v, want one stream", stats.Skipped)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRewrite_WriteError(t *testing.T) {
	ks := keyspace.New(1)
	ks.DB(0).Set("k", object.NewStringAuto([]byte("v")))

	_, err := Rewrite(failingWriter{}, ks, Options{Now: fixedNow})
	if !errors.Is(err, domain.ErrIO) {
		t.Errorf("Rewrite() error = %v, want ErrIO", err)
	}
}
