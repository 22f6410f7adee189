package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/reviewalarm/internal/config"
)

func newTestRunner(t *testing.T) (*runner, *bytes.Buffer) {
	t.Helper()
	env := map[string]string{
		"DB_PATH":   filepath.Join(t.TempDir(), "test.db"),
		"LOG_LEVEL": "error",
	}
	out := &bytes.Buffer{}
	r := &runner{
		out: out,
		loadConfig: func() (*config.Config, error) {
			return config.FromEnv(func(k string) string { return env[k] })
		},
	}
	return r, out
}

func run(t *testing.T, r *runner, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	if err := r.app(BuildArgs{Version: "test"}).Run(append([]string{"reviewalarm"}, args...)); err != nil {
		t.Fatalf("%v: %v\noutput: %s", args, err, out.String())
	}
	return out.String()
}

func TestReviewCycle(t *testing.T) {
	r, out := newTestRunner(t)

	got := run(t, r, out, "add", "-c", "networking", "TCP handshake", "SYN", "SYN-ACK", "ACK")
	if !strings.Contains(got, `added item 1 "TCP handshake"`) || !strings.Contains(got, "schedule 1") {
		t.Fatalf("add output = %q", got)
	}

	got = run(t, r, out, "list")
	if !strings.Contains(got, "TCP handshake") || !strings.Contains(got, "networking") {
		t.Errorf("list output = %q", got)
	}

	got = run(t, r, out, "due")
	if !strings.Contains(got, "TCP handshake") || !strings.Contains(got, "Stage 1") {
		t.Errorf("due output = %q", got)
	}

	got = run(t, r, out, "review", "-e", "5", "-s", "90", "1")
	if !strings.Contains(got, "Stage 1 -> Stage 2") {
		t.Errorf("review output = %q", got)
	}

	got = run(t, r, out, "due")
	if !strings.Contains(got, "nothing to review") {
		t.Errorf("due after review = %q", got)
	}

	got = run(t, r, out, "status", "1")
	if !strings.Contains(got, "pending, 1 reviews completed") {
		t.Errorf("status output = %q", got)
	}

	got = run(t, r, out, "stats", "--days", "3")
	if !strings.Contains(got, "items:            1 (0 mastered)") || !strings.Contains(got, "streak:           1 days") {
		t.Errorf("stats output = %q", got)
	}
}

func TestReviewRejectsBadInput(t *testing.T) {
	r, out := newTestRunner(t)
	run(t, r, out, "add", "Raft", "leader election")

	if err := r.app(BuildArgs{}).Run([]string{"reviewalarm", "review", "-e", "9", "1"}); err == nil {
		t.Error("effectiveness 9 should be rejected")
	}
	if err := r.app(BuildArgs{}).Run([]string{"reviewalarm", "review", "-e", "3", "42"}); err == nil {
		t.Error("unknown schedule should be rejected")
	}
	if err := r.app(BuildArgs{}).Run([]string{"reviewalarm", "review", "-e", "3"}); err == nil {
		t.Error("missing schedule id should be rejected")
	}
}

func TestOwnerFlagScopesItems(t *testing.T) {
	r, out := newTestRunner(t)
	run(t, r, out, "add", "Paxos", "prepare and accept")

	got := run(t, r, out, "--owner", "2", "list")
	if !strings.Contains(got, "no items found") {
		t.Errorf("other owner sees %q", got)
	}
	got = run(t, r, out, "search", "pax")
	if !strings.Contains(got, "Paxos") {
		t.Errorf("search output = %q", got)
	}
}

func TestArchiveAndPull(t *testing.T) {
	r, out := newTestRunner(t)
	run(t, r, out, "add", "CAP", "pick two")

	if err := r.app(BuildArgs{}).Run([]string{"reviewalarm", "pull", "1"}); err == nil {
		t.Error("pull with an open review should fail")
	}

	got := run(t, r, out, "archive", "1")
	if !strings.Contains(got, "archived item 1") {
		t.Errorf("archive output = %q", got)
	}
	got = run(t, r, out, "list")
	if !strings.Contains(got, "no items found") {
		t.Errorf("list after archive = %q", got)
	}
	got = run(t, r, out, "list", "--all")
	if !strings.Contains(got, "CAP") {
		t.Errorf("list --all after archive = %q", got)
	}
}

func TestRemindOnce(t *testing.T) {
	r, out := newTestRunner(t)
	run(t, r, out, "add", "Consistent hashing", "ring of virtual nodes")

	got := run(t, r, out, "remind", "--once")
	if !strings.Contains(got, "sent 1 reminders") {
		t.Errorf("remind output = %q", got)
	}
}

func TestStagesCommand(t *testing.T) {
	r, out := newTestRunner(t)
	got := run(t, r, out, "stages")
	for _, want := range []string{"Stage 1", "Stage 7", "After 15 days", "360h0m0s"} {
		if !strings.Contains(got, want) {
			t.Errorf("stages output missing %q: %q", want, got)
		}
	}
}
