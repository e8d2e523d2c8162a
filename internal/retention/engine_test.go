package retention

import (
	"fmt"
	"testing"
	"time"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/xlog"
)

func readyBackup(id int64, label string, started time.Time, xlogStart, xlogEnd string, pinned bool) *catalog.BaseBackupDescr {
	d := &catalog.BaseBackupDescr{
		ID: id, Label: label, Started: started, Stopped: started.Add(5 * time.Minute),
		XlogposStart: xlogStart, XlogposEnd: xlogEnd, Status: catalog.StatusReady,
		Pinned: pinned, Timeline: 1, WalSegmentSize: xlog.DefaultSegmentSize, FSEntry: fmt.Sprintf("/archive/base/%d", id),
	}
	return d
}

func TestEvaluateKeepNum(t *testing.T) {
	now := time.Now()
	b1 := readyBackup(1, "b1", now, "0/5000000", "0/5100000", false)
	b2 := readyBackup(2, "b2", now.Add(-time.Hour), "0/4000000", "0/4100000", false)
	b3 := readyBackup(3, "b3", now.Add(-2*time.Hour), "0/3000000", "0/3100000", false)
	b4 := readyBackup(4, "b4", now.Add(-3*time.Hour), "0/2000000", "0/2100000", false)
	b5 := readyBackup(5, "b5", now.Add(-4*time.Hour), "0/1000000", "0/1100000", false)
	backups := []*catalog.BaseBackupDescr{b1, b2, b3, b4, b5}

	rule := catalog.RetentionRuleDescr{Type: catalog.RuleKeepNum, Value: "2"}
	plan, err := EvaluateRule(rule, backups, nil, now)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	got := map[int64]bool{}
	for _, ref := range plan.Backups {
		got[ref.ID] = true
	}
	want := map[int64]bool{3: true, 4: true, 5: true}
	if len(got) != len(want) {
		t.Fatalf("expected deletion set %v, got %v", want, got)
	}
	for id := range want {
		if !got[id] {
			t.Fatalf("expected %d in deletion set, got %v", id, got)
		}
	}

	segSize := uint64(xlog.DefaultSegmentSize)
	b2Start, _ := xlog.Parse(b2.XlogposStart)
	wantCutoff := b2Start.PrecedingSegmentStart(segSize)
	if off := plan.PerTimelineOffsets[1]; off.CleanupStartPtr != wantCutoff {
		t.Fatalf("cutoff = %v, want %v", off.CleanupStartPtr, wantCutoff)
	}
}

func TestEvaluateKeepNumWithPinnedSurvivor(t *testing.T) {
	now := time.Now()
	b1 := readyBackup(1, "b1", now, "0/5000000", "0/5100000", false)
	b2 := readyBackup(2, "b2", now.Add(-time.Hour), "0/4000000", "0/4100000", false)
	b3 := readyBackup(3, "b3", now.Add(-2*time.Hour), "0/3000000", "0/3100000", false)
	b4 := readyBackup(4, "b4", now.Add(-3*time.Hour), "0/2000000", "0/2100000", true)
	b5 := readyBackup(5, "b5", now.Add(-4*time.Hour), "0/1000000", "0/1100000", false)
	backups := []*catalog.BaseBackupDescr{b1, b2, b3, b4, b5}

	rule := catalog.RetentionRuleDescr{Type: catalog.RuleKeepNum, Value: "2"}
	plan, err := EvaluateRule(rule, backups, nil, now)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	got := map[int64]bool{}
	for _, ref := range plan.Backups {
		got[ref.ID] = true
	}
	if got[4] {
		t.Fatalf("pinned backup 4 must never be in the deletion set, got %v", got)
	}
	if !got[3] || !got[5] || len(got) != 2 {
		t.Fatalf("expected {3,5} deleted, got %v", got)
	}
}

func TestEvaluateDropNumFailsBelowFloor(t *testing.T) {
	now := time.Now()
	backups := []*catalog.BaseBackupDescr{
		readyBackup(1, "b1", now, "0/4000000", "0/4100000", false),
		readyBackup(2, "b2", now.Add(-time.Hour), "0/3000000", "0/3100000", false),
		readyBackup(3, "b3", now.Add(-2*time.Hour), "0/2000000", "0/2100000", false),
		readyBackup(4, "b4", now.Add(-3*time.Hour), "0/1000000", "0/1100000", false),
	}

	rule := catalog.RetentionRuleDescr{Type: catalog.RuleDropNum, Value: "4"}
	_, err := EvaluateRule(rule, backups, nil, now)
	if err == nil {
		t.Fatalf("expected drop_num(4) on 4 valid backups to fail")
	}
}

func TestEvaluateCleanupWithInProgressBlocks(t *testing.T) {
	now := time.Now()
	inProgress := &catalog.BaseBackupDescr{
		ID: 1, Label: "ip", Started: now, Status: catalog.StatusInProgress,
		XlogposStart: "0/3000000", Timeline: 1, WalSegmentSize: xlog.DefaultSegmentSize,
	}
	aborted1 := &catalog.BaseBackupDescr{
		ID: 2, Label: "a1", Started: now.Add(-time.Hour), Stopped: now.Add(-55 * time.Minute),
		Status: catalog.StatusAborted, XlogposStart: "0/2000000", XlogposEnd: "0/2100000",
		Timeline: 1, WalSegmentSize: xlog.DefaultSegmentSize, FSEntry: "/archive/base/2",
	}
	aborted2 := &catalog.BaseBackupDescr{
		ID: 3, Label: "a2", Started: now.Add(-2 * time.Hour), Stopped: now.Add(-115 * time.Minute),
		Status: catalog.StatusAborted, XlogposStart: "0/1000000", XlogposEnd: "0/1100000",
		Timeline: 1, WalSegmentSize: xlog.DefaultSegmentSize, FSEntry: "/archive/base/3",
	}
	backups := []*catalog.BaseBackupDescr{inProgress, aborted1, aborted2}

	rule := catalog.RetentionRuleDescr{Type: catalog.RuleCleanup}
	_, err := EvaluateRule(rule, backups, nil, now)
	if err == nil {
		t.Fatalf("expected cleanup to abort the plan while a backup is in progress")
	}
}

func TestEvaluateCleanupDeletesAbortedOnly(t *testing.T) {
	now := time.Now()
	ready := readyBackup(1, "r1", now, "0/4000000", "0/4100000", false)
	aborted := &catalog.BaseBackupDescr{
		ID: 2, Label: "a1", Started: now.Add(-time.Hour), Stopped: now.Add(-55 * time.Minute),
		Status: catalog.StatusAborted, XlogposStart: "0/2000000", XlogposEnd: "0/2100000",
		Timeline: 1, WalSegmentSize: xlog.DefaultSegmentSize, FSEntry: "/archive/base/2",
	}
	pinnedAborted := &catalog.BaseBackupDescr{
		ID: 3, Label: "a2", Started: now.Add(-2 * time.Hour), Stopped: now.Add(-115 * time.Minute),
		Status: catalog.StatusAborted, Pinned: true, XlogposStart: "0/1000000", XlogposEnd: "0/1100000",
		Timeline: 1, WalSegmentSize: xlog.DefaultSegmentSize, FSEntry: "/archive/base/3",
	}
	backups := []*catalog.BaseBackupDescr{ready, aborted, pinnedAborted}

	rule := catalog.RetentionRuleDescr{Type: catalog.RuleCleanup}
	plan, err := EvaluateRule(rule, backups, nil, now)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	if len(plan.Backups) != 1 || plan.Backups[0].ID != 2 {
		t.Fatalf("expected only backup 2 deleted, got %v", plan.Backups)
	}
	if len(plan.Warnings) == 0 {
		t.Fatalf("expected a warning about the pinned aborted backup")
	}
}

func TestEvaluateKeepWithLabel(t *testing.T) {
	now := time.Now()
	nightly := readyBackup(1, "nightly_001", now, "0/3000000", "0/3100000", false)
	adhoc := readyBackup(2, "adhoc_xyz", now.Add(-time.Hour), "0/2000000", "0/2100000", false)
	backups := []*catalog.BaseBackupDescr{nightly, adhoc}

	rule := catalog.RetentionRuleDescr{Type: catalog.RuleKeepWithLabel, Value: `^nightly_`}
	plan, err := EvaluateRule(rule, backups, nil, now)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	if len(plan.Backups) != 1 || plan.Backups[0].ID != 2 {
		t.Fatalf("expected only the non-matching backup deleted, got %v", plan.Backups)
	}
}

func TestEvaluateLockedByShmSurvives(t *testing.T) {
	now := time.Now()
	b1 := readyBackup(1, "b1", now, "0/3000000", "0/3100000", false)
	b2 := readyBackup(2, "b2", now.Add(-time.Hour), "0/2000000", "0/2100000", false)
	backups := []*catalog.BaseBackupDescr{b1, b2}

	rule := catalog.RetentionRuleDescr{Type: catalog.RuleKeepNum, Value: "0"}
	plan, err := EvaluateRule(rule, backups, map[int64]bool{2: true}, now)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	for _, ref := range plan.Backups {
		if ref.ID == 2 {
			t.Fatalf("backup locked by shm must never be deleted")
		}
	}
}

func TestResolvePinSelectionNewestOldest(t *testing.T) {
	now := time.Now()
	backups := []*catalog.BaseBackupDescr{
		readyBackup(1, "b1", now, "0/3000000", "0/3100000", false),
		readyBackup(2, "b2", now.Add(-time.Hour), "0/2000000", "0/2100000", false),
	}

	ids, err := ResolvePinSelection(catalog.RetentionRuleDescr{Type: catalog.RulePin, Value: "newest"}, backups)
	if err != nil {
		t.Fatalf("ResolvePinSelection: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected newest = [1], got %v", ids)
	}

	ids, err = ResolvePinSelection(catalog.RetentionRuleDescr{Type: catalog.RuleUnpin, Value: "oldest"}, backups)
	if err != nil {
		t.Fatalf("ResolvePinSelection: %v", err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("expected oldest = [2], got %v", ids)
	}
}

func TestResolvePinSelectionPinnedIsUnpinOnly(t *testing.T) {
	_, err := ResolvePinSelection(catalog.RetentionRuleDescr{Type: catalog.RulePin, Value: "pinned"}, nil)
	if err == nil {
		t.Fatalf("expected \"pinned\" to be rejected for a pin rule")
	}
}
