package retention

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/xlog"
)

// EvaluateRule runs one RetentionRule against backups (sorted by start time
// descending, the order GetBackupList already returns) and shmLocked (the
// set of backup ids currently referenced by a worker slot's child
// sub-slots), producing a CleanupDescriptor. now anchors interval-based
// thresholds so the plan is reproducible in tests.
func EvaluateRule(rule catalog.RetentionRuleDescr, backups []*catalog.BaseBackupDescr, shmLocked map[int64]bool, now time.Time) (*CleanupDescriptor, error) {
	plan := &CleanupDescriptor{Mode: ModeWALCleanupOffset, BasebackupMode: BasebackupDelete}

	deleteSet := make(map[int64]bool)

	switch rule.Type {
	case catalog.RuleKeepWithLabel, catalog.RuleDropWithLabel:
		re, err := compileLabelRegex(rule.Value)
		if err != nil {
			return nil, apperrors.Retention("evaluate retention rule", "label pattern failed to compile", err)
		}
		keepOnMatch := rule.Type == catalog.RuleKeepWithLabel
		for _, b := range backups {
			if Classify(b, shmLocked) != NotLocked || !b.Valid() {
				continue
			}
			matched := re.MatchString(b.Label)
			if matched == keepOnMatch {
				continue
			}
			deleteSet[b.ID] = true
		}

	case catalog.RuleKeepNum:
		n, err := strconv.Atoi(rule.Value)
		if err != nil || n < 0 {
			return nil, apperrors.Retention("evaluate retention rule", "keep_num value must be a non-negative integer", fmt.Errorf("bad value %q", rule.Value))
		}
		kept := 0
		for _, b := range backups {
			if !b.Valid() || Classify(b, shmLocked) != NotLocked {
				continue
			}
			if kept < n {
				kept++
				continue
			}
			deleteSet[b.ID] = true
		}
		if kept < n {
			return nil, apperrors.Retention("evaluate retention rule",
				"retention count must not exceed the number of valid basebackups", fmt.Errorf("only %d valid basebackups, need %d", kept, n))
		}

	case catalog.RuleDropNum:
		n, err := strconv.Atoi(rule.Value)
		if err != nil || n < 0 {
			return nil, apperrors.Retention("evaluate retention rule", "drop_num value must be a non-negative integer", fmt.Errorf("bad value %q", rule.Value))
		}
		oldestFirst := make([]*catalog.BaseBackupDescr, len(backups))
		copy(oldestFirst, backups)
		sort.Slice(oldestFirst, func(i, j int) bool { return oldestFirst[i].Started.Before(oldestFirst[j].Started) })

		dropped := 0
		validCount := 0
		for _, b := range oldestFirst {
			if !b.Valid() || Classify(b, shmLocked) != NotLocked {
				continue
			}
			validCount++
		}
		for _, b := range oldestFirst {
			if !b.Valid() || Classify(b, shmLocked) != NotLocked {
				continue
			}
			if dropped < n {
				deleteSet[b.ID] = true
				dropped++
			}
		}
		if validCount-dropped < 1 {
			return nil, apperrors.Retention("evaluate retention rule",
				"drop_num must leave at least one valid basebackup behind", fmt.Errorf("would drop %d of %d valid basebackups", dropped, validCount))
		}

	case catalog.RuleKeepNewerDT, catalog.RuleKeepOlderDT, catalog.RuleDropNewerDT, catalog.RuleDropOlderDT:
		interval, err := catalog.ParseInterval(rule.Value)
		if err != nil {
			return nil, apperrors.Retention("evaluate retention rule", "malformed retention interval", err)
		}
		threshold := interval.Negate().AddTo(now)

		for _, b := range backups {
			if b.Status == catalog.StatusInProgress || Classify(b, shmLocked) == LockedByPin {
				continue
			}
			if !b.Valid() {
				continue
			}
			isNewer := b.Stopped.After(threshold)

			switch rule.Type {
			case catalog.RuleKeepNewerDT:
				if !isNewer {
					deleteSet[b.ID] = true
				}
			case catalog.RuleKeepOlderDT:
				if isNewer {
					deleteSet[b.ID] = true
				}
			case catalog.RuleDropNewerDT:
				if isNewer {
					deleteSet[b.ID] = true
				}
			case catalog.RuleDropOlderDT:
				if !isNewer {
					deleteSet[b.ID] = true
				}
			}
		}

	case catalog.RuleCleanup:
		for _, b := range backups {
			if b.Status == catalog.StatusInProgress {
				return nil, apperrors.Retention("evaluate retention rule",
					"an in-progress backup blocks cleanup; resolve it manually before retrying", fmt.Errorf("backup %d is in progress", b.ID))
			}
		}
		for _, b := range backups {
			if b.Status != catalog.StatusAborted {
				continue
			}
			if b.Pinned {
				plan.warn(fmt.Sprintf("backup %d is aborted and pinned; kept, but its WAL is freed from its start onward", b.ID))
				continue
			}
			deleteSet[b.ID] = true
		}

	case catalog.RulePin, catalog.RuleUnpin:
		return nil, apperrors.Retention("evaluate retention rule",
			"pin/unpin rules do not produce a cleanup plan", fmt.Errorf("use ResolvePinSelection instead"))

	default:
		return nil, apperrors.Retention("evaluate retention rule",
			"unrecognized retention rule type", fmt.Errorf("type %q", rule.Type))
	}

	byID := make(map[int64]*catalog.BaseBackupDescr, len(backups))
	for _, b := range backups {
		byID[b.ID] = b
	}
	for id := range deleteSet {
		plan.Backups = append(plan.Backups, BackupRef{ID: id, FSEntry: byID[id].FSEntry})
	}
	sort.Slice(plan.Backups, func(i, j int) bool { return plan.Backups[i].ID < plan.Backups[j].ID })

	computeCutoffs(plan, rule.Type, backups, deleteSet)
	return plan, nil
}

// computeCutoffs implements the "move only backward" WAL cutoff rule for
// every timeline touched by backups, independent of which rule produced
// the deletion set.
func computeCutoffs(plan *CleanupDescriptor, ruleType catalog.RuleType, backups []*catalog.BaseBackupDescr, deleteSet map[int64]bool) {
	intervalRule := ruleType == catalog.RuleKeepNewerDT || ruleType == catalog.RuleKeepOlderDT ||
		ruleType == catalog.RuleDropNewerDT || ruleType == catalog.RuleDropOlderDT

	for _, b := range backups {
		segSize := b.WalSegmentSize
		if segSize == 0 {
			segSize = xlog.DefaultSegmentSize
		}
		startPtr, err := xlog.Parse(b.XlogposStart)
		if err != nil {
			continue
		}

		deleted := deleteSet[b.ID]

		switch {
		case b.Status == catalog.StatusAborted && b.Pinned:
			plan.moveCutoff(b.Timeline, segSize, startPtr)
		case b.Status == catalog.StatusInProgress:
			plan.moveCutoff(b.Timeline, segSize, startPtr.PrecedingSegmentStart(segSize))
			if intervalRule {
				plan.warn(fmt.Sprintf("backup %d is in progress; its WAL cutoff contribution is degraded to the preceding segment", b.ID))
			}
		case deleted && intervalRule:
			endPtr, err := xlog.Parse(b.XlogposEnd)
			if err != nil {
				plan.moveCutoff(b.Timeline, segSize, startPtr.PrecedingSegmentStart(segSize))
				continue
			}
			plan.moveCutoff(b.Timeline, segSize, endPtr)
		case !deleted:
			plan.moveCutoff(b.Timeline, segSize, startPtr.PrecedingSegmentStart(segSize))
		}
	}
}

// ResolvePinSelection resolves a pin/unpin rule's selector against backups
// and returns the ids to flip, for a single batch update via
// Catalog.PerformPinAction ('s pin/unpin semantics).
func ResolvePinSelection(rule catalog.RetentionRuleDescr, backups []*catalog.BaseBackupDescr) ([]int64, error) {
	if rule.Type != catalog.RulePin && rule.Type != catalog.RuleUnpin {
		return nil, apperrors.Retention("resolve pin selection", "not a pin/unpin rule", fmt.Errorf("type %q", rule.Type))
	}

	readyNewestFirst := make([]*catalog.BaseBackupDescr, 0, len(backups))
	for _, b := range backups {
		if b.Status == catalog.StatusReady {
			readyNewestFirst = append(readyNewestFirst, b)
		}
	}
	sort.Slice(readyNewestFirst, func(i, j int) bool { return readyNewestFirst[i].Started.After(readyNewestFirst[j].Started) })

	switch rule.Value {
	case "pinned":
		if rule.Type != catalog.RuleUnpin {
			return nil, apperrors.Retention("resolve pin selection", "\"pinned\" is unpin-only", nil)
		}
		var ids []int64
		for _, b := range backups {
			if b.Pinned {
				ids = append(ids, b.ID)
			}
		}
		return ids, nil

	case "newest":
		if len(readyNewestFirst) == 0 {
			return nil, nil
		}
		return []int64{readyNewestFirst[0].ID}, nil

	case "oldest":
		if len(readyNewestFirst) == 0 {
			return nil, nil
		}
		return []int64{readyNewestFirst[len(readyNewestFirst)-1].ID}, nil
	}

	if id, err := strconv.ParseInt(rule.Value, 10, 64); err == nil {
		return []int64{id}, nil
	}

	k, err := parseCount(rule.Value)
	if err != nil {
		return nil, apperrors.Retention("resolve pin selection", "unrecognized pin selector", err)
	}
	wantPinned := rule.Type == catalog.RulePin
	var ids []int64
	for _, b := range readyNewestFirst {
		if len(ids) >= k {
			break
		}
		if b.Pinned == wantPinned {
			continue
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func parseCount(v string) (int, error) {
	if len(v) > 0 && v[0] == '+' {
		v = v[1:]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("expected +k, \"newest\", \"oldest\", or an id, got %q", v)
	}
	return n, nil
}
