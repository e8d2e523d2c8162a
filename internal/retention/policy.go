package retention

import (
	"context"
	"time"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
)

// ApplyRetentionPolicy runs every rule in policy against the current
// backup list for one archive. Pin/unpin rules are resolved and applied
// immediately as a batch update; every other rule contributes to a single
// merged CleanupDescriptor that is evaluated in full, up front, before any
// mutation — an error from any rule aborts the whole application with no
// catalog or filesystem changes ("the engine never
// partially applies a plan").
func ApplyRetentionPolicy(ctx context.Context, cat *catalog.Catalog, archiveID int64, policy *catalog.RetentionPolicyDescr, shmLocked map[int64]bool, fs ArchiveFS, now time.Time) (*CleanupDescriptor, error) {
	backups, err := cat.GetBackupList(ctx, archiveID)
	if err != nil {
		return nil, err
	}

	merged := &CleanupDescriptor{Mode: ModeNone, BasebackupMode: BasebackupDelete}
	var pinOps []func() error

	for _, rule := range policy.Rules {
		switch rule.Type {
		case catalog.RulePin, catalog.RuleUnpin:
			ids, err := ResolvePinSelection(rule, backups)
			if err != nil {
				return nil, err
			}
			wantPinned := rule.Type == catalog.RulePin
			pinOps = append(pinOps, func() error {
				if len(ids) == 0 {
					return nil
				}
				return cat.PerformPinAction(ctx, ids, wantPinned)
			})
		default:
			plan, err := EvaluateRule(rule, backups, shmLocked, now)
			if err != nil {
				return nil, err
			}
			if merged.Mode == ModeNone {
				merged.Mode = plan.Mode
			}
			merged.Merge(plan)
		}
	}

	for _, op := range pinOps {
		if err := op(); err != nil {
			return nil, err
		}
	}

	if len(merged.Backups) == 0 && len(merged.PerTimelineOffsets) == 0 {
		return merged, nil
	}
	if err := ApplyPlan(ctx, cat, merged, fs); err != nil {
		return nil, err
	}
	return merged, nil
}
