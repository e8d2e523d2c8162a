package main

import (
	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/dispatch"
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Manage retention policies (CREATE/DROP/LIST/APPLY RETENTION POLICY)",
}

var retentionRules []string

var retentionCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a retention policy",
	Long: `Create a retention policy from one or more rules, each given as
--rule TYPE=VALUE (e.g. --rule keep_num=5 --rule 'drop_older_dt=+6 months').`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := parseRules(retentionRules)
		if err != nil {
			return err
		}
		return runDispatch(cmd, dispatch.Request{
			Tag:           dispatch.TagCreateRetentionPolicy,
			RetentionRule: &catalog.RetentionPolicyDescr{Name: args[0], Rules: rules},
		})
	},
}

var retentionDropCmd = &cobra.Command{
	Use:   "drop NAME",
	Short: "Drop a retention policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagDropRetentionPolicy, PolicyName: args[0]})
	},
}

var retentionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List retention policies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagListRetentionPolicies})
	},
}

var retentionApplyCmd = &cobra.Command{
	Use:   "apply POLICY ARCHIVE",
	Short: "Apply a retention policy to an archive's basebackups",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{
			Tag:         dispatch.TagApplyRetentionPolicy,
			PolicyName:  args[0],
			ArchiveName: args[1],
		})
	},
}

// parseRules turns "--rule type=value" flags into RetentionRuleDescrs.
func parseRules(raw []string) ([]catalog.RetentionRuleDescr, error) {
	rules := make([]catalog.RetentionRuleDescr, 0, len(raw))
	for _, r := range raw {
		t, v, err := splitRule(r)
		if err != nil {
			return nil, err
		}
		rules = append(rules, catalog.RetentionRuleDescr{Type: catalog.RuleType(t), Value: v})
	}
	return rules, nil
}

func splitRule(r string) (string, string, error) {
	for i := 0; i < len(r); i++ {
		if r[i] == '=' {
			return r[:i], r[i+1:], nil
		}
	}
	return "", "", errMissingArg("--rule TYPE=VALUE (got " + r + ")")
}

func init() {
	retentionCreateCmd.Flags().StringArrayVar(&retentionRules, "rule", nil, "A retention rule as TYPE=VALUE; may be repeated")

	retentionCmd.AddCommand(retentionCreateCmd, retentionDropCmd, retentionListCmd, retentionApplyCmd)
	rootCmd.AddCommand(retentionCmd)
}
