package main

import (
	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/dispatch"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage backup profiles (CREATE/DROP/LIST BACKUP PROFILE)",
}

var (
	profileCompressType      string
	profileMaxRate           int
	profileLabel             string
	profileFastCheckpoint    bool
	profileIncludeWAL        bool
	profileWaitForWAL        bool
	profileNoverifyChecksums bool
	profileManifest          bool
	profileManifestChecksums string
)

var profileCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a backup profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{
			Tag: dispatch.TagCreateBackupProfile,
			Profile: &catalog.BackupProfileDescr{
				Name:              args[0],
				CompressType:      catalog.CompressType(profileCompressType),
				MaxRate:           profileMaxRate,
				Label:             profileLabel,
				FastCheckpoint:    profileFastCheckpoint,
				IncludeWAL:        profileIncludeWAL,
				WaitForWAL:        profileWaitForWAL,
				NoverifyChecksums: profileNoverifyChecksums,
				Manifest:          profileManifest,
				ManifestChecksums: profileManifestChecksums,
			},
		})
	},
}

var profileDropCmd = &cobra.Command{
	Use:   "drop NAME",
	Short: "Drop a backup profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagDropBackupProfile, ProfileName: args[0]})
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagListBackupProfile})
	},
}

func init() {
	f := profileCreateCmd.Flags()
	f.StringVar(&profileCompressType, "compress-type", "gzip", "Compression type (none, gzip, zstd, xz, plain)")
	f.IntVar(&profileMaxRate, "max-rate", 0, "Maximum transfer rate in KB/s (0 = unlimited)")
	f.StringVar(&profileLabel, "label", "", "Basebackup label template")
	f.BoolVar(&profileFastCheckpoint, "fast-checkpoint", false, "Force an immediate checkpoint before starting")
	f.BoolVar(&profileIncludeWAL, "include-wal", false, "Include WAL segments with the basebackup")
	f.BoolVar(&profileWaitForWAL, "wait-for-wal", true, "Wait for the final WAL segment to be archived")
	f.BoolVar(&profileNoverifyChecksums, "noverify-checksums", false, "Skip data checksum verification")
	f.BoolVar(&profileManifest, "manifest", false, "Generate a backup manifest")
	f.StringVar(&profileManifestChecksums, "manifest-checksums", "", "Manifest checksum algorithm")

	profileCmd.AddCommand(profileCreateCmd, profileDropCmd, profileListCmd)
	rootCmd.AddCommand(profileCmd)
}
