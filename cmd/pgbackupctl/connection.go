package main

import (
	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/dispatch"
)

var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Manage streaming connections (CREATE/DROP/LIST STREAMING CONNECTION)",
}

var (
	connType string
	connDSN  string
	connHost string
	connPort int
	connUser string
	connDB   string
)

var connectionCreateCmd = &cobra.Command{
	Use:   "create ARCHIVE",
	Short: "Attach a streaming connection to an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := &catalog.ConnectionDescr{Type: catalog.ConnType(connType)}
		if connDSN != "" {
			d.DSN = connDSN
		} else {
			d.Host, d.Port, d.User, d.DBName = connHost, connPort, connUser, connDB
		}
		return runDispatch(cmd, dispatch.Request{
			Tag:         dispatch.TagCreateStreamingConnection,
			ArchiveName: args[0],
			Connection:  d,
		})
	},
}

var connectionDropCmd = &cobra.Command{
	Use:   "drop ARCHIVE",
	Short: "Detach a streaming connection from an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{
			Tag:         dispatch.TagDropStreamingConnection,
			ArchiveName: args[0],
			Connection:  &catalog.ConnectionDescr{Type: catalog.ConnType(connType)},
		})
	},
}

var connectionListCmd = &cobra.Command{
	Use:   "list ARCHIVE",
	Short: "List an archive's streaming connections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagListConnection, ArchiveName: args[0]})
	},
}

func init() {
	for _, c := range []*cobra.Command{connectionCreateCmd, connectionDropCmd} {
		c.Flags().StringVar(&connType, "type", string(catalog.ConnStreamer), "Connection purpose (basebackup, streamer)")
	}
	f := connectionCreateCmd.Flags()
	f.StringVar(&connDSN, "dsn", "", "Full connection URI (overrides host/port/user/dbname)")
	f.StringVar(&connHost, "host", "localhost", "PostgreSQL host")
	f.IntVar(&connPort, "port", 5432, "PostgreSQL port")
	f.StringVar(&connUser, "user", "postgres", "PostgreSQL user (replication role)")
	f.StringVar(&connDB, "dbname", "", "Database name to connect to for basebackup purposes")

	connectionCmd.AddCommand(connectionCreateCmd, connectionDropCmd, connectionListCmd)
	rootCmd.AddCommand(connectionCmd)
}
