// Package main contains the cli implementation of the tool. It uses
// cobra for the command tree and viper for configuration: a TOML config
// file given with --config supplies the whole connection configuration;
// otherwise the url comes from --url, falling back to the SQLMODEL_URL
// environment variable.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"sqlmodel"
	"sqlmodel/internal/console"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/query"
)

const version = "0.1.0"

type rootFlags struct {
	url        string
	configFile string
	timeoutSec int
	verbose    bool
}

func main() {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "sqlmodel",
		Short: "Database toolkit: drivers, builders, introspection",
	}
	rootCmd.PersistentFlags().StringVar(&flags.url, "url", "", "connection url (postgres://, mysql://, sqlite://)")
	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "TOML connection config file")
	rootCmd.PersistentFlags().IntVar(&flags.timeoutSec, "timeout", 30, "operation timeout in seconds")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log connection progress")

	rootCmd.AddCommand(pingCmd(flags))
	rootCmd.AddCommand(tablesCmd(flags))
	rootCmd.AddCommand(describeCmd(flags))
	rootCmd.AddCommand(execCmd(flags))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveConfig loads the --config file when one is given (--url and the
// environment are then ignored); otherwise it parses --url, or
// SQLMODEL_URL when the flag is empty.
func resolveConfig(flags *rootFlags) (*driver.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SQLMODEL")
	v.AutomaticEnv()

	if flags.configFile != "" {
		cfg, err := driver.LoadConfigFile(flags.configFile)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	url := flags.url
	if url == "" {
		url = v.GetString("URL")
	}
	if url == "" {
		return nil, fmt.Errorf("no connection url: pass --url, set SQLMODEL_URL, or use --config")
	}
	return driver.ParseURL(url)
}

func connect(ctx context.Context, flags *rootFlags) (sqlmodel.Conn, error) {
	cfg, err := resolveConfig(flags)
	if err != nil {
		return nil, err
	}
	var cons sqlmodel.Console
	if flags.verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		cons = console.NewLogger(log)
	}
	return sqlmodel.Connect(ctx, cfg, cons)
}

func withConn(flags *rootFlags, fn func(ctx context.Context, conn sqlmodel.Conn) error) error {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(flags.timeoutSec)*time.Second)
	defer cancel()
	conn, err := connect(ctx, flags)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return fn(ctx, conn)
}

func pingCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect and verify the server responds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(flags, func(ctx context.Context, conn sqlmodel.Conn) error {
				if err := conn.Ping(ctx); err != nil {
					return err
				}
				fmt.Printf("ok: %s %s\n", conn.Dialect(), conn.ServerVersion())
				return nil
			})
		},
	}
}

func tablesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the database's tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(flags, func(ctx context.Context, conn sqlmodel.Conn) error {
				tables, err := sqlmodel.ListTables(ctx, conn)
				if err != nil {
					return err
				}
				for _, t := range tables {
					fmt.Println(t)
				}
				return nil
			})
		},
	}
}

func describeCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "describe <table>",
		Short: "Show a table's columns, keys, indexes, and checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(flags, func(ctx context.Context, conn sqlmodel.Conn) error {
				info, err := sqlmodel.Introspect(ctx, conn, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(info)
				}
				printTable(info)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func printTable(info *sqlmodel.TableInfo) {
	fmt.Printf("table %s\n", info.Name)
	for _, c := range info.Columns {
		attrs := []string{c.SQLType}
		if !c.Nullable {
			attrs = append(attrs, "not null")
		}
		if c.PrimaryKey {
			attrs = append(attrs, "pk")
		}
		if c.AutoIncrement {
			attrs = append(attrs, "auto")
		}
		if c.Default != nil {
			attrs = append(attrs, "default "+*c.Default)
		}
		fmt.Printf("  %-24s %s\n", c.Name, strings.Join(attrs, " "))
	}
	for _, fk := range info.ForeignKeys {
		fmt.Printf("  fk %s -> %s.%s", fk.Column, fk.RefTable, fk.RefColumn)
		if fk.OnDelete != "" {
			fmt.Printf(" on delete %s", fk.OnDelete)
		}
		fmt.Println()
	}
	for _, idx := range info.Indexes {
		kind := "index"
		if idx.Unique {
			kind = "unique index"
		}
		fmt.Printf("  %s %s (%s)\n", kind, idx.Name, strings.Join(idx.Columns, ", "))
	}
	for _, chk := range info.Checks {
		fmt.Printf("  check %s\n", chk.Expression)
	}
}

func execCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql> [args...]",
		Short: "Run a statement with optional positional string parameters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(flags, func(ctx context.Context, conn sqlmodel.Conn) error {
				params := make([]sqlmodel.Value, 0, len(args)-1)
				for _, a := range args[1:] {
					params = append(params, query.ToValue(a))
				}
				rows, err := conn.Query(ctx, args[0], params)
				if err != nil {
					return err
				}
				if rows.Header.Len() == 0 {
					fmt.Printf("%d rows affected\n", rows.Affected)
					return nil
				}
				fmt.Println(strings.Join(rows.Header.Names(), "\t"))
				for _, row := range rows.Rows {
					cells := make([]string, row.Len())
					for i := range cells {
						cells[i] = row.Index(i).String()
					}
					fmt.Println(strings.Join(cells, "\t"))
				}
				return nil
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tool version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("sqlmodel", version)
		},
	}
}
