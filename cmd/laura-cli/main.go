// Command laura-cli is a REPL over the catalog/executor core: create-table,
// create-index, insert, and scan, plus save-state/load-state against the
// directory snapshot (§6, §10.3).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mnohosten/laura-db/pkg/catalog"
	"github.com/mnohosten/laura-db/pkg/executor"
	"github.com/mnohosten/laura-db/pkg/index"
)

const (
	version = "0.1.0"
	banner  = `
laura-cli %s
Type 'help' for available commands, 'exit' or 'quit' to leave.

`
)

// CLI binds a catalog.Manager to a single-statement-at-a-time executor per
// database, mirroring the one-executor-per-transaction shape §4.10 assumes.
type CLI struct {
	mgr     *catalog.Manager
	nextTxn uint64
	scanner *bufio.Scanner
}

func newCLI(dataDir string, snapshotCompression bool) *CLI {
	return &CLI{
		mgr:     catalog.NewManager(dataDir, snapshotCompression),
		nextTxn: 1,
		scanner: bufio.NewScanner(os.Stdin),
	}
}

func (c *CLI) run() error {
	fmt.Printf(banner, version)
	for {
		fmt.Print("laura> ")
		if !c.scanner.Scan() {
			break
		}
		line := strings.TrimSpace(c.scanner.Text())
		if line == "" {
			continue
		}
		if err := c.dispatch(line); err != nil {
			if err.Error() == "exit" {
				fmt.Println("bye")
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return c.scanner.Err()
}

func (c *CLI) dispatch(line string) error {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "help", "?":
		printHelp()
		return nil
	case "exit", "quit":
		return fmt.Errorf("exit")
	case "create-database":
		return c.createDatabase(parts[1:])
	case "use":
		return c.useDatabase(parts[1:])
	case "databases":
		fmt.Println(strings.Join(c.mgr.ListDatabases(), "\n"))
		return nil
	case "create-table":
		return c.createTable(parts[1:])
	case "create-index":
		return c.createIndex(parts[1:])
	case "insert":
		return c.insert(parts[1:])
	case "scan":
		return c.scan(parts[1:])
	case "save-state":
		return c.mgr.SaveState()
	case "load-state":
		names, current, err := c.mgr.LoadState()
		if err != nil {
			return err
		}
		fmt.Printf("databases: %s\ncurrent: %s\n", strings.Join(names, ", "), current)
		return nil
	default:
		return fmt.Errorf("unknown command: %s (type 'help')", cmd)
	}
}

func printHelp() {
	fmt.Println(`
  create-database <name>                      open/create a database
  use <name>                                  switch the current database
  databases                                   list open databases
  create-table <name> <col:type>...           type is one of bool|tinyint|smallint|int|bigint
  create-index <name> <table> <col>           build a B+-tree index over one int-typed column
  insert <table> <v1> <v2>...                 insert one tuple (positional, fixed-width columns only)
  scan <table>                                sequential-scan every live tuple
  save-state / load-state                     persist/read the directory snapshot
  help, exit`)
}

func (c *CLI) createDatabase(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: create-database <name>")
	}
	return c.mgr.CreateDatabase(args[0])
}

func (c *CLI) useDatabase(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: use <name>")
	}
	return c.mgr.UseDatabase(args[0])
}

func (c *CLI) currentCatalog() (*catalog.Catalog, error) {
	return c.mgr.Current()
}

func (c *CLI) createTable(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: create-table <name> <col:type>...")
	}
	cat, err := c.currentCatalog()
	if err != nil {
		return err
	}
	cols := make([]catalog.Column, 0, len(args)-1)
	for _, spec := range args[1:] {
		name, typ, found := strings.Cut(spec, ":")
		if !found {
			return fmt.Errorf("bad column spec %q, want name:type", spec)
		}
		ct, err := parseColumnType(typ)
		if err != nil {
			return err
		}
		cols = append(cols, catalog.Column{Name: name, Type: ct})
	}
	_, err = cat.CreateTable(args[0], catalog.NewSchema(cols))
	return err
}

func parseColumnType(s string) (catalog.ColumnType, error) {
	switch strings.ToLower(s) {
	case "bool", "boolean":
		return catalog.ColumnBoolean, nil
	case "tinyint":
		return catalog.ColumnTinyInt, nil
	case "smallint":
		return catalog.ColumnSmallInt, nil
	case "int", "integer":
		return catalog.ColumnInteger, nil
	case "bigint":
		return catalog.ColumnBigInt, nil
	default:
		return 0, fmt.Errorf("unsupported column type %q (the cli only drives fixed-width columns)", s)
	}
}

func (c *CLI) createIndex(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: create-index <name> <table> <col>")
	}
	cat, err := c.currentCatalog()
	if err != nil {
		return err
	}
	table, ok := cat.GetTable(args[1])
	if !ok {
		return fmt.Errorf("table %s not found", args[1])
	}
	col, ok := table.Schema.ColumnByName(args[2])
	if !ok {
		return fmt.Errorf("column %s not found on table %s", args[2], args[1])
	}
	_, err = cat.CreateIndex(args[0], args[1], []catalog.Column{col}, 8, index.Int64Comparator)
	return err
}

func (c *CLI) insert(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: insert <table> <v1> <v2>...")
	}
	cat, err := c.currentCatalog()
	if err != nil {
		return err
	}
	table, ok := cat.GetTable(args[0])
	if !ok {
		return fmt.Errorf("table %s not found", args[0])
	}
	values := args[1:]
	if len(values) != len(table.Schema.Columns) {
		return fmt.Errorf("table %s has %d columns, got %d values", args[0], len(table.Schema.Columns), len(values))
	}
	tuple := make([]byte, table.Schema.TupleSize())
	for i, col := range table.Schema.Columns {
		if err := encodeColumn(tuple, col, values[i]); err != nil {
			return err
		}
	}

	exec := executor.New(cat, c.nextTxn)
	c.nextTxn++
	rid, err := exec.InsertTuple(args[0], tuple)
	if err != nil {
		return err
	}
	fmt.Println(rid)
	return nil
}

func encodeColumn(tuple []byte, col catalog.Column, value string) error {
	switch col.Type {
	case catalog.ColumnBoolean:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		if b {
			tuple[col.Offset] = 1
		}
	case catalog.ColumnTinyInt:
		v, err := strconv.ParseInt(value, 10, 8)
		if err != nil {
			return err
		}
		tuple[col.Offset] = byte(v)
	case catalog.ColumnSmallInt:
		v, err := strconv.ParseInt(value, 10, 16)
		if err != nil {
			return err
		}
		putInt(tuple[col.Offset:col.Offset+2], v)
	case catalog.ColumnInteger:
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return err
		}
		putInt(tuple[col.Offset:col.Offset+4], v)
	case catalog.ColumnBigInt, catalog.ColumnTimestamp:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		putInt(tuple[col.Offset:col.Offset+8], v)
	default:
		return fmt.Errorf("column %s: unsupported type for the cli (%s)", col.Name, col.Type)
	}
	return nil
}

func putInt(b []byte, v int64) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}

func (c *CLI) scan(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: scan <table>")
	}
	cat, err := c.currentCatalog()
	if err != nil {
		return err
	}
	exec := executor.New(cat, c.nextTxn)
	it, err := exec.SeqScan(args[0])
	if err != nil {
		return err
	}
	count := 0
	for {
		rid, _, ok := it.Next()
		if !ok {
			break
		}
		fmt.Println(rid)
		count++
	}
	fmt.Printf("%d tuple(s)\n", count)
	return nil
}

func main() {
	dataDir := flag.String("data-dir", "./data", "root directory for per-database heap/log/index files")
	snapshotCompression := flag.Bool("compress-snapshot", false, "zstd-compress the save-state directory snapshot")
	flag.Parse()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data dir: %v\n", err)
		os.Exit(1)
	}

	cli := newCLI(*dataDir, *snapshotCompression)
	defer cli.mgr.Close()

	if err := cli.run(); err != nil {
		fmt.Fprintf(os.Stderr, "cli error: %v\n", err)
		os.Exit(1)
	}
}
