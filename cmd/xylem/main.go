// Command xylem is an interactive inspector for table databases: it
// opens a database and exposes the raw record operations of the storage
// layer, plus snapshot and verification helpers.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/xylemdb/xylem/pkg/common/log"
	"github.com/xylemdb/xylem/pkg/config"
	"github.com/xylemdb/xylem/pkg/snapshot"
	"github.com/xylemdb/xylem/pkg/stats"
	"github.com/xylemdb/xylem/pkg/table"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".create"),
	readline.PcItem(".close"),
	readline.PcItem(".flush"),
	readline.PcItem(".stats"),
	readline.PcItem(".verify"),
	readline.PcItem(".snapshot"),
	readline.PcItem(".restore"),
	readline.PcItem(".exit"),
	readline.PcItem("READ"),
	readline.PcItem("WRITE"),
	readline.PcItem("INSERT"),
	readline.PcItem("DELETE"),
	readline.PcItem("SIZE"),
	readline.PcItem("BLOCKS"),
)

const helpText = `
Xylem - paged table storage inspector.

Commands:
  .help                   - Show this help message
  .open DIR [PREFIX]      - Open the table database in DIR
  .create DIR [PREFIX]    - Create a new table database in DIR
  .close                  - Close the current database
  .flush                  - Persist buffer and index sidecars
  .stats                  - Show operation statistics
  .verify                 - Print the content checksum
  .snapshot FILE [CODEC]  - Write a snapshot (codec: none, snappy, zstd)
  .restore FILE DIR [PREFIX] - Restore a snapshot into DIR
  .exit                   - Exit the program

  READ W PRE OFF          - Read a W-byte value (W: 1, 2, 4, 5)
  WRITE W PRE OFF VALUE   - Write a W-byte value
  INSERT PRE HEX          - Insert records (hex payload) after PRE
  DELETE FIRST NR         - Delete NR records starting at FIRST
  SIZE                    - Number of records
  BLOCKS                  - Number of used blocks
`

type session struct {
	cfg   *config.Config
	tbl   *table.DiskTable
	stats *stats.Collector
	path  string
}

func main() {
	blockPower := flag.Uint("block-power", config.DefaultBlockPower, "Block size as a power of two")
	nodePower := flag.Uint("node-power", config.DefaultNodePower, "Record size as a power of two")
	fillFactor := flag.Float64("fill", config.DefaultFillFactor, "Fill factor for fresh blocks")
	prefix := flag.String("prefix", "tbl", "Filename prefix of the table files")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Xylem - paged table storage inspector\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: xylem [options] [database_dir]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nStart xylem and type .help for the command list.\n")
	}
	flag.Parse()

	level := log.LevelInfo
	if *debug {
		level = log.LevelDebug
	}
	logger := log.NewStandardLogger(log.WithLevel(level))
	log.SetDefaultLogger(logger)

	s := &session{
		cfg: &config.Config{
			Version:    config.CurrentManifestVersion,
			BlockPower: *blockPower,
			NodePower:  *nodePower,
			FillFactor: *fillFactor,
		},
		stats: stats.NewCollector(),
	}
	if err := s.cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if flag.NArg() > 0 {
		if err := s.open(flag.Arg(0), *prefix); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %s\n", err)
			os.Exit(1)
		}
	}

	runInteractive(s, *prefix)
}

func (s *session) open(dir, prefix string) error {
	if s.tbl != nil {
		return fmt.Errorf("a database is already open; .close it first")
	}
	if cfg, err := config.LoadManifest(dir); err == nil {
		s.cfg = cfg
	} else if !errors.Is(err, config.ErrManifestNotFound) {
		return err
	}
	tbl, err := table.Open(s.cfg, dir, prefix, table.WithStats(s.stats))
	if err != nil {
		return err
	}
	s.tbl = tbl
	s.path = dir
	fmt.Printf("Opened %s: %d records in %d blocks\n", dir, tbl.Size(), tbl.Blocks())
	return nil
}

func (s *session) create(dir, prefix string) error {
	if s.tbl != nil {
		return fmt.Errorf("a database is already open; .close it first")
	}
	tbl, err := table.Create(s.cfg, dir, prefix, table.WithStats(s.stats))
	if err != nil {
		return err
	}
	if err := s.cfg.SaveManifest(dir); err != nil {
		tbl.Close()
		return err
	}
	s.tbl = tbl
	s.path = dir
	fmt.Printf("Created %s\n", dir)
	return nil
}

func (s *session) close() error {
	if s.tbl == nil {
		return nil
	}
	err := s.tbl.Close()
	s.tbl = nil
	s.path = ""
	return err
}

func runInteractive(s *session, prefix string) {
	fmt.Println("Xylem table inspector")
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".xylem_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "xylem> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		if s.path != "" {
			rl.SetPrompt(fmt.Sprintf("xylem:%s> ", s.path))
		} else {
			rl.SetPrompt("xylem> ")
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if done := dispatch(s, line, prefix); done {
			break
		}
	}

	if err := s.close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing database: %s\n", err)
	}
}

// dispatch executes one command line; it returns true on .exit.
func dispatch(s *session, line, prefix string) bool {
	fields := strings.Fields(line)
	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	var err error
	switch cmd {
	case ".EXIT":
		return true

	case ".HELP":
		fmt.Print(helpText)

	case ".OPEN":
		if len(args) < 1 {
			err = fmt.Errorf("usage: .open DIR [PREFIX]")
			break
		}
		err = s.open(args[0], argOr(args, 1, prefix))

	case ".CREATE":
		if len(args) < 1 {
			err = fmt.Errorf("usage: .create DIR [PREFIX]")
			break
		}
		err = s.create(args[0], argOr(args, 1, prefix))

	case ".CLOSE":
		err = s.close()

	case ".FLUSH":
		if s.tbl == nil {
			err = fmt.Errorf("no open database")
			break
		}
		err = s.tbl.Flush()

	case ".STATS":
		printStats(s.stats.GetStats())

	case ".VERIFY":
		if s.tbl == nil {
			err = fmt.Errorf("no open database")
			break
		}
		var sum uint64
		if sum, err = s.tbl.Checksum(); err == nil {
			fmt.Printf("checksum: %016x\n", sum)
		}

	case ".SNAPSHOT":
		err = doSnapshot(s, args, prefix)

	case ".RESTORE":
		err = doRestore(args, prefix)

	case "SIZE":
		if s.tbl == nil {
			err = fmt.Errorf("no open database")
			break
		}
		fmt.Println(s.tbl.Size())

	case "BLOCKS":
		if s.tbl == nil {
			err = fmt.Errorf("no open database")
			break
		}
		fmt.Println(s.tbl.Blocks())

	case "READ":
		err = doRead(s, args)

	case "WRITE":
		err = doWrite(s, args)

	case "INSERT":
		err = doInsert(s, args)

	case "DELETE":
		err = doDelete(s, args)

	default:
		err = fmt.Errorf("unknown command %q; try .help", fields[0])
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	return false
}

func argOr(args []string, i int, fallback string) string {
	if i < len(args) {
		return args[i]
	}
	return fallback
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func doRead(s *session, args []string) error {
	if s.tbl == nil {
		return fmt.Errorf("no open database")
	}
	if len(args) != 3 {
		return fmt.Errorf("usage: READ W PRE OFF")
	}
	n, err := parseInts(args)
	if err != nil {
		return err
	}
	var v uint64
	switch n[0] {
	case 1:
		var u uint32
		u, err = s.tbl.Read1(n[1], n[2])
		v = uint64(u)
	case 2:
		var u uint32
		u, err = s.tbl.Read2(n[1], n[2])
		v = uint64(u)
	case 4:
		var u uint32
		u, err = s.tbl.Read4(n[1], n[2])
		v = uint64(u)
	case 5:
		v, err = s.tbl.Read5(n[1], n[2])
	default:
		return fmt.Errorf("width must be 1, 2, 4 or 5")
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d (0x%x)\n", v, v)
	return nil
}

func doWrite(s *session, args []string) error {
	if s.tbl == nil {
		return fmt.Errorf("no open database")
	}
	if len(args) != 4 {
		return fmt.Errorf("usage: WRITE W PRE OFF VALUE")
	}
	n, err := parseInts(args[:3])
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(args[3], 0, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", args[3])
	}
	switch n[0] {
	case 1:
		return s.tbl.Write1(n[1], n[2], uint32(v))
	case 2:
		return s.tbl.Write2(n[1], n[2], uint32(v))
	case 4:
		return s.tbl.Write4(n[1], n[2], uint32(v))
	case 5:
		return s.tbl.Write5(n[1], n[2], v)
	}
	return fmt.Errorf("width must be 1, 2, 4 or 5")
}

func doInsert(s *session, args []string) error {
	if s.tbl == nil {
		return fmt.Errorf("no open database")
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: INSERT PRE HEX")
	}
	pre, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("not a number: %q", args[0])
	}
	payload, err := hex.DecodeString(strings.Join(args[1:], ""))
	if err != nil {
		return fmt.Errorf("bad hex payload: %w", err)
	}
	return s.tbl.Insert(pre, payload)
}

func doDelete(s *session, args []string) error {
	if s.tbl == nil {
		return fmt.Errorf("no open database")
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: DELETE FIRST NR")
	}
	n, err := parseInts(args)
	if err != nil {
		return err
	}
	return s.tbl.Delete(n[0], n[1])
}

func doSnapshot(s *session, args []string, prefix string) error {
	if s.tbl == nil {
		return fmt.Errorf("no open database")
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: .snapshot FILE [CODEC]")
	}
	codec, err := parseCodec(argOr(args, 1, "zstd"))
	if err != nil {
		return err
	}
	if err := s.tbl.Flush(); err != nil {
		return err
	}
	file, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer file.Close()
	if err := snapshot.Write(s.path, prefix, file, codec); err != nil {
		return err
	}
	fmt.Printf("Snapshot written to %s\n", args[0])
	return nil
}

func doRestore(args []string, prefix string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: .restore FILE DIR [PREFIX]")
	}
	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()
	if err := snapshot.Restore(file, args[1], argOr(args, 2, prefix)); err != nil {
		return err
	}
	fmt.Printf("Restored into %s\n", args[1])
	return nil
}

func parseCodec(name string) (snapshot.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "none":
		return snapshot.CodecNone, nil
	case "snappy":
		return snapshot.CodecSnappy, nil
	case "zstd":
		return snapshot.CodecZstd, nil
	}
	return 0, fmt.Errorf("unknown codec %q (none, snappy, zstd)", name)
}

func printStats(st stats.Stats) {
	fmt.Printf("uptime: %s\n", st.Uptime.Round(time.Millisecond))
	fmt.Printf("bytes read: %d, bytes written: %d\n", st.BytesRead, st.BytesWritten)
	for _, op := range []stats.OperationType{
		stats.OpRead, stats.OpWrite, stats.OpInsert, stats.OpDelete,
		stats.OpBlockRead, stats.OpBlockWrite, stats.OpBlockAlloc, stats.OpFlush,
	} {
		fmt.Printf("%-12s %d\n", op, st.Counts[op])
	}
}
