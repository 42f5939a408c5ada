// pmeta: local program metadata ledger
//
// pmeta keeps a single-node ledger of program metadata accounts in BadgerDB,
// journals every transaction in BoltDB and serves the ledger over JSON-RPC.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/journal"
	"github.com/fortiblox/x1-metadata/pkg/runtime"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Global flags
var (
	dataDir     = flag.String("data-dir", defaultDataDir(), "Data directory for the accounts database and journal")
	keypairPath = flag.String("keypair", defaultKeypairPath(), "Fee payer and default authority keypair")
	noJournal   = flag.Bool("no-journal", false, "Do not record transactions in the journal")
	verbose     = flag.Bool("verbose", false, "Print transaction logs")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

type command struct {
	usage string
	run   func(args []string) error
}

var commands = map[string]command{
	"genesis":          {"genesis", cmdGenesis},
	"keygen":           {"keygen <path>", cmdKeygen},
	"airdrop":          {"airdrop <address> <lamports>", cmdAirdrop},
	"deploy-program":   {"deploy-program [-legacy] [-authority path|none] <program-id> <code-file>", cmdDeployProgram},
	"create-buffer":    {"create-buffer [-out path] <file>", cmdCreateBuffer},
	"write":            {"write [options] <program-id> <file>", cmdWrite(writeAny)},
	"create":           {"create [options] <program-id> <file>", cmdWrite(writeCreate)},
	"update":           {"update [options] <program-id> <file>", cmdWrite(writeUpdate)},
	"fetch":            {"fetch [-seed s] [-authority key] [-raw] <program-id>", cmdFetch},
	"fetch-buffer":     {"fetch-buffer <address>", cmdFetchBuffer},
	"set-authority":    {"set-authority [-seed s] <program-id> <new-authority>", cmdSetAuthority},
	"remove-authority": {"remove-authority [-seed s] <program-id>", cmdRemoveAuthority},
	"set-immutable":    {"set-immutable [-seed s] [-third-party] <program-id>", cmdSetImmutable},
	"close":            {"close [-seed s] [-third-party] [-recipient key] <program-id>", cmdClose},
	"close-buffer":     {"close-buffer [-recipient key] <buffer-keypair>", cmdCloseBuffer},
	"trim":             {"trim [-seed s] [-third-party] [-recipient key] <program-id>", cmdTrim},
	"journal":          {"journal [-limit n] [address]", cmdJournal},
	"export":           {"export <snapshot-file>", cmdExport},
	"import":           {"import <snapshot-file>", cmdImport},
	"serve":            {"serve [-rpc-addr addr] [-log-requests]", cmdServe},
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("pmeta %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}
	if err := cmd.run(args[1:]); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: pmeta [global flags] <command> [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
	fmt.Fprintf(os.Stderr, "\nGlobal flags:\n")
	flag.PrintDefaults()
}

func defaultDataDir() string {
	if dir := os.Getenv("PMETA_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pmeta"
	}
	return filepath.Join(home, ".pmeta")
}

func defaultKeypairPath() string {
	return filepath.Join(defaultDataDir(), "id.json")
}

// ledger is an opened accounts database with an executor on top.
type ledger struct {
	db      *accounts.BadgerDB
	journal *journal.Journal
	exec    *runtime.Executor
}

// openLedger opens the accounts database and, unless disabled, the journal.
// Genesis accounts are written on first use.
func openLedger() (*ledger, error) {
	cfg := accounts.DefaultBadgerDBConfig(filepath.Join(*dataDir, "accounts"))
	db, err := accounts.NewBadgerDB(cfg)
	if err != nil {
		return nil, err
	}
	l := &ledger{
		db:   db,
		exec: runtime.NewExecutor(db, runtime.DefaultConfig()),
	}
	if !*noJournal {
		j, err := journal.Open(journal.DefaultConfig(filepath.Join(*dataDir, "journal.db")))
		if err != nil {
			db.Close()
			return nil, err
		}
		l.journal = j
		l.exec.SetRecorder(j)
	}
	if err := l.exec.Genesis(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (l *ledger) Close() {
	if l.journal != nil {
		if err := l.journal.Close(); err != nil {
			log.Printf("Warning: failed to close journal: %v", err)
		}
	}
	if err := l.db.Close(); err != nil {
		log.Printf("Warning: failed to close accounts database: %v", err)
	}
}

// send commits each step in order, stopping at the first failure. The payer
// signs every step; other signers are used where a step needs them.
func (l *ledger) send(payer *types.Keypair, steps [][]svm.Instruction, signers ...*types.Keypair) error {
	signers = append([]*types.Keypair{payer}, signers...)
	for i, step := range steps {
		tx, err := runtime.NewTransaction(payer.Pubkey(), step, l.exec.Blockhash())
		if err != nil {
			return fmt.Errorf("step %d: build transaction: %w", i+1, err)
		}
		if err := tx.Sign(signers...); err != nil {
			return fmt.Errorf("step %d: sign: %w", i+1, err)
		}
		result, err := l.exec.Execute(tx)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if *verbose || result.Err != nil {
			for _, line := range result.Logs {
				log.Printf("  %s", line)
			}
		}
		if result.Err != nil {
			return fmt.Errorf("step %d: %w", i+1, result.Err)
		}
		log.Printf("Step %d/%d committed: slot=%d signature=%s compute_units=%d",
			i+1, len(steps), result.Slot, result.Signature, result.ComputeUnitsUsed)
	}
	return nil
}

func loadPayer() (*types.Keypair, error) {
	kp, err := types.LoadKeypair(*keypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w (run `pmeta keygen %s`)", *keypairPath, err, *keypairPath)
	}
	return kp, nil
}

// parseAddress accepts a base58 address or a keypair file path.
func parseAddress(s string) (types.Pubkey, error) {
	if key, err := types.PubkeyFromBase58(s); err == nil {
		return key, nil
	}
	kp, err := types.LoadKeypair(s)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("%q is neither an address nor a keypair file", s)
	}
	return kp.Pubkey(), nil
}

// parseFlags parses a subcommand's flags and checks the positional count.
func parseFlags(fs *flag.FlagSet, args []string, positional ...string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != len(positional) {
		return nil, fmt.Errorf("expected arguments: %s", strings.Join(positional, " "))
	}
	return fs.Args(), nil
}
