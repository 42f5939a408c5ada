package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/client"
	"github.com/fortiblox/x1-metadata/pkg/content"
	"github.com/fortiblox/x1-metadata/pkg/journal"
	"github.com/fortiblox/x1-metadata/pkg/rpc"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/system"
)

func cmdGenesis(args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	hash, err := accounts.ComputeAccountsHash(l.db)
	if err != nil {
		return err
	}
	count, err := l.db.AccountsCount()
	if err != nil {
		return err
	}
	fmt.Printf("slot=%d accounts=%d hash=%s\n", l.db.GetSlot(), count, hash)
	return nil
}

func cmdKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing file")
	pos, err := parseFlags(fs, args, "<path>")
	if err != nil {
		return err
	}
	if _, err := os.Stat(pos[0]); err == nil && !*force {
		return fmt.Errorf("%s already exists", pos[0])
	}
	kp, err := types.NewKeypair()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(pos[0]), 0700); err != nil {
		return err
	}
	if err := types.SaveKeypair(pos[0], kp); err != nil {
		return err
	}
	fmt.Println(kp.Pubkey())
	return nil
}

func cmdAirdrop(args []string) error {
	fs := flag.NewFlagSet("airdrop", flag.ExitOnError)
	pos, err := parseFlags(fs, args, "<address>", "<lamports>")
	if err != nil {
		return err
	}
	to, err := parseAddress(pos[0])
	if err != nil {
		return err
	}
	lamports, err := strconv.ParseUint(pos[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lamports: %w", err)
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()
	if err := l.exec.Airdrop(to, lamports); err != nil {
		return err
	}
	acc, err := l.exec.GetAccount(to)
	if err != nil {
		return err
	}
	fmt.Printf("%s balance=%d\n", to, acc.Lamports)
	return nil
}

func cmdDeployProgram(args []string) error {
	fs := flag.NewFlagSet("deploy-program", flag.ExitOnError)
	legacy := fs.Bool("legacy", false, "Deploy with the non-upgradeable loader")
	authorityArg := fs.String("authority", "", "Upgrade authority address or keypair, or \"none\" (default: -keypair)")
	pos, err := parseFlags(fs, args, "<program-id>", "<code-file>")
	if err != nil {
		return err
	}
	program, err := parseAddress(pos[0])
	if err != nil {
		return err
	}
	code, err := os.ReadFile(pos[1])
	if err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	if *legacy {
		if err := l.exec.DeployLegacy(program, code); err != nil {
			return err
		}
		fmt.Printf("program=%s loader=legacy\n", program)
		return nil
	}

	var authority *types.Pubkey
	switch *authorityArg {
	case "none":
	case "":
		payer, err := loadPayer()
		if err != nil {
			return err
		}
		key := payer.Pubkey()
		authority = &key
	default:
		key, err := parseAddress(*authorityArg)
		if err != nil {
			return err
		}
		authority = &key
	}
	programData, err := l.exec.Deploy(program, authority, code)
	if err != nil {
		return err
	}
	fmt.Printf("program=%s program_data=%s\n", program, programData)
	return nil
}

// recordFlags select a metadata record of a program.
type recordFlags struct {
	seed       *string
	thirdParty *bool
	authority  *string
}

func addRecordFlags(fs *flag.FlagSet) *recordFlags {
	return &recordFlags{
		seed:       fs.String("seed", "idl", "Record seed, at most 16 bytes"),
		thirdParty: fs.Bool("third-party", false, "Use the authority's own record instead of the canonical one"),
		authority:  fs.String("authority", "", "Authority keypair (default: -keypair)"),
	}
}

// target is a resolved record address with the keys needed to manage it.
type target struct {
	program   types.Pubkey
	address   types.Pubkey
	seed      state.Seed
	canonical bool
	owner     *client.Owner
	authority *types.Keypair
}

func (f *recordFlags) resolve(l *ledger, programArg string, payer *types.Keypair) (*target, error) {
	program, err := parseAddress(programArg)
	if err != nil {
		return nil, err
	}
	seed, err := client.Seed(*f.seed)
	if err != nil {
		return nil, err
	}
	authority := payer
	if *f.authority != "" {
		if authority, err = types.LoadKeypair(*f.authority); err != nil {
			return nil, err
		}
	}
	owner, _, err := client.ResolveOwner(l.db, program, authority.Pubkey())
	if err != nil {
		return nil, err
	}

	t := &target{
		program:   program,
		seed:      seed,
		canonical: !*f.thirdParty,
		owner:     owner,
		authority: authority,
	}
	var delegate *types.Pubkey
	if *f.thirdParty {
		key := authority.Pubkey()
		delegate = &key
	}
	if t.address, err = client.FindMetadataAddress(program, delegate, seed); err != nil {
		return nil, err
	}
	return t, nil
}

type writeMode int

const (
	writeAny writeMode = iota
	writeCreate
	writeUpdate
)

// cmdWrite publishes a file as a record. The file holds the content for the
// direct source, the URL for the url source, and "address[:offset[:length]]"
// for the external source.
func cmdWrite(mode writeMode) func(args []string) error {
	return func(args []string) error {
		fs := flag.NewFlagSet("write", flag.ExitOnError)
		rf := addRecordFlags(fs)
		encodingArg := fs.String("encoding", "utf8", "Payload encoding: none, utf8, base58, base64")
		compressionArg := fs.String("compression", "none", "Payload compression: none, gzip, zstd")
		formatArg := fs.String("format", "json", "Content format: none, json, yaml, toml")
		sourceArg := fs.String("source", "direct", "Data source: direct, url, external")
		bufferArg := fs.String("buffer", "", "Keypair for the staging buffer (default: a new one)")
		pos, err := parseFlags(fs, args, "<program-id>", "<file>")
		if err != nil {
			return err
		}

		var format client.Format
		if format.Encoding, err = state.ParseEncoding(*encodingArg); err != nil {
			return err
		}
		if format.Compression, err = state.ParseCompression(*compressionArg); err != nil {
			return err
		}
		if format.Format, err = state.ParseFormat(*formatArg); err != nil {
			return err
		}
		source, err := state.ParseDataSource(*sourceArg)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(pos[1])
		if err != nil {
			return err
		}
		data, err := payload(source, strings.TrimSpace(string(raw)), format)
		if err != nil {
			return err
		}

		payer, err := loadPayer()
		if err != nil {
			return err
		}
		buffer, err := types.NewKeypair()
		if err != nil {
			return err
		}
		if *bufferArg != "" {
			if buffer, err = types.LoadKeypair(*bufferArg); err != nil {
				return err
			}
		}
		bufferKey := buffer.Pubkey()

		l, err := openLedger()
		if err != nil {
			return err
		}
		defer l.Close()
		t, err := rf.resolve(l, pos[0], payer)
		if err != nil {
			return err
		}

		existing, err := l.exec.GetAccount(t.address)
		switch {
		case errors.Is(err, accounts.ErrAccountNotFound):
			if mode == writeUpdate {
				return fmt.Errorf("record %s does not exist", t.address)
			}
			existing = nil
		case err != nil:
			return err
		case mode == writeCreate:
			return fmt.Errorf("record %s already exists", t.address)
		}

		plan, err := client.PlanWrite(client.WriteParams{
			Payer:      payer.Pubkey(),
			Authority:  t.authority.Pubkey(),
			Owner:      *t.owner,
			Canonical:  t.canonical,
			Seed:       t.seed,
			Format:     format,
			DataSource: source,
			Data:       data,
			Rent:       l.exec.Config().Rent,
			Existing:   existing,
			Buffer:     &bufferKey,
		})
		if err != nil {
			return err
		}
		log.Printf("Writing %d bytes to %s in %d transaction(s)", len(data), plan.Address, len(plan.Steps))
		if err := l.send(payer, plan.Steps, t.authority, buffer); err != nil {
			return err
		}
		fmt.Println(plan.Address)
		return nil
	}
}

// payload builds the stored bytes for a data source.
func payload(source state.DataSource, text string, format client.Format) ([]byte, error) {
	switch source {
	case state.DataSourceExternal:
		parts := strings.Split(text, ":")
		if len(parts) > 3 {
			return nil, fmt.Errorf("external reference %q: want address[:offset[:length]]", text)
		}
		var ref state.ExternalData
		var err error
		if ref.Address, err = types.PubkeyFromBase58(parts[0]); err != nil {
			return nil, err
		}
		for i, dst := range []*uint32{&ref.Offset, &ref.Length} {
			if i+1 >= len(parts) {
				break
			}
			v, err := strconv.ParseUint(parts[i+1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("external reference %q: %w", text, err)
			}
			*dst = uint32(v)
		}
		return content.PackExternal(ref), nil
	case state.DataSourceUrl:
		return content.Pack(text, state.EncodingUtf8, state.CompressionNone)
	default:
		return content.Pack(text, format.Encoding, format.Compression)
	}
}

func cmdCreateBuffer(args []string) error {
	fs := flag.NewFlagSet("create-buffer", flag.ExitOnError)
	out := fs.String("out", "", "Save the buffer keypair to this path")
	pos, err := parseFlags(fs, args, "<file>")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(pos[0])
	if err != nil {
		return err
	}
	payer, err := loadPayer()
	if err != nil {
		return err
	}
	buffer, err := types.NewKeypair()
	if err != nil {
		return err
	}
	if *out != "" {
		if err := types.SaveKeypair(*out, buffer); err != nil {
			return err
		}
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	key := buffer.Pubkey()
	rent := l.exec.Config().Rent.MinimumBalance(state.HeaderLen + len(data))
	steps := [][]svm.Instruction{{
		system.Transfer(payer.Pubkey(), key, rent),
		client.Allocate(key, key, nil, nil),
	}}
	chunk := client.WriteChunkSize(payer.Pubkey(), key, key)
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		steps = append(steps, []svm.Instruction{client.Write(key, key, uint32(off), data[off:end])})
	}
	if err := l.send(payer, steps, buffer); err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}

func cmdFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	seedArg := fs.String("seed", "idl", "Record seed")
	authorityArg := fs.String("authority", "", "Fetch the third-party record of this authority")
	raw := fs.Bool("raw", false, "Print the stored payload instead of the content")
	pos, err := parseFlags(fs, args, "<program-id>")
	if err != nil {
		return err
	}
	program, err := parseAddress(pos[0])
	if err != nil {
		return err
	}
	seed, err := client.Seed(*seedArg)
	if err != nil {
		return err
	}
	var authority *types.Pubkey
	if *authorityArg != "" {
		key, err := parseAddress(*authorityArg)
		if err != nil {
			return err
		}
		authority = &key
	}
	address, err := client.FindMetadataAddress(program, authority, seed)
	if err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()
	rec, err := client.FetchMetadata(l.db, address)
	if err != nil {
		return err
	}
	if *raw {
		os.Stdout.Write(rec.Payload)
		return nil
	}
	h := rec.Header
	log.Printf("%s: canonical=%v mutable=%v encoding=%s compression=%s format=%s source=%s length=%d",
		address, h.Canonical, h.Mutable, h.Encoding, h.Compression, h.Format, h.DataSource, h.DataLength)
	text, err := rec.Content(l.db)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func cmdFetchBuffer(args []string) error {
	fs := flag.NewFlagSet("fetch-buffer", flag.ExitOnError)
	pos, err := parseFlags(fs, args, "<address>")
	if err != nil {
		return err
	}
	address, err := parseAddress(pos[0])
	if err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()
	header, data, err := client.FetchBuffer(l.db, address)
	if err != nil {
		return err
	}
	log.Printf("%s: authority=%v canonical=%v length=%d", address, header.Authority, header.Canonical, len(data))
	os.Stdout.Write(data)
	return nil
}

// recordCommand runs a single-instruction command against a record.
func recordCommand(name string, args []string, extra []string,
	build func(t *target, payer *types.Keypair, pos []string) (svm.Instruction, error)) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	rf := addRecordFlags(fs)
	recipient := fs.String("recipient", "", "Recipient of released lamports (default: -keypair)")
	pos, err := parseFlags(fs, args, append([]string{"<program-id>"}, extra...)...)
	if err != nil {
		return err
	}
	payer, err := loadPayer()
	if err != nil {
		return err
	}
	if *recipient != "" {
		pos = append(pos, *recipient)
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()
	t, err := rf.resolve(l, pos[0], payer)
	if err != nil {
		return err
	}
	ix, err := build(t, payer, pos[1:])
	if err != nil {
		return err
	}
	if err := l.send(payer, [][]svm.Instruction{{ix}}, t.authority); err != nil {
		return err
	}
	fmt.Println(t.address)
	return nil
}

// recipientOf returns the optional trailing recipient argument.
func recipientOf(payer *types.Keypair, rest []string) (types.Pubkey, error) {
	if len(rest) == 0 {
		return payer.Pubkey(), nil
	}
	return parseAddress(rest[len(rest)-1])
}

func cmdSetAuthority(args []string) error {
	return recordCommand("set-authority", args, []string{"<new-authority>"},
		func(t *target, payer *types.Keypair, rest []string) (svm.Instruction, error) {
			next, err := parseAddress(rest[0])
			if err != nil {
				return svm.Instruction{}, err
			}
			return client.SetAuthority(t.address, t.authority.Pubkey(), t.owner, &next), nil
		})
}

func cmdRemoveAuthority(args []string) error {
	return recordCommand("remove-authority", args, nil,
		func(t *target, payer *types.Keypair, rest []string) (svm.Instruction, error) {
			return client.SetAuthority(t.address, t.authority.Pubkey(), t.owner, nil), nil
		})
}

func cmdSetImmutable(args []string) error {
	return recordCommand("set-immutable", args, nil,
		func(t *target, payer *types.Keypair, rest []string) (svm.Instruction, error) {
			return client.SetImmutable(t.address, t.authority.Pubkey(), t.owner), nil
		})
}

func cmdClose(args []string) error {
	return recordCommand("close", args, nil,
		func(t *target, payer *types.Keypair, rest []string) (svm.Instruction, error) {
			to, err := recipientOf(payer, rest)
			if err != nil {
				return svm.Instruction{}, err
			}
			return client.Close(t.address, t.authority.Pubkey(), t.owner, to), nil
		})
}

func cmdTrim(args []string) error {
	return recordCommand("trim", args, nil,
		func(t *target, payer *types.Keypair, rest []string) (svm.Instruction, error) {
			to, err := recipientOf(payer, rest)
			if err != nil {
				return svm.Instruction{}, err
			}
			return client.Trim(t.address, t.authority.Pubkey(), t.owner, to), nil
		})
}

func cmdCloseBuffer(args []string) error {
	fs := flag.NewFlagSet("close-buffer", flag.ExitOnError)
	recipient := fs.String("recipient", "", "Recipient of the buffer lamports (default: -keypair)")
	pos, err := parseFlags(fs, args, "<buffer-keypair>")
	if err != nil {
		return err
	}
	buffer, err := types.LoadKeypair(pos[0])
	if err != nil {
		return err
	}
	payer, err := loadPayer()
	if err != nil {
		return err
	}
	to := payer.Pubkey()
	if *recipient != "" {
		if to, err = parseAddress(*recipient); err != nil {
			return err
		}
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()
	key := buffer.Pubkey()
	return l.send(payer, [][]svm.Instruction{{client.Close(key, key, nil, to)}}, buffer)
}

func cmdJournal(args []string) error {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum entries to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("expected arguments: [address]")
	}

	cfg := journal.DefaultConfig(filepath.Join(*dataDir, "journal.db"))
	cfg.ReadOnly = true
	j, err := journal.Open(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	var entries []*journal.Entry
	if fs.NArg() == 1 {
		address, err := parseAddress(fs.Arg(0))
		if err != nil {
			return err
		}
		if entries, err = j.ByAccount(address, *limit); err != nil {
			return err
		}
	} else {
		for seq := j.Latest(); seq > 0 && len(entries) < *limit; seq-- {
			e, err := j.Get(seq)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
	}

	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed: " + e.Err
		}
		fmt.Printf("#%d slot=%d %s %s cu=%d %s\n",
			e.Sequence, e.Slot, e.Time.Format(time.RFC3339), e.Signature, e.ComputeUnits, status)
		if *verbose {
			for _, line := range e.Logs {
				fmt.Printf("    %s\n", line)
			}
		}
	}
	return nil
}

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	pos, err := parseFlags(fs, args, "<snapshot-file>")
	if err != nil {
		return err
	}
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	header, err := accounts.ExportSnapshot(l.db, pos[0])
	if err != nil {
		return err
	}
	fmt.Printf("slot=%d accounts=%d hash=%s\n", header.Slot, header.AccountsCount, header.AccountsHash)
	return nil
}

func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	pos, err := parseFlags(fs, args, "<snapshot-file>")
	if err != nil {
		return err
	}
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	header, err := accounts.ImportSnapshot(l.db, pos[0])
	if err != nil {
		return err
	}
	fmt.Printf("slot=%d accounts=%d hash=%s\n", header.Slot, header.AccountsCount, header.AccountsHash)
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	rpcAddr := fs.String("rpc-addr", ":8899", "RPC server listen address")
	logRequests := fs.Bool("log-requests", false, "Log every RPC request")
	if _, err := parseFlags(fs, args); err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	cfg := rpc.DefaultConfig()
	cfg.Addr = *rpcAddr
	cfg.LogRequests = *logRequests
	cfg.Rent = l.exec.Config().Rent

	var history rpc.History
	if l.journal != nil {
		history = l.journal
	}
	server := rpc.New(cfg, l.db, history)
	log.Printf("Serving ledger at slot %d", l.db.GetSlot())
	return server.Start(ctx)
}
