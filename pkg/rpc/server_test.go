package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/client"
	"github.com/fortiblox/x1-metadata/pkg/journal"
	"github.com/fortiblox/x1-metadata/pkg/runtime"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

const sol = uint64(1_000_000_000)

type testEnv struct {
	server   *Server
	exec     *runtime.Executor
	program  types.Pubkey
	record   types.Pubkey
	upgrader *types.Keypair
}

// newTestEnv builds a ledger holding one canonical "idl" record.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	exec := runtime.NewExecutor(accounts.NewMemoryDB(), runtime.DefaultConfig())
	if err := exec.Genesis(); err != nil {
		t.Fatalf("Failed to write genesis: %v", err)
	}
	j, err := journal.Open(journal.DefaultConfig(filepath.Join(t.TempDir(), "journal.db")))
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	exec.SetRecorder(j)

	upgrader := types.KeypairFromSeed([32]byte{2})
	if err := exec.Airdrop(upgrader.Pubkey(), 10*sol); err != nil {
		t.Fatalf("Failed to airdrop: %v", err)
	}
	program := types.Pubkey{0xaa, 0x03}
	key := upgrader.Pubkey()
	programData, err := exec.Deploy(program, &key, []byte("code"))
	if err != nil {
		t.Fatalf("Failed to deploy: %v", err)
	}
	seed, _ := client.Seed("idl")

	plan, err := client.PlanWrite(client.WriteParams{
		Payer:      key,
		Authority:  key,
		Owner:      client.Owner{Program: program, ProgramData: &programData},
		Canonical:  true,
		Seed:       seed,
		Format:     client.Format{Encoding: state.EncodingUtf8, Format: state.FormatJson},
		DataSource: state.DataSourceDirect,
		Data:       []byte(`{"name":"counter"}`),
		Rent:       exec.Config().Rent,
	})
	if err != nil {
		t.Fatalf("Failed to plan write: %v", err)
	}
	for _, step := range plan.Steps {
		tx, err := runtime.NewTransaction(key, step, exec.Blockhash())
		if err != nil {
			t.Fatalf("Failed to build transaction: %v", err)
		}
		if err := tx.Sign(upgrader); err != nil {
			t.Fatalf("Failed to sign: %v", err)
		}
		result, err := exec.Execute(tx)
		if err != nil {
			t.Fatalf("Failed to execute: %v", err)
		}
		if result.Err != nil {
			t.Fatalf("Failed to write record: %v", result.Err)
		}
	}

	return &testEnv{
		server:   New(DefaultConfig(), exec.DB(), j),
		exec:     exec,
		program:  program,
		record:   plan.Address,
		upgrader: upgrader,
	}
}

func makeRPCRequest(t *testing.T, server *Server, method string, params interface{}) *Response {
	t.Helper()

	var paramsRaw json.RawMessage
	if params != nil {
		var err error
		paramsRaw, err = json.Marshal(params)
		if err != nil {
			t.Fatalf("Failed to marshal params: %v", err)
		}
	}

	body, err := json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      1,
		Method:  method,
		Params:  paramsRaw,
	})
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httpReq)

	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return &resp
}

// decodeResult re-decodes a generic result into v.
func decodeResult(t *testing.T, resp *Response, v interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("Expected no error, got: %v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("Failed to marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
}

func TestGetHealth(t *testing.T) {
	server := New(DefaultConfig(), accounts.NewMemoryDB(), nil)

	resp := makeRPCRequest(t, server, "getHealth", nil)
	if resp.Error != nil || resp.Result != "ok" {
		t.Fatalf("Expected ok, got %v / %v", resp.Result, resp.Error)
	}

	server.SetHealthy(false)
	resp = makeRPCRequest(t, server, "getHealth", nil)
	if resp.Error == nil || resp.Error.Code != NodeUnhealthy {
		t.Errorf("Expected unhealthy error, got %v", resp.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	server := New(DefaultConfig(), accounts.NewMemoryDB(), nil)

	resp := makeRPCRequest(t, server, "sendTransaction", []string{"x"})
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Errorf("Expected method not found, got %v", resp.Error)
	}
}

func TestGetAccountInfo(t *testing.T) {
	env := newTestEnv(t)

	var got struct {
		Context Context
		Value   *struct {
			Data  []string `json:"data"`
			Owner string   `json:"owner"`
			Space uint64   `json:"space"`
		}
	}
	decodeResult(t, makeRPCRequest(t, env.server, "getAccountInfo", []interface{}{
		env.record.String(), map[string]string{"encoding": "base58"},
	}), &got)
	if got.Value == nil {
		t.Fatal("Expected account, got null")
	}
	if got.Value.Owner != metadata.ProgramID.String() {
		t.Errorf("Owner mismatch: got %s", got.Value.Owner)
	}
	data, err := DecodeAccountData(got.Value.Data[0], Encoding(got.Value.Data[1]))
	if err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
	if uint64(len(data)) != got.Value.Space {
		t.Errorf("Data length mismatch: got %d, want %d", len(data), got.Value.Space)
	}
	if got.Context.Slot != env.exec.DB().GetSlot() {
		t.Errorf("Context slot mismatch: got %d", got.Context.Slot)
	}

	decodeResult(t, makeRPCRequest(t, env.server, "getAccountInfo", []interface{}{
		types.Pubkey{0x42}.String(),
	}), &got)
	if got.Value != nil {
		t.Error("Expected null for a missing account")
	}

	resp := makeRPCRequest(t, env.server, "getAccountInfo", []interface{}{"not-a-key"})
	if resp.Error == nil || resp.Error.Code != InvalidParams {
		t.Errorf("Expected invalid params, got %v", resp.Error)
	}
}

func TestGetMetadata(t *testing.T) {
	env := newTestEnv(t)

	var got struct {
		Value *MetadataInfo
	}
	decodeResult(t, makeRPCRequest(t, env.server, "getMetadata", []interface{}{env.program.String()}), &got)
	if got.Value == nil {
		t.Fatal("Expected record, got null")
	}
	v := got.Value
	if v.Address != env.record.String() || !v.Canonical || v.Authority != nil || v.Seed != "idl" {
		t.Errorf("Header mismatch: %+v", v)
	}
	if v.Format != "json" || v.Encoding != "utf8" || v.DataLength != 18 {
		t.Errorf("Format mismatch: %s/%s/%d", v.Format, v.Encoding, v.DataLength)
	}
	if v.Content == nil || *v.Content != `{"name":"counter"}` {
		t.Errorf("Content mismatch: %v (%s)", v.Content, v.ContentError)
	}

	decodeResult(t, makeRPCRequest(t, env.server, "getMetadata", []interface{}{
		env.program.String(), map[string]string{"seed": "security"},
	}), &got)
	if got.Value != nil {
		t.Error("Expected null for a missing seed")
	}

	resp := makeRPCRequest(t, env.server, "getMetadata", []interface{}{
		env.program.String(), map[string]string{"seed": "a-seed-longer-than-sixteen"},
	})
	if resp.Error == nil || resp.Error.Code != InvalidParams {
		t.Errorf("Expected invalid params for a long seed, got %v", resp.Error)
	}
}

func TestGetBufferRejectsMetadata(t *testing.T) {
	env := newTestEnv(t)

	resp := makeRPCRequest(t, env.server, "getBuffer", []interface{}{env.record.String()})
	if resp.Error == nil || resp.Error.Code != InvalidParams {
		t.Errorf("Expected invalid params, got %v", resp.Error)
	}
}

func TestGetLedgerDigest(t *testing.T) {
	env := newTestEnv(t)

	var digest LedgerDigest
	decodeResult(t, makeRPCRequest(t, env.server, "getLedgerDigest", nil), &digest)

	want, err := accounts.ComputeAccountsHash(env.exec.DB())
	if err != nil {
		t.Fatalf("Failed to hash accounts: %v", err)
	}
	if digest.AccountsHash != want.String() {
		t.Errorf("Hash mismatch: got %s, want %s", digest.AccountsHash, want)
	}
	if digest.Slot != env.exec.DB().GetSlot() || digest.Accounts == 0 {
		t.Errorf("Digest mismatch: %+v", digest)
	}
}

func TestGetSignaturesForAddress(t *testing.T) {
	env := newTestEnv(t)

	var sigs []SignatureInfo
	decodeResult(t, makeRPCRequest(t, env.server, "getSignaturesForAddress", []interface{}{env.record.String()}), &sigs)
	if len(sigs) == 0 {
		t.Fatal("Expected the record's transactions")
	}
	for _, sig := range sigs {
		if sig.Err != nil {
			t.Errorf("Unexpected failed transaction: %+v", sig)
		}
	}

	server := New(DefaultConfig(), env.exec.DB(), nil)
	resp := makeRPCRequest(t, server, "getSignaturesForAddress", []interface{}{env.record.String()})
	if resp.Error == nil || resp.Error.Code != TransactionHistoryNotAvailable {
		t.Errorf("Expected history error, got %v", resp.Error)
	}
}

func TestGetMinimumBalanceForRentExemption(t *testing.T) {
	server := New(DefaultConfig(), accounts.NewMemoryDB(), nil)

	var got uint64
	decodeResult(t, makeRPCRequest(t, server, "getMinimumBalanceForRentExemption", []int{96}), &got)
	if want := DefaultConfig().Rent.MinimumBalance(96); got != want {
		t.Errorf("Minimum balance mismatch: got %d, want %d", got, want)
	}
}

func TestBatchRequest(t *testing.T) {
	server := New(DefaultConfig(), accounts.NewMemoryDB(), nil)
	body := `[{"jsonrpc":"2.0","id":1,"method":"getSlot"},{"jsonrpc":"1.0","id":2,"method":"getSlot"}]`

	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httpReq)

	var responses []Response
	if err := json.Unmarshal(rr.Body.Bytes(), &responses); err != nil {
		t.Fatalf("Failed to unmarshal batch: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("Expected 2 responses, got %d", len(responses))
	}
	if responses[0].Error != nil {
		t.Errorf("First request failed: %v", responses[0].Error)
	}
	if responses[1].Error == nil || responses[1].Error.Code != InvalidRequest {
		t.Errorf("Expected invalid request, got %v", responses[1].Error)
	}
}

func TestRejectsGet(t *testing.T) {
	server := New(DefaultConfig(), accounts.NewMemoryDB(), nil)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status mismatch: got %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestGetMultipleAccounts(t *testing.T) {
	env := newTestEnv(t)

	var got struct {
		Value []*AccountInfo
	}
	decodeResult(t, makeRPCRequest(t, env.server, "getMultipleAccounts", []interface{}{
		[]string{env.record.String(), types.Pubkey{0x42}.String()},
		map[string]interface{}{"dataSlice": map[string]int{"offset": 0, "length": 1}},
	}), &got)
	if len(got.Value) != 2 || got.Value[0] == nil || got.Value[1] != nil {
		t.Fatalf("Expected [record, null], got %+v", got.Value)
	}
	data := got.Value[0].Data.([]interface{})
	raw, err := DecodeAccountData(data[0].(string), Encoding(data[1].(string)))
	if err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
	if len(raw) != 1 || raw[0] != byte(state.DiscriminatorMetadata) {
		t.Errorf("Sliced data mismatch: % x", raw)
	}

	resp := makeRPCRequest(t, env.server, "getAccountInfo", []interface{}{
		env.record.String(), map[string]uint64{"minContextSlot": env.exec.DB().GetSlot() + 1},
	})
	if resp.Error == nil || resp.Error.Code != MinContextSlotNotReached {
		t.Errorf("Expected min context slot error, got %v", resp.Error)
	}
}
