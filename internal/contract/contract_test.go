package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"parimutuel/internal/wallet"
)

var (
	ownerAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	userAddr  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type stubSigner struct {
	addr   common.Address
	reject bool
}

func (s stubSigner) Address() common.Address { return s.addr }

func (s stubSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if s.reject {
		return nil, wallet.ErrUserRejected
	}
	return &bind.TransactOpts{From: s.addr, Context: ctx}, nil
}

func TestParseABIHasCallSurface(t *testing.T) {
	parsed, err := ParseABI()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, m := range []string{methodDeposit, methodWithdraw, methodFinalizePayout, methodBalances, methodBalancesFinalized, methodOwner} {
		if _, ok := parsed.Methods[m]; !ok {
			t.Errorf("missing method %s", m)
		}
	}
	if !parsed.Methods[methodDeposit].IsPayable() {
		t.Errorf("deposit must be payable")
	}
}

type dataErr struct {
	msg  string
	data interface{}
}

func (e dataErr) Error() string          { return e.msg }
func (e dataErr) ErrorData() interface{} { return e.data }

func encodeRevert(t *testing.T, reason string) string {
	t.Helper()
	strType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	if err != nil {
		t.Fatalf("pack revert: %v", err)
	}
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	if err := Classify(fmt.Errorf("sign: %w", wallet.ErrUserRejected)); !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}

	var reverted *RevertedError
	err := Classify(fmt.Errorf("deposit tx: %w", dataErr{msg: "execution reverted", data: encodeRevert(t, "Bet closed")}))
	if !errors.As(err, &reverted) || reverted.Reason != "Bet closed" {
		t.Fatalf("expected revert reason from data, got %v", err)
	}

	err = Classify(errors.New("execution reverted: Only owner"))
	if !errors.As(err, &reverted) || reverted.Reason != "Only owner" {
		t.Fatalf("expected revert reason from message, got %v", err)
	}

	var unknown *UnknownError
	if err := Classify(errors.New("connection refused")); !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownError, got %v", err)
	}
}

func TestFakePoolLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := NewFakePool(ownerAddr)
	user := pool.Bind(stubSigner{addr: userAddr})
	owner := pool.Bind(stubSigner{addr: ownerAddr})

	oneEth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	tx, err := user.Deposit(ctx, oneEth)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := tx.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if bal, _ := user.Balances(ctx, userAddr); bal.Cmp(oneEth) != 0 {
		t.Fatalf("unexpected balance %s", bal)
	}

	var reverted *RevertedError
	if _, err := user.Withdraw(ctx); !errors.As(err, &reverted) {
		t.Fatalf("expected revert on empty withdraw, got %v", err)
	}
	if _, err := user.FinalizePayout(ctx, "Team A", []common.Address{userAddr}, []*big.Int{oneEth}); !errors.As(err, &reverted) {
		t.Fatalf("expected owner-only revert, got %v", err)
	}
	if _, err := owner.FinalizePayout(ctx, "Team A", []common.Address{userAddr}, []*big.Int{oneEth}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if fin, _ := user.BalancesFinalized(ctx, userAddr); fin.Cmp(oneEth) != 0 {
		t.Fatalf("unexpected finalized %s", fin)
	}
	if _, err := user.Withdraw(ctx); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if fin, _ := user.BalancesFinalized(ctx, userAddr); fin.Sign() != 0 {
		t.Fatalf("expected zero after withdraw, got %s", fin)
	}
	if n := len(pool.Calls()); n != 3 {
		t.Fatalf("expected 3 recorded calls, got %d", n)
	}
}

func TestFakePoolRejectedSigner(t *testing.T) {
	pool := NewFakePool(ownerAddr)
	c := pool.Bind(stubSigner{addr: userAddr, reject: true})
	if _, err := c.Deposit(context.Background(), big.NewInt(1)); !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
	if len(pool.Calls()) != 0 {
		t.Fatalf("rejected call must not reach the pool")
	}
}

// rpcStub answers eth_call for the read-only methods.
func rpcStub(t *testing.T, balance *big.Int, revert string) *httptest.Server {
	parsed, err := ParseABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		reply := func(result interface{}) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
		}
		switch req.Method {
		case "eth_chainId":
			reply("0x7a69")
		case "eth_blockNumber":
			reply("0x10")
		case "eth_call":
			var arg struct {
				Data  hexutil.Bytes `json:"data"`
				Input hexutil.Bytes `json:"input"`
			}
			_ = json.Unmarshal(req.Params[0], &arg)
			data := arg.Input
			if len(data) == 0 {
				data = arg.Data
			}
			method, err := parsed.MethodById(data[:4])
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if revert != "" {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"jsonrpc": "2.0", "id": req.ID,
					"error": map[string]interface{}{"code": 3, "message": "execution reverted", "data": encodeRevert(t, revert)},
				})
				return
			}
			var out []byte
			switch method.Name {
			case methodOwner:
				out, err = method.Outputs.Pack(ownerAddr)
			default:
				out, err = method.Outputs.Pack(balance)
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			reply(hexutil.Encode(out))
		default:
			http.Error(w, "unsupported "+req.Method, http.StatusBadRequest)
		}
	}))
}

func TestEthClientReads(t *testing.T) {
	balance, _ := new(big.Int).SetString("2500000000000000000", 10)
	srv := rpcStub(t, balance, "")
	defer srv.Close()

	ctx := context.Background()
	backend, err := Dial(ctx, BackendConfig{RPCURL: srv.URL, ContractAddress: "0x34f13cf42fAC7C609D691679f0d2454fe45b348f"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer backend.Close()

	if err := backend.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	id, err := backend.ChainID(ctx)
	if err != nil || id.Int64() != 31337 {
		t.Fatalf("chain id: %v %v", id, err)
	}

	client := backend.Bind(stubSigner{addr: userAddr})
	got, err := client.Balances(ctx, userAddr)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if got.Cmp(balance) != 0 {
		t.Fatalf("expected %s got %s", balance, got)
	}
	owner, err := client.Owner(ctx)
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != ownerAddr {
		t.Fatalf("unexpected owner %s", owner.Hex())
	}
}

func TestEthClientReadRevert(t *testing.T) {
	srv := rpcStub(t, big.NewInt(0), "paused")
	defer srv.Close()

	ctx := context.Background()
	backend, err := Dial(ctx, BackendConfig{RPCURL: srv.URL, ContractAddress: "0x34f13cf42fAC7C609D691679f0d2454fe45b348f"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer backend.Close()

	_, err = backend.Bind(stubSigner{addr: userAddr}).BalancesFinalized(ctx, userAddr)
	var reverted *RevertedError
	if !errors.As(err, &reverted) || reverted.Reason != "paused" {
		t.Fatalf("expected revert 'paused', got %v", err)
	}
}

func TestDialValidatesConfig(t *testing.T) {
	if _, err := Dial(context.Background(), BackendConfig{ContractAddress: "0x34f13cf42fAC7C609D691679f0d2454fe45b348f"}); err == nil {
		t.Fatal("expected error for missing rpc url")
	}
	if _, err := Dial(context.Background(), BackendConfig{RPCURL: "http://localhost:1", ContractAddress: "nope"}); err == nil || !strings.Contains(err.Error(), "contract address") {
		t.Fatalf("expected contract address error, got %v", err)
	}
}
