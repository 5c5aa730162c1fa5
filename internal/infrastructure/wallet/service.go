package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
	"github.com/peertrade-network/peertrade-daemon/pkg/circuitbreaker"
)

const (
	mainWalletName = "peertrade-main"
	// unlockConfirmations is the depth at which the backend considers
	// received outputs spendable.
	unlockConfirmations uint64 = 10
)

type rpcRequest struct {
	Jsonrpc string      `json:"jsonrpc"`
	Id      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// service talks JSON-RPC to the external wallet backend. The backend keeps a
// single wallet open at a time, so every operation first ensures the right
// wallet file is the open one, under a lock serializing the whole call.
type service struct {
	rpcAddress string
	client     *http.Client
	cb         *gobreaker.CircuitBreaker

	mtx        sync.Mutex
	openWallet string
}

// NewService returns a WalletService backed by the wallet RPC endpoint at the
// given address.
func NewService(rpcAddress string) ports.WalletService {
	return &service{
		rpcAddress: rpcAddress,
		client:     &http.Client{Timeout: 2 * time.Minute},
		cb:         circuitbreaker.NewCircuitBreaker("walletrpc"),
	}
}

func (s *service) call(
	ctx context.Context, method string, params, result interface{},
) error {
	body, err := json.Marshal(rpcRequest{
		Jsonrpc: "2.0", Id: "0", Method: method, Params: params,
	})
	if err != nil {
		return err
	}

	iRes, err := s.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, s.rpcAddress+"/json_rpc", bytes.NewReader(body),
		)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		httpRes, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpRes.Body.Close()

		var res rpcResponse
		if err := json.NewDecoder(httpRes.Body).Decode(&res); err != nil {
			return nil, err
		}
		return &res, nil
	})
	if err != nil {
		return err
	}

	res := iRes.(*rpcResponse)
	if res.Error != nil {
		return fmt.Errorf("wallet rpc %s: %s (%d)", method, res.Error.Message, res.Error.Code)
	}
	if result != nil {
		return json.Unmarshal(res.Result, result)
	}
	return nil
}

// ensureWallet makes the given wallet file the open one. The caller must hold
// the service lock.
func (s *service) ensureWallet(ctx context.Context, walletId string) error {
	if walletId == "" {
		walletId = mainWalletName
	}
	if s.openWallet == walletId {
		return nil
	}
	if err := s.call(ctx, "open_wallet", map[string]interface{}{
		"filename": walletId,
	}, nil); err != nil {
		return err
	}
	s.openWallet = walletId
	return nil
}

func (s *service) CreateOrOpenMultisigWallet(
	ctx context.Context, tradeId string,
) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	walletId := "peertrade-trade-" + tradeId
	if err := s.ensureWallet(ctx, walletId); err == nil {
		return walletId, nil
	}
	if err := s.call(ctx, "create_wallet", map[string]interface{}{
		"filename": walletId,
		"language": "English",
	}, nil); err != nil {
		return "", err
	}
	s.openWallet = walletId
	return walletId, nil
}

func (s *service) PrepareMultisig(ctx context.Context, walletId string) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, walletId); err != nil {
		return "", err
	}
	var res struct {
		MultisigInfo string `json:"multisig_info"`
	}
	if err := s.call(ctx, "prepare_multisig", nil, &res); err != nil {
		return "", err
	}
	return res.MultisigInfo, nil
}

func (s *service) MakeMultisig(
	ctx context.Context, walletId string, peerBlobs []string,
) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, walletId); err != nil {
		return "", err
	}
	var res struct {
		MultisigInfo string `json:"multisig_info"`
	}
	if err := s.call(ctx, "make_multisig", map[string]interface{}{
		"multisig_info": peerBlobs,
		"threshold":     2,
	}, &res); err != nil {
		return "", err
	}
	return res.MultisigInfo, nil
}

func (s *service) ExchangeMultisigKeys(
	ctx context.Context, walletId string, peerBlobs []string,
) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, walletId); err != nil {
		return "", err
	}
	var res struct {
		Address string `json:"address"`
	}
	if err := s.call(ctx, "exchange_multisig_keys", map[string]interface{}{
		"multisig_info": peerBlobs,
	}, &res); err != nil {
		return "", err
	}
	return res.Address, nil
}

func (s *service) ImportMultisigHex(
	ctx context.Context, walletId string, hexes []string,
) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, walletId); err != nil {
		return err
	}
	return s.call(ctx, "import_multisig_info", map[string]interface{}{
		"info": hexes,
	}, nil)
}

func (s *service) ExportMultisigHex(
	ctx context.Context, walletId string,
) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, walletId); err != nil {
		return "", err
	}
	var res struct {
		Info string `json:"info"`
	}
	if err := s.call(ctx, "export_multisig_info", nil, &res); err != nil {
		return "", err
	}
	return res.Info, nil
}

func (s *service) IsMultisigImportNeeded(
	ctx context.Context, walletId string,
) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, walletId); err != nil {
		return false, err
	}
	var res struct {
		MultisigImportNeeded bool `json:"multisig_import_needed"`
	}
	if err := s.call(ctx, "get_balance", map[string]interface{}{
		"account_index": 0,
	}, &res); err != nil {
		return false, err
	}
	return res.MultisigImportNeeded, nil
}

func (s *service) GetMultisigAddress(
	ctx context.Context, walletId string,
) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, walletId); err != nil {
		return "", err
	}
	var res struct {
		Address string `json:"address"`
	}
	if err := s.call(ctx, "get_address", map[string]interface{}{
		"account_index": 0,
	}, &res); err != nil {
		return "", err
	}
	return res.Address, nil
}

type rpcDestination struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

func (s *service) CreateTx(
	ctx context.Context, cfg ports.TxConfig,
) (*ports.Tx, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, cfg.WalletId); err != nil {
		return nil, err
	}
	destinations := make([]rpcDestination, 0, len(cfg.Destinations))
	var total uint64
	for _, dest := range cfg.Destinations {
		destinations = append(destinations, rpcDestination{
			Address: dest.Address, Amount: dest.Amount,
		})
		total += dest.Amount
	}
	params := map[string]interface{}{
		"destinations":  destinations,
		"account_index": cfg.AccountIndex,
		"do_not_relay":  true,
		"get_tx_hex":    true,
	}
	if cfg.PaymentId != "" {
		params["payment_id"] = cfg.PaymentId
	}
	var res struct {
		TxHash        string `json:"tx_hash"`
		TxBlob        string `json:"tx_blob"`
		MultisigTxset string `json:"multisig_txset"`
		Fee           uint64 `json:"fee"`
	}
	if err := s.call(ctx, "transfer", params, &res); err != nil {
		return nil, err
	}
	txHex := res.TxBlob
	if res.MultisigTxset != "" {
		txHex = res.MultisigTxset
	}
	return &ports.Tx{
		TxId:   res.TxHash,
		TxHex:  txHex,
		Amount: total,
		Fee:    res.Fee,
	}, nil
}

func (s *service) SignMultisigTx(
	ctx context.Context, walletId, txHex string,
) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, walletId); err != nil {
		return "", err
	}
	var res struct {
		TxDataHex string `json:"tx_data_hex"`
	}
	if err := s.call(ctx, "sign_multisig", map[string]interface{}{
		"tx_data_hex": txHex,
	}, &res); err != nil {
		return "", err
	}
	return res.TxDataHex, nil
}

func (s *service) RelayTx(
	ctx context.Context, walletId, txHex string,
) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, walletId); err != nil {
		return "", err
	}
	if walletId != "" {
		var res struct {
			TxHashList []string `json:"tx_hash_list"`
		}
		if err := s.call(ctx, "submit_multisig", map[string]interface{}{
			"tx_data_hex": txHex,
		}, &res); err != nil {
			return "", err
		}
		if len(res.TxHashList) == 0 {
			return "", fmt.Errorf("submit_multisig returned no transaction hash")
		}
		return res.TxHashList[0], nil
	}
	var res struct {
		TxHash string `json:"tx_hash"`
	}
	if err := s.call(ctx, "relay_tx", map[string]interface{}{
		"hex": txHex,
	}, &res); err != nil {
		return "", err
	}
	return res.TxHash, nil
}

func (s *service) SweepUnlocked(
	ctx context.Context, accountIndex uint32, destAddress string,
) ([]*ports.Tx, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, ""); err != nil {
		return nil, err
	}
	var res struct {
		TxHashList []string `json:"tx_hash_list"`
		TxBlobList []string `json:"tx_blob_list"`
		AmountList []uint64 `json:"amount_list"`
		FeeList    []uint64 `json:"fee_list"`
	}
	if err := s.call(ctx, "sweep_all", map[string]interface{}{
		"account_index": accountIndex,
		"address":       destAddress,
		"get_tx_hex":    true,
	}, &res); err != nil {
		return nil, err
	}
	txs := make([]*ports.Tx, 0, len(res.TxHashList))
	for i, hash := range res.TxHashList {
		tx := &ports.Tx{TxId: hash, InPool: true}
		if i < len(res.TxBlobList) {
			tx.TxHex = res.TxBlobList[i]
		}
		if i < len(res.AmountList) {
			tx.Amount = res.AmountList[i]
		}
		if i < len(res.FeeList) {
			tx.Fee = res.FeeList[i]
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *service) GetBalance(
	ctx context.Context, accountIndex uint32,
) (uint64, error) {
	balance, _, err := s.getBalance(ctx, accountIndex)
	return balance, err
}

func (s *service) GetUnlockedBalance(
	ctx context.Context, accountIndex uint32,
) (uint64, error) {
	_, unlocked, err := s.getBalance(ctx, accountIndex)
	return unlocked, err
}

func (s *service) getBalance(
	ctx context.Context, accountIndex uint32,
) (uint64, uint64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, ""); err != nil {
		return 0, 0, err
	}
	var res struct {
		Balance         uint64 `json:"balance"`
		UnlockedBalance uint64 `json:"unlocked_balance"`
	}
	if err := s.call(ctx, "get_balance", map[string]interface{}{
		"account_index": accountIndex,
	}, &res); err != nil {
		return 0, 0, err
	}
	return res.Balance, res.UnlockedBalance, nil
}

func (s *service) GetTx(
	ctx context.Context, walletId, txId string,
) (*ports.Tx, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, walletId); err != nil {
		return nil, err
	}
	var res struct {
		Transfer struct {
			Txid          string `json:"txid"`
			Amount        uint64 `json:"amount"`
			Fee           uint64 `json:"fee"`
			Confirmations uint64 `json:"confirmations"`
			Type          string `json:"type"`
		} `json:"transfer"`
	}
	if err := s.call(ctx, "get_transfer_by_txid", map[string]interface{}{
		"txid": txId,
	}, &res); err != nil {
		// The backend reports an error for transactions it does not see yet.
		return nil, nil
	}
	return &ports.Tx{
		TxId:          res.Transfer.Txid,
		Amount:        res.Transfer.Amount,
		Fee:           res.Transfer.Fee,
		InPool:        res.Transfer.Type == "pool",
		Confirmations: res.Transfer.Confirmations,
		Unlocked:      res.Transfer.Confirmations >= unlockConfirmations,
	}, nil
}

func (s *service) Sync(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.ensureWallet(ctx, ""); err != nil {
		return err
	}
	return s.call(ctx, "refresh", nil, nil)
}
