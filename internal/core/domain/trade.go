package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role identifies the capability set of the local node within a trade.
type Role int

const (
	RoleMaker Role = iota
	RoleTaker
	RoleArbitrator
)

func (r Role) String() string {
	switch r {
	case RoleMaker:
		return "maker"
	case RoleTaker:
		return "taker"
	case RoleArbitrator:
		return "arbitrator"
	default:
		return "unknown"
	}
}

// CreatesContract returns whether this role constructs and signs the contract
// first. Only the maker builds the canonical contract.
func (r Role) CreatesContract() bool {
	return r == RoleMaker
}

// FundsEscrow returns whether this role moves funds into the escrow wallet.
func (r Role) FundsEscrow() bool {
	return r == RoleMaker || r == RoleTaker
}

// CanDispute returns whether this role may open a dispute against the trade.
func (r Role) CanDispute() bool {
	return r == RoleMaker || r == RoleTaker
}

// TradingPeer is the per-role mutable view of one of the three parties of a
// trade. Instances are owned outright by the Trade and looked up by role,
// there are no back-pointers.
type TradingPeer struct {
	NodeAddress          string
	PubKey               string
	PaymentAccountId     string
	PayoutAddress        string
	PreparedMultisigHex  string
	MadeMultisigHex      string
	ExchangedMultisigHex string
	UpdatedMultisigHex   string
	DepositTxId          string

	// DisputeClosedMsgDelivered records, on the arbitrator, that this peer
	// acknowledged the dispute-closed message at least once. A retried close
	// only asks an acknowledged peer to defer publishing.
	DisputeClosedMsgDelivered bool
}

// Trade is the authoritative record of a single trade's progress. It is
// mutated exclusively by pipeline steps under the trade's own execution lock
// and persisted after every mutation.
type Trade struct {
	Id   uuid.UUID
	Role Role

	// Economic terms, immutable once the contract is signed.
	Amount           uint64
	Price            decimal.Decimal
	TradeFee         uint64
	TxFee            uint64
	BuyerDepositPct  decimal.Decimal
	SellerDepositPct decimal.Decimal
	IsBuyerMaker     bool

	// Peers holds one view per role, self included.
	Peers map[Role]*TradingPeer

	// WalletId is the handle of the multisig escrow wallet dedicated to this
	// trade. Created lazily, never shared across trades.
	WalletId string
	// EscrowAddress is the 2-of-3 multisig deposit address, known once the
	// key exchange completed.
	EscrowAddress string

	// ContractJson is the canonical byte sequence both signatures must verify
	// against.
	ContractJson           []byte
	MakerContractSignature []byte
	TakerContractSignature []byte

	Status        Status
	DisputeStatus int
	PayoutStatus  int

	// DeferPublishPayout signals the receiver of a retried dispute close to
	// let the other side publish the payout, avoiding a double broadcast.
	DeferPublishPayout bool

	PayoutTxId   string
	ErrorMessage string
	OpeningDate  int64
	ClosingDate  int64
	Closed       bool
}

func newTrade(id uuid.UUID, role Role) *Trade {
	return &Trade{
		Id:   id,
		Role: role,
		Peers: map[Role]*TradingPeer{
			RoleMaker:      {},
			RoleTaker:      {},
			RoleArbitrator: {},
		},
		Status:      Status{Code: TradeStatusCodeInit},
		OpeningDate: time.Now().Unix(),
	}
}

// NewMakerTrade returns a trade in Init status seen from the maker side. The
// trade id is the id of the offer being taken.
func NewMakerTrade(offerId uuid.UUID) *Trade {
	return newTrade(offerId, RoleMaker)
}

// NewTakerTrade returns a trade in Init status seen from the taker side.
func NewTakerTrade(offerId uuid.UUID) *Trade {
	return newTrade(offerId, RoleTaker)
}

// NewArbitratorTrade returns a trade in Init status seen from the arbitrator
// side.
func NewArbitratorTrade(offerId uuid.UUID) *Trade {
	return newTrade(offerId, RoleArbitrator)
}

// Self returns the peer view of the local node.
func (t *Trade) Self() *TradingPeer {
	return t.Peers[t.Role]
}

// Peer returns the view of the trading counterparty. For the arbitrator,
// which has two counterparties, use the maker and taker views directly.
func (t *Trade) Peer() *TradingPeer {
	if t.Role == RoleMaker {
		return t.Peers[RoleTaker]
	}
	return t.Peers[RoleMaker]
}

// Arbitrator returns the arbitrator's peer view.
func (t *Trade) Arbitrator() *TradingPeer {
	return t.Peers[RoleArbitrator]
}

// Maker returns the maker's peer view.
func (t *Trade) Maker() *TradingPeer {
	return t.Peers[RoleMaker]
}

// Taker returns the taker's peer view.
func (t *Trade) Taker() *TradingPeer {
	return t.Peers[RoleTaker]
}

// IsBuyer returns whether the local node is the fiat-paying side of the
// trade. Always false for the arbitrator.
func (t *Trade) IsBuyer() bool {
	if t.Role == RoleArbitrator {
		return false
	}
	return (t.Role == RoleMaker) == t.IsBuyerMaker
}

// Buyer returns the peer view of the fiat-paying side.
func (t *Trade) Buyer() *TradingPeer {
	if t.IsBuyerMaker {
		return t.Peers[RoleMaker]
	}
	return t.Peers[RoleTaker]
}

// Seller returns the peer view of the crypto-selling side.
func (t *Trade) Seller() *TradingPeer {
	if t.IsBuyerMaker {
		return t.Peers[RoleTaker]
	}
	return t.Peers[RoleMaker]
}
