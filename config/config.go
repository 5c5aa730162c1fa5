package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/peertrade-network/peertrade-daemon/internal/core/application"
)

const (
	// OperatorListeningPortKey is the port where the HTTP operator interface will listen on
	OperatorListeningPortKey = "OPERATOR_LISTENING_PORT"
	// WalletRPCEndpointKey is the url of the wallet RPC backend in the form protocol://host:port
	WalletRPCEndpointKey = "WALLET_RPC_ENDPOINT"
	// RelayURLKey is the websocket url of the message relay
	RelayURLKey = "RELAY_URL"
	// NodeAddressKey is the address this node is reachable at on the relay
	NodeAddressKey = "NODE_ADDRESS"
	// IdentityKeyKey is the hex encoded private key used to sign contracts and summaries
	IdentityKeyKey = "IDENTITY_KEY"
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATA_DIR_PATH"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the network to use. Either "mainnet" or "stagenet"
	NetworkKey = "NETWORK"
	// AddressPrefixKey is the expected leading character(s) of payout addresses on the configured network
	AddressPrefixKey = "ADDRESS_PREFIX"
	// DonationAddressKey is the destination of trade fees
	DonationAddressKey = "DONATION_ADDRESS"
	// PollIntervalKey is the interval in milliseconds between wallet polls while watching deposits and payouts
	PollIntervalKey = "POLL_INTERVAL"
	// PollTimeoutKey is the bound in milliseconds on every polling loop
	PollTimeoutKey = "POLL_TIMEOUT"
	// PaymentAccountIdKey is the local trader's fiat payment account reference included in contracts
	PaymentAccountIdKey = "PAYMENT_ACCOUNT_ID"
	// PayoutAddressKey is the local trader's payout address included in contracts
	PayoutAddressKey = "PAYOUT_ADDRESS"
	// BackupArbitratorAddressKey is the node address of the fallback arbitrator tried once when the primary is unreachable
	BackupArbitratorAddressKey = "BACKUP_ARBITRATOR_ADDRESS"
	// BackupArbitratorPubKeyKey is the public key of the fallback arbitrator
	BackupArbitratorPubKeyKey = "BACKUP_ARBITRATOR_PUBKEY"

	DbLocation = "db"

	NetworkMainnet  = "mainnet"
	NetworkStagenet = "stagenet"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("peertrade-daemon", false)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("PEERTRADE")
	vip.AutomaticEnv()

	vip.SetDefault(OperatorListeningPortKey, 9000)
	vip.SetDefault(WalletRPCEndpointKey, "http://127.0.0.1:18083")
	vip.SetDefault(RelayURLKey, "ws://127.0.0.1:9944/ws")
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, NetworkMainnet)
	vip.SetDefault(AddressPrefixKey, "4")
	vip.SetDefault(PollIntervalKey, 5000)
	vip.SetDefault(PollTimeoutKey, 600000)
	vip.SetDefault(DatadirKey, defaultDatadir)

	if err := validate(); err != nil {
		log.WithError(err).Panic("error while validating config")
	}

	if err := initDatadir(); err != nil {
		log.WithError(err).Panic("error while creating datadir")
	}
}

// GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

// GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

// GetBool ...
func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetDuration returns the duration in milliseconds stored under the key.
func GetDuration(key string) time.Duration {
	return time.Duration(vip.GetInt(key)) * time.Millisecond
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// IsSet returns whether the give key is set
func IsSet(key string) bool {
	return vip.IsSet(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetIdentity parses the configured signing key into the node identity.
func GetIdentity() (application.Identity, error) {
	keyHex := GetString(IdentityKeyKey)
	if keyHex == "" {
		return application.Identity{}, fmt.Errorf("identity key must be set")
	}
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return application.Identity{}, fmt.Errorf("identity key is not valid hex: %s", err)
	}
	privKey, _ := btcec.PrivKeyFromBytes(keyBytes)
	return application.Identity{
		NodeAddress: GetString(NodeAddressKey),
		PrivKey:     privKey,
	}, nil
}

// GetNetwork returns the configured network constants.
func GetNetwork() application.NetworkParams {
	return application.NetworkParams{
		Name:            GetString(NetworkKey),
		AddressPrefix:   GetString(AddressPrefixKey),
		DonationAddress: GetString(DonationAddressKey),
	}
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	networkName := GetString(NetworkKey)
	if networkName != NetworkMainnet && networkName != NetworkStagenet {
		return fmt.Errorf(
			"network must be either '%s' or '%s'", NetworkMainnet, NetworkStagenet,
		)
	}

	if endpoint := GetString(WalletRPCEndpointKey); endpoint != "" {
		if _, err := url.Parse(endpoint); err != nil {
			return fmt.Errorf("wallet RPC endpoint is not a valid url: %s", err)
		}
	}
	if relayUrl := GetString(RelayURLKey); relayUrl != "" {
		if _, err := url.Parse(relayUrl); err != nil {
			return fmt.Errorf("relay url is not valid: %s", err)
		}
	}

	backupAddr := GetString(BackupArbitratorAddressKey)
	backupPubKey := GetString(BackupArbitratorPubKeyKey)
	if (backupAddr == "") != (backupPubKey == "") {
		return fmt.Errorf(
			"backup arbitrator requires both address and public key when enabled",
		)
	}
	return nil
}

func initDatadir() error {
	return makeDirectoryIfNotExists(filepath.Join(GetDatadir(), DbLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
