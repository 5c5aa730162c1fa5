package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/peertrade-network/peertrade-daemon/config"
	"github.com/peertrade-network/peertrade-daemon/internal/core/application"
	dbbadger "github.com/peertrade-network/peertrade-daemon/internal/infrastructure/storage/db/badger"
	"github.com/peertrade-network/peertrade-daemon/internal/infrastructure/messenger"
	"github.com/peertrade-network/peertrade-daemon/internal/infrastructure/wallet"
	httpinterface "github.com/peertrade-network/peertrade-daemon/internal/interfaces/http"
)

func main() {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	identity, err := config.GetIdentity()
	if err != nil {
		log.WithError(err).Panic("error while loading identity")
	}

	dbDir := filepath.Join(config.GetDatadir(), config.DbLocation)
	repoManager, err := dbbadger.NewDbManager(dbDir, nil)
	if err != nil {
		log.WithError(err).Panic("error while opening db")
	}
	defer repoManager.Close()

	walletSvc := wallet.NewService(config.GetString(config.WalletRPCEndpointKey))

	messengerSvc, err := messenger.NewService(
		config.GetString(config.RelayURLKey), identity.NodeAddress,
	)
	if err != nil {
		log.WithError(err).Panic("error while connecting to relay")
	}
	defer messengerSvc.Close()

	tradeSvc, disputeSvc := application.NewServices(application.TradeServiceOpts{
		Identity:    identity,
		RepoManager: repoManager,
		Wallet:      walletSvc,
		Messenger:   messengerSvc,
		BackupArbitrator: application.PeerInfo{
			NodeAddress: config.GetString(config.BackupArbitratorAddressKey),
			PubKey:      config.GetString(config.BackupArbitratorPubKeyKey),
		},
		Network:          config.GetNetwork(),
		PaymentAccountId: config.GetString(config.PaymentAccountIdKey),
		PayoutAddress:    config.GetString(config.PayoutAddressKey),
		PollInterval:     config.GetDuration(config.PollIntervalKey),
		PollTimeout:      config.GetDuration(config.PollTimeoutKey),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tradeSvc.Start(ctx); err != nil {
		log.WithError(err).Panic("error while resuming trades")
	}

	operatorAddress := fmt.Sprintf(":%d", config.GetInt(config.OperatorListeningPortKey))
	server := &http.Server{
		Addr:    operatorAddress,
		Handler: httpinterface.NewRouter(tradeSvc, disputeSvc),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Panic("error listening on operator interface")
		}
	}()
	log.Info("operator interface is listening on " + operatorAddress)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down daemon")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("operator interface shutdown failed")
	}
	log.Info("exiting")
}
