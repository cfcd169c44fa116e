package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/trustmesh-backend/api/handlers"
	"github.com/ruteri/trustmesh-backend/cmd/flags"
	"github.com/ruteri/trustmesh-backend/config"
	"github.com/ruteri/trustmesh-backend/httpserver"
	"github.com/ruteri/trustmesh-backend/interfaces"
	"github.com/ruteri/trustmesh-backend/ledger"
	"github.com/ruteri/trustmesh-backend/storage"
	"github.com/ruteri/trustmesh-backend/workflow"
	"github.com/urfave/cli/v2"
)

// Chain ID assumed by the in-memory ledger when CHAIN_ID is unset (Hardhat).
const devChainID = 31337

var flagList []cli.Flag = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "",
		Usage: "address to listen on for API, defaults to BACKEND_LISTEN_IP:BACKEND_PORT",
	},
	flags.LedgerFlag,
	flags.CorsOriginsFlag,
	flags.LogServiceFlagFn("trustmesh-backend"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "trustmesh-backend",
		Usage: "Serve the TrustMesh registration API",
		Flags: flagList,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			cfg, err := config.ParseEnv()
			if err != nil {
				logger.Error("Invalid configuration", "err", err)
				return err
			}

			shutdownTracing, err := flags.SetupTracing(cCtx)
			if err != nil {
				logger.Error("Failed to set up tracing", "err", err)
				return err
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Warn("Failed to flush traces", "err", err)
				}
			}()

			ledgerClient, err := setupLedger(cCtx.Context, cCtx.String(flags.LedgerFlag.Name), cfg, logger)
			if err != nil {
				logger.Error("Failed to set up ledger client", "err", err)
				return err
			}

			storageFactory := storage.NewStorageBackendFactory(logger, storage.FactoryCredentials{
				Web3StorageToken: cfg.Web3StorageToken,
				PinataJWT:        cfg.PinataJWT,
				VaultToken:       cfg.VaultToken,
				S3AccessKey:      cfg.S3AccessKey,
				S3SecretKey:      cfg.S3SecretKey,
			}, nil)

			backends, err := storageFactory.CreateBackends(cfg.StorageBackends)
			if err != nil {
				logger.Error("Failed to create storage backends", "err", err)
				return err
			}

			store := storage.NewContentStore(backends, storage.ContentStoreOpts{
				UploadTimeout:  cfg.UploadTimeout,
				MaxPayloadSize: cfg.MaxPayloadBytes,
			}, logger)
			logger.Info("Storage backends ready", "backends", store.Backends())

			wf := workflow.NewWorkflow(store, ledgerClient, workflow.WorkflowOpts{
				RetryAttempts:     cfg.RetryAttempts,
				RetryInitialDelay: cfg.RetryInitialDelay,
				RetryMaxDelay:     cfg.RetryMaxDelay,
			}, logger)
			query := workflow.NewRecordQuery(ledgerClient, cfg.LedgerCallTimeout, logger)
			handler := handlers.NewHandler(wf, query, logger).RequirePublishToken(cfg.PublishToken)
			if cfg.PublishToken == "" {
				logger.Warn("PUBLISH_TOKEN not set, publish endpoint accepts unauthenticated requests")
			}

			listenAddr := cCtx.String("listen-addr")
			if listenAddr == "" {
				listenAddr = cfg.ListenAddr()
			}

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr, cfg.PublishBudget()), handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLedger(ctx context.Context, kind string, cfg config.Config, logger *slog.Logger) (interfaces.LedgerClient, error) {
	switch kind {
	case "memory":
		chainID := big.NewInt(devChainID)
		if cfg.ChainID != 0 {
			chainID = big.NewInt(cfg.ChainID)
		}
		signers, err := ledger.NewKeyedSigners(chainID, cfg.LedgerKeys...)
		if err != nil {
			return nil, err
		}
		if len(signers.Identities()) == 0 {
			key, err := crypto.GenerateKey()
			if err != nil {
				return nil, err
			}
			logger.Warn("No LEDGER_PRIVATE_KEYS configured, generated an ephemeral signer",
				"owner", signers.Add(key).String())
		}
		logger.Info("Using in-memory ledger", "owners", signers.Identities())
		return ledger.NewMemoryLedger(signers), nil

	case "onchain":
		if !ethcommon.IsHexAddress(cfg.ContractAddress) {
			return nil, fmt.Errorf("CONTRACT_ADDRESS %q is not a valid address", cfg.ContractAddress)
		}

		logger.Info("Connecting to Ethereum RPC", "address", cfg.RPCURL)
		ethClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial RPC: %w", err)
		}

		chainID := big.NewInt(cfg.ChainID)
		if cfg.ChainID == 0 {
			callCtx, cancel := context.WithTimeout(ctx, cfg.LedgerCallTimeout)
			chainID, err = ethClient.ChainID(callCtx)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("failed to query chain ID: %w", err)
			}
		}

		signers, err := ledger.NewKeyedSigners(chainID, cfg.LedgerKeys...)
		if err != nil {
			return nil, err
		}
		if len(signers.Identities()) == 0 {
			logger.Warn("No LEDGER_PRIVATE_KEYS configured, publishing will be rejected")
		}

		client, err := ledger.NewOnchainLedgerClient(ethClient, ethClient, ethcommon.HexToAddress(cfg.ContractAddress), signers, ledger.OnchainLedgerOpts{
			CallTimeout:    cfg.LedgerCallTimeout,
			ReceiptTimeout: cfg.ReceiptTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Using on-chain ledger",
			"contract", client.Address().Hex(),
			"chainID", chainID.String(),
			"owners", signers.Identities())
		return client, nil

	default:
		return nil, errors.New("ledger must be 'onchain' or 'memory'")
	}
}
