package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/ruteri/trustmesh-backend/api/handlers"
	"github.com/ruteri/trustmesh-backend/cmd/flags"
	"github.com/ruteri/trustmesh-backend/interfaces"
	"github.com/urfave/cli/v2"
)

var flagOwner *cli.StringFlag = &cli.StringFlag{
	Name:     "owner",
	Required: true,
	Usage:    "Owner address of the record, 40-char hex string with or without 0x prefix",
}
var flagBackend *cli.StringFlag = &cli.StringFlag{
	Name:  "backend",
	Value: string(interfaces.Web3Backend),
	Usage: "Storage backend to upload to: web3, pinata, ipfs, s3, file or vault",
}
var flagMetadata *cli.StringFlag = &cli.StringFlag{
	Name:  "metadata",
	Value: "-",
	Usage: "JSON metadata file to upload, '-' reads stdin",
}
var flagToken *cli.StringFlag = &cli.StringFlag{
	Name:    "token",
	EnvVars: []string{"TRUSTMESH_PUBLISH_TOKEN"},
	Usage:   "Bearer token for the publish endpoint",
}
var flagTimeout *cli.DurationFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 5 * time.Minute,
	Usage: "Request timeout",
}

const usage string = `Upload metadata to the TrustMesh backend and read anchored records`

func main() {
	app := &cli.App{
		Name:  "record client",
		Usage: usage,
		Flags: []cli.Flag{
			flags.BackendURLFlag,
			flagToken,
			flagTimeout,
		},
		Commands: []*cli.Command{
			{
				Name:  "upload",
				Usage: "Upload metadata without anchoring it",
				Flags: []cli.Flag{flagBackend, flagMetadata},
				Action: func(cCtx *cli.Context) error {
					backend, err := interfaces.ParseBackendSelector(cCtx.String(flagBackend.Name))
					if err != nil {
						return err
					}
					metadata, err := readMetadata(cCtx.String(flagMetadata.Name))
					if err != nil {
						return err
					}
					cid, err := newClient(cCtx).Upload(cCtx.Context, backend, metadata)
					if err != nil {
						return err
					}
					return printJSON(map[string]string{"ipfsHash": cid.String()})
				},
			},
			{
				Name:  "publish",
				Usage: "Upload metadata and anchor it for the owner",
				Flags: []cli.Flag{flagOwner, flagBackend, flagMetadata},
				Action: func(cCtx *cli.Context) error {
					owner, err := interfaces.NewIdentityFromHex(cCtx.String(flagOwner.Name))
					if err != nil {
						return err
					}
					backend, err := interfaces.ParseBackendSelector(cCtx.String(flagBackend.Name))
					if err != nil {
						return err
					}
					metadata, err := readMetadata(cCtx.String(flagMetadata.Name))
					if err != nil {
						return err
					}
					record, err := newClient(cCtx).Publish(cCtx.Context, owner, backend, metadata)
					if err != nil {
						return err
					}
					return printJSON(record)
				},
			},
			{
				Name:  "record",
				Usage: "Read the record anchored for the owner",
				Flags: []cli.Flag{flagOwner},
				Action: func(cCtx *cli.Context) error {
					owner, err := interfaces.NewIdentityFromHex(cCtx.String(flagOwner.Name))
					if err != nil {
						return err
					}
					record, err := newClient(cCtx).Record(cCtx.Context, owner)
					if err != nil {
						return err
					}
					return printJSON(record)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) *handlers.Client {
	httpClient := &http.Client{Timeout: cCtx.Duration(flagTimeout.Name)}
	return handlers.NewClient(cCtx.String(flags.BackendURLFlag.Name), httpClient).WithToken(cCtx.String(flagToken.Name))
}

func readMetadata(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read metadata: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("metadata in %s is not valid JSON", path)
	}
	return data, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
