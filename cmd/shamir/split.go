package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ruteri/shamir-custody/cmd/flags"
	"github.com/ruteri/shamir-custody/operations"
	"github.com/ruteri/shamir-custody/shamir"
	"github.com/ruteri/shamir-custody/shareformat"
	"github.com/ruteri/shamir-custody/storage"
	"github.com/urfave/cli/v2"
)

var splitCommand = &cli.Command{
	Name:      "split",
	Usage:     "split a secret into encoded shares",
	UsageText: "shamir split -i secret.bin -o out/secret -k 3 -n 5",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:     "input",
			Aliases:  []string{"i"},
			Required: true,
			Usage:    "secret file, or - for stdin",
		},
		&cli.StringFlag{
			Name:     "output",
			Aliases:  []string{"o"},
			Required: true,
			Usage:    "output prefix; share i is written to <output>.<i>",
		},
		flagThreshold,
		flagCount,
		flagSessionID,
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "validate parameters without splitting or writing anything",
		},
		flags.StoreURIFlag,
		flagSetName,
	}, flags.MACFlags...),
	Action: runSplit,
}

func runSplit(cCtx *cli.Context) error {
	log := flags.SetupLogger(cCtx)

	macKey, err := flags.LoadMACKey(cCtx)
	if err != nil {
		return err
	}

	opCtx := operations.NewContext(cCtx.Int(flagThreshold.Name), cCtx.Int(flagCount.Name))
	if sid := cCtx.String(flagSessionID.Name); sid != "" {
		opCtx.SessionID = sid
	}
	opCtx.DryRun = cCtx.Bool("dry-run")

	p, res := operations.Initialize(opCtx)
	if !res.Success {
		return res
	}

	secret, err := readInput(cCtx.App.Reader, cCtx.String("input"))
	if err != nil {
		return err
	}

	_, res, payloads := p.Split(secret, shamir.SplitBytes)
	wipe(secret)
	if res.ErrorCode == operations.CodeDryRunActive {
		fmt.Fprintf(cCtx.App.Writer, "dry run: %d-of-%d split of %d bytes is valid, session %s\n",
			opCtx.Threshold, opCtx.TotalShares, len(secret), opCtx.SessionID)
		return nil
	}
	if !res.Success {
		return res
	}

	output := cCtx.String("output")
	files := make(map[string][]byte, len(payloads))
	encoded := make(map[int][]byte, len(payloads))
	for i := 1; i <= opCtx.TotalShares; i++ {
		data, err := shareformat.Encode(shareformat.NewHeader(opCtx.Threshold, opCtx.TotalShares, i), payloads[i], macKey)
		wipe(payloads[i])
		if err != nil {
			return fmt.Errorf("failed to encode share %d: %w", i, err)
		}
		files[fmt.Sprintf("%s.%d", output, i)] = data
		encoded[i] = data
	}

	var store *storage.ShareStore
	uris := cCtx.StringSlice(flags.StoreURIFlag.Name)
	if len(uris) > 0 {
		if store, err = openShareStore(log, uris); err != nil {
			return err
		}
	}

	if err := storage.WriteFilesAtomic(files, 0600); err != nil {
		return err
	}

	if store != nil {
		name := cCtx.String(flagSetName.Name)
		if name == "" {
			name = filepath.Base(output)
		}
		_, err = store.SaveSet(cCtx.Context, name, storage.Manifest{
			SessionID: opCtx.SessionID,
			Threshold: opCtx.Threshold,
			Total:     opCtx.TotalShares,
			Algorithm: opCtx.AlgorithmVersion,
		}, encoded)
		if err != nil {
			storage.RemoveFiles(files)
			return err
		}
	}

	log.Info("Secret split",
		"session_id", opCtx.SessionID,
		"threshold", opCtx.Threshold,
		"shares", opCtx.TotalShares,
		"output", output,
		"mac", len(macKey) > 0)
	fmt.Fprintln(cCtx.App.Writer, opCtx.SessionID)
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("input %s does not exist", path)
	}
	return data, err
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
