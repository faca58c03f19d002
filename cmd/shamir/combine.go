package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ruteri/shamir-custody/cmd/flags"
	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/ruteri/shamir-custody/operations"
	"github.com/ruteri/shamir-custody/shamir"
	"github.com/ruteri/shamir-custody/shareformat"
	"github.com/ruteri/shamir-custody/storage"
	"github.com/ruteri/shamir-custody/verify"
	"github.com/urfave/cli/v2"
)

// localSessionID binds shares read from files when no session is known.
const localSessionID = "local"

var flagIndices = &cli.IntSliceFlag{
	Name:  "index",
	Usage: "share index to load from storage; repeat, default all",
}

var combineCommand = &cli.Command{
	Name:      "combine",
	Usage:     "reconstruct a secret from encoded shares",
	UsageText: "shamir combine -i out/secret.1 -i out/secret.3 -o secret.bin",
	Flags: append([]cli.Flag{
		flagShareFiles,
		&cli.StringFlag{
			Name:     "output",
			Aliases:  []string{"o"},
			Required: true,
			Usage:    "file to write the reconstructed secret to",
		},
		flagThreshold,
		flagSessionID,
		flags.StoreURIFlag,
		flagSetName,
		flagIndices,
	}, flags.MACFlags...),
	Action: runCombine,
}

func runCombine(cCtx *cli.Context) error {
	log := flags.SetupLogger(cCtx)

	macKey, err := flags.LoadMACKey(cCtx)
	if err != nil {
		return err
	}

	set, err := loadShareSet(cCtx, log)
	if err != nil {
		return err
	}

	decoded, err := set.decode(macKey)
	if err != nil {
		return err
	}

	opCtx, shares, err := set.context(decoded, cCtx.Int(flagThreshold.Name), cCtx.String(flagSessionID.Name))
	if err != nil {
		return err
	}

	p, res := operations.Initialize(opCtx)
	if !res.Success {
		return res
	}

	_, res, secret := p.Reconstruct(shares, shamir.CombineBytes)
	if !res.Success {
		return res
	}
	defer wipe(secret)

	if err := storage.WriteFileAtomic(cCtx.String("output"), secret, 0600); err != nil {
		return err
	}

	log.Info("Secret reconstructed", "session_id", opCtx.SessionID, "shares", len(shares))
	return nil
}

// shareSet is the raw input of combine and verify: encoded shares from
// files or from a stored set.
type shareSet struct {
	sources   []string
	encoded   [][]byte
	sessionID string
}

func loadShareSet(cCtx *cli.Context, log *slog.Logger) (*shareSet, error) {
	paths := cCtx.StringSlice(flagShareFiles.Name)
	uris := cCtx.StringSlice(flags.StoreURIFlag.Name)

	switch {
	case len(paths) > 0 && len(uris) > 0:
		return nil, errors.New("--input and --store-uri are mutually exclusive")
	case len(paths) > 0:
		set := &shareSet{}
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read share: %w", err)
			}
			set.sources = append(set.sources, path)
			set.encoded = append(set.encoded, data)
		}
		return set, nil
	case len(uris) > 0:
		name := cCtx.String(flagSetName.Name)
		if name == "" {
			return nil, errors.New("--set-name is required with --store-uri")
		}
		return loadStoredSet(cCtx.Context, log, uris, name, cCtx.IntSlice(flagIndices.Name))
	default:
		return nil, errors.New("no shares given, use --input or --store-uri")
	}
}

func loadStoredSet(ctx context.Context, log *slog.Logger, uris []string, name string, indices []int) (*shareSet, error) {
	store, err := openShareStore(log, uris)
	if err != nil {
		return nil, err
	}

	m, shares, err := store.LoadSet(ctx, name, indices)
	if err != nil {
		return nil, err
	}

	set := &shareSet{sessionID: m.SessionID}
	for _, idx := range m.Indices() {
		data, ok := shares[idx]
		if !ok {
			continue
		}
		set.sources = append(set.sources, fmt.Sprintf("%s.%d", name, idx))
		set.encoded = append(set.encoded, data)
	}
	return set, nil
}

func openShareStore(log *slog.Logger, uris []string) (*storage.ShareStore, error) {
	backend, err := storage.NewStorageBackendFactory(log).CreateMultiBackend(uris)
	if err != nil {
		return nil, err
	}
	return storage.NewShareStore(backend, log), nil
}

type decodedShare struct {
	header  shareformat.Header
	payload []byte
}

// decode decodes and integrity checks every share. The first failure is
// returned with the offending source.
func (s *shareSet) decode(macKey []byte) ([]decodedShare, error) {
	out := make([]decodedShare, 0, len(s.encoded))
	for i, data := range s.encoded {
		h, payload, err := shareformat.Decode(data, macKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.sources[i], err)
		}
		out = append(out, decodedShare{header: h, payload: payload})
	}
	return out, nil
}

// context builds the operation context for a decoded set and binds the
// shares to it. Every header must agree on k and n, and an explicit
// threshold must match them. Shares read from files carry no session and
// belong to whichever session is asked for.
func (s *shareSet) context(decoded []decodedShare, threshold int, sessionID string) (operations.OperationContext, []operations.CollectedShare, error) {
	if len(decoded) == 0 {
		return operations.OperationContext{}, nil, &interfaces.VerificationError{Code: verify.CodeInsufficientShares, Err: interfaces.ErrInsufficientShares}
	}

	first := decoded[0].header
	for i, d := range decoded[1:] {
		if d.header.Threshold != first.Threshold || d.header.ShareCount != first.ShareCount {
			return operations.OperationContext{}, nil, &interfaces.VerificationError{
				Code: verify.CodeShareContextMismatch,
				Err:  fmt.Errorf("%w: %s is %s, %s is %s", interfaces.ErrContextMismatch, s.sources[i+1], d.header, s.sources[0], first),
			}
		}
	}
	if threshold != 0 && threshold != int(first.Threshold) {
		return operations.OperationContext{}, nil, &interfaces.VerificationError{
			Code: verify.CodeShareContextMismatch,
			Err:  fmt.Errorf("%w: threshold %d requested, shares carry %d", interfaces.ErrContextMismatch, threshold, first.Threshold),
		}
	}

	opCtx := operations.OperationContext{
		SessionID:        sessionID,
		Threshold:        int(first.Threshold),
		TotalShares:      int(first.ShareCount),
		AlgorithmVersion: operations.AlgorithmVersion,
	}
	if opCtx.SessionID == "" {
		opCtx.SessionID = s.sessionID
	}
	if opCtx.SessionID == "" {
		opCtx.SessionID = localSessionID
	}

	shareSession := s.sessionID
	if shareSession == "" {
		shareSession = opCtx.SessionID
	}

	shares := make([]operations.CollectedShare, len(decoded))
	for i, d := range decoded {
		shares[i] = operations.CollectedShare{
			Share:   verify.Share{ID: int(d.header.ShareIndex), SessionID: shareSession},
			Payload: d.payload,
		}
	}
	return opCtx, shares, nil
}
