package main

import (
	"encoding/json"
	"fmt"

	"github.com/ruteri/shamir-custody/cmd/flags"
	"github.com/ruteri/shamir-custody/shareformat"
	"github.com/ruteri/shamir-custody/verify"
	"github.com/urfave/cli/v2"
)

var verifyCommand = &cli.Command{
	Name:  "verify",
	Usage: "check that a share set would reconstruct, without reconstructing",
	Description: "Every share is decoded and integrity checked; shares that fail count as corrupted input. " +
		"The verification report is printed as JSON and the command fails if any check fails.",
	Flags: append([]cli.Flag{
		flagShareFiles,
		flagThreshold,
		flagSessionID,
		flags.StoreURIFlag,
		flagSetName,
		flagIndices,
	}, flags.MACFlags...),
	Action: runVerify,
}

func runVerify(cCtx *cli.Context) error {
	log := flags.SetupLogger(cCtx)

	macKey, err := flags.LoadMACKey(cCtx)
	if err != nil {
		return err
	}

	set, err := loadShareSet(cCtx, log)
	if err != nil {
		return err
	}

	sessionID := cCtx.String(flagSessionID.Name)
	if sessionID == "" {
		sessionID = set.sessionID
	}
	if sessionID == "" {
		sessionID = localSessionID
	}
	shareSession := set.sessionID
	if shareSession == "" {
		shareSession = sessionID
	}

	threshold := cCtx.Int(flagThreshold.Name)
	shares := make([]verify.Share, 0, len(set.encoded))
	for i, data := range set.encoded {
		h, _, err := shareformat.Decode(data, macKey)
		if err != nil {
			log.Debug("Share failed to decode", "source", set.sources[i], "err", err)
			shares = append(shares, verify.Share{SessionID: shareSession})
			continue
		}
		if threshold == 0 {
			threshold = int(h.Threshold)
		}
		shares = append(shares, verify.Share{ID: int(h.ShareIndex), SessionID: shareSession})
	}

	report := verify.Inspect(shares, verify.Context{SessionID: sessionID, Threshold: threshold})

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cCtx.App.Writer, string(out))

	return report.Err()
}

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "print the header of every share file",
	ArgsUsage: "<share file>...",
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() == 0 {
			return fmt.Errorf("no share files given")
		}
		for _, path := range cCtx.Args().Slice() {
			data, err := readInput(cCtx.App.Reader, path)
			if err != nil {
				return err
			}
			h, err := shareformat.ReadHeader(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(cCtx.App.Writer, "%s: %s, %d bytes\n", path, h, len(data))
		}
		return nil
	},
}
