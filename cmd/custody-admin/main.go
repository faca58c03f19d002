package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ruteri/shamir-custody/api/clients"
	"github.com/ruteri/shamir-custody/cryptoutils"
	"github.com/ruteri/shamir-custody/storage"
	"github.com/urfave/cli/v2"
)

var flagServer = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080/admin",
	Usage:   "custody admin API address",
	EnvVars: []string{"SHAMIR_SERVER_ADDR"},
}
var flagAdminPrivkey = &cli.StringFlag{
	Name:    "admin-privkey-file",
	Value:   "admin-private.pem",
	Usage:   "Path to admin private key",
	EnvVars: []string{"SHAMIR_ADMIN_PRIVKEY_FILE"},
}
var flagAdminPubkey = &cli.StringFlag{
	Name:  "admin-pubkey-file",
	Value: "admin-public.pem",
	Usage: "Path to admin public key",
}
var flagAdminID = &cli.StringFlag{
	Name:    "admin-id",
	Usage:   "admin id as listed in the server's admin keys file",
	EnvVars: []string{"SHAMIR_ADMIN_ID"},
}
var flagAdminsConfig = &cli.StringFlag{
	Name:  "admins-file",
	Value: "shamir-admins.json",
	Usage: "Path to the admin keys file for the custody server",
}
var flagShareFile = &cli.StringFlag{
	Name:  "share-file",
	Value: "shamir-share.json",
	Usage: "Path to the retrieved share",
}

// shareFile is what get-share writes and submit-share reads. The share is
// the decrypted SHAM encoding, so keep the file private.
type shareFile struct {
	Index     int    `json:"index"`
	SessionID string `json:"session_id"`
	Share     []byte `json:"share"`
}

func main() {
	app := &cli.App{
		Name:           "custody-admin",
		Usage:          "admin side of the custody bootstrap",
		DefaultCommand: "status",
		Commands: []*cli.Command{
			{
				Name:  "generate-admin",
				Usage: "generate an admin key pair",
				Flags: []cli.Flag{flagAdminPrivkey, flagAdminPubkey},
				Action: func(cCtx *cli.Context) error {
					privateKeyPEM, publicKeyPEM, err := cryptoutils.GenerateAdminKeyPair()
					if err != nil {
						return err
					}
					return storage.WriteFilesAtomic(map[string][]byte{
						cCtx.String(flagAdminPrivkey.Name): []byte(privateKeyPEM),
						cCtx.String(flagAdminPubkey.Name):  []byte(publicKeyPEM),
					}, 0600)
				},
			},
			{
				Name:      "generate-admins-config",
				Usage:     "build the server's admin keys file from admin public keys",
				ArgsUsage: "<id>=<pubkey file>...",
				Flags:     []cli.Flag{flagAdminsConfig},
				Action: func(cCtx *cli.Context) error {
					var config cryptoutils.AdminsConfig
					for _, arg := range cCtx.Args().Slice() {
						id, path, err := parseAdminArg(arg)
						if err != nil {
							return err
						}
						publicKeyPEM, err := os.ReadFile(path)
						if err != nil {
							return err
						}
						config.Admins = append(config.Admins, cryptoutils.AdminMetadata{ID: id, PubKey: string(publicKeyPEM)})
					}
					if len(config.Admins) == 0 {
						return fmt.Errorf("no admins given")
					}

					configBytes, err := json.MarshalIndent(config, "", "  ")
					if err != nil {
						return err
					}
					return storage.WriteFileAtomic(cCtx.String(flagAdminsConfig.Name), configBytes, 0644)
				},
			},
			{
				Name:  "status",
				Usage: "show the bootstrap status",
				Flags: adminFlags(),
				Action: func(cCtx *cli.Context) error {
					client, err := newClient(cCtx)
					if err != nil {
						return err
					}
					status, err := client.GetStatus(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(cCtx, status)
				},
			},
			{
				Name:  "init-generate",
				Usage: "generate the master key and seal one share per admin",
				Flags: adminFlags(),
				Action: func(cCtx *cli.Context) error {
					client, err := newClient(cCtx)
					if err != nil {
						return err
					}
					resp, err := client.InitGenerate(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(cCtx, resp)
				},
			},
			{
				Name:  "init-recover",
				Usage: "put the server into recovery mode",
				Flags: adminFlags(),
				Action: func(cCtx *cli.Context) error {
					client, err := newClient(cCtx)
					if err != nil {
						return err
					}
					resp, err := client.InitRecover(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(cCtx, resp)
				},
			},
			{
				Name:  "get-share",
				Usage: "fetch and decrypt this admin's share",
				Flags: append(adminFlags(), flagShareFile),
				Action: func(cCtx *cli.Context) error {
					client, err := newClient(cCtx)
					if err != nil {
						return err
					}
					share, err := client.GetShare(cCtx.Context)
					if err != nil {
						return err
					}
					data, err := json.Marshal(shareFile{Index: share.Index, SessionID: share.SessionID, Share: share.Encoded})
					if err != nil {
						return err
					}
					if err := storage.WriteFileAtomic(cCtx.String(flagShareFile.Name), data, 0600); err != nil {
						return err
					}
					fmt.Fprintf(cCtx.App.Writer, "share %d of session %s saved to %s\n", share.Index, share.SessionID, cCtx.String(flagShareFile.Name))
					return nil
				},
			},
			{
				Name:  "submit-share",
				Usage: "sign and submit this admin's share during recovery",
				Flags: append(adminFlags(), flagShareFile),
				Action: func(cCtx *cli.Context) error {
					client, err := newClient(cCtx)
					if err != nil {
						return err
					}
					data, err := os.ReadFile(cCtx.String(flagShareFile.Name))
					if err != nil {
						return err
					}
					var share shareFile
					if err := json.Unmarshal(data, &share); err != nil {
						return fmt.Errorf("failed to parse share file: %w", err)
					}
					resp, err := client.SubmitShare(cCtx.Context, share.SessionID, share.Share)
					if err != nil {
						return err
					}
					return printJSON(cCtx, resp)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func adminFlags() []cli.Flag {
	return []cli.Flag{flagServer, flagAdminPrivkey, flagAdminPubkey, flagAdminID}
}

// newClient builds a client for the configured admin. Without --admin-id the
// fingerprint of the admin public key is used.
func newClient(cCtx *cli.Context) (*clients.AdminShareClient, error) {
	privateKeyPEM, err := os.ReadFile(cCtx.String(flagAdminPrivkey.Name))
	if err != nil {
		return nil, err
	}

	adminID := cCtx.String(flagAdminID.Name)
	if adminID == "" {
		publicKeyPEM, err := os.ReadFile(cCtx.String(flagAdminPubkey.Name))
		if err != nil {
			return nil, fmt.Errorf("no --admin-id and no public key to derive it from: %w", err)
		}
		adminID = cryptoutils.ComputeFingerprint(publicKeyPEM)
	}

	return clients.NewAdminShareClient(cCtx.String(flagServer.Name), adminID, privateKeyPEM)
}

func parseAdminArg(arg string) (string, string, error) {
	if id, path, ok := strings.Cut(arg, "="); ok && id != "" && path != "" {
		return id, path, nil
	}
	// A bare path gets the key fingerprint as id.
	publicKeyPEM, err := os.ReadFile(arg)
	if err != nil {
		return "", "", fmt.Errorf("expected <id>=<pubkey file> or a pubkey file, got %q", arg)
	}
	return cryptoutils.ComputeFingerprint(publicKeyPEM), arg, nil
}

func printJSON(cCtx *cli.Context, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cCtx.App.Writer, string(out))
	return nil
}
