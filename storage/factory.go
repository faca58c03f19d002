package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/shamir-custody/interfaces"
)

// StorageBackendFactory creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{
		log: logger,
	}
}

// StorageBackendFor creates a storage backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS node, files kept in MFS
//   - vault:// - HashiCorp Vault KV v2
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	switch location.Scheme {
	case "ipfs":
		return sf.createIPFSBackend(location)
	case "s3":
		return sf.createS3Backend(location)
	case "file":
		return sf.createFileBackend(location)
	case "vault":
		return sf.createVaultBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// StorageBackendForURI parses uri and creates the matching backend.
func (sf *StorageBackendFactory) StorageBackendForURI(uri string) (interfaces.StorageBackend, error) {
	location, err := interfaces.NewStorageBackendLocation(uri)
	if err != nil {
		return nil, err
	}
	return sf.StorageBackendFor(location)
}

// CreateMultiBackend creates a multi-storage backend from a list of location URIs.
// Backends that cannot be created are logged and skipped.
// Returns an error if no valid backends could be created from the provided URIs.
func (sf *StorageBackendFactory) CreateMultiBackend(uris []string) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(uris))

	for _, uri := range uris {
		backend, err := sf.StorageBackendForURI(uri)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", redactURI(uri)))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	if len(backends) == 1 {
		return backends[0], nil
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// createIPFSBackend creates an IPFS storage backend.
// URI format: ipfs://host:port/mfs/dir?timeout=30s
func (sf *StorageBackendFactory) createIPFSBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", loc.String()))

	host, port, _ := strings.Cut(loc.Host, ":")
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	timeout, err := parseTimeout(loc, 30*time.Second)
	if err != nil {
		return nil, err
	}

	return NewIPFSBackend(host, port, loc.Path, timeout, sf.log)
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
// Without embedded credentials the default AWS credential chain is used.
func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("uri", redactURI(loc.String())))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in %s", interfaces.ErrInvalidLocationURI, redactURI(loc.String()))
	}

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1" // Default region
	}

	var accessKey, secretKey string
	if loc.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(loc.Auth, ":")
		sf.log.Debug("Using embedded S3 credentials")
	}

	return NewS3Backend(loc.Host, loc.Path, region, loc.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", loc.String()))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, loc.String())
	}

	return NewFileBackend(path, sf.log)
}

// createVaultBackend creates a Vault KV v2 backend.
// URI format: vault://host:8200/mount/path?token=...&tls=false&ca_cert=...&client_cert=...&client_key=...
// Without a token parameter VAULT_TOKEN is used.
func (sf *StorageBackendFactory) createVaultBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("uri", redactURI(loc.String())))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing Vault address in %s", interfaces.ErrInvalidLocationURI, redactURI(loc.String()))
	}

	mount, dataPath, _ := strings.Cut(strings.Trim(loc.Path, "/"), "/")
	if mount == "" {
		mount = "secret"
	}

	scheme := "https"
	if loc.GetParam("tls") == "false" {
		scheme = "http"
	}

	timeout, err := parseTimeout(loc, 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := VaultConfig{
		Address:   fmt.Sprintf("%s://%s", scheme, loc.Host),
		MountPath: mount,
		DataPath:  dataPath,
		Token:     loc.GetParam("token"),
		Timeout:   timeout,
	}
	if scheme == "https" && (loc.GetParam("ca_cert") != "" || loc.GetParam("client_cert") != "") {
		cfg.TLS = &api.TLSConfig{
			CACert:     loc.GetParam("ca_cert"),
			ClientCert: loc.GetParam("client_cert"),
			ClientKey:  loc.GetParam("client_key"),
		}
	}

	return NewVaultBackend(cfg, sf.log)
}

func parseTimeout(loc interfaces.StorageBackendLocation, def time.Duration) (time.Duration, error) {
	raw := loc.GetParam("timeout")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
	}
	return d, nil
}

// redactURI hides embedded credentials and tokens before logging.
func redactURI(uri string) string {
	if scheme, rest, ok := strings.Cut(uri, "://"); ok {
		if at := strings.Index(rest, "@"); at >= 0 {
			if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
				rest = "***@" + rest[at+1:]
			}
		}
		uri = scheme + "://" + rest
	}
	if base, query, ok := strings.Cut(uri, "?"); ok && strings.Contains(query, "token=") {
		return base + "?***"
	}
	return uri
}
