package anwdlclient

import (
	"os"
	"path/filepath"

	"github.com/the-anweddol-project/anwdl-client-go/crypto"
)

// LoadOrGenerateKeyPair implements the "one-time RSA keys" design note. When
// cfg.EnableOnetimeRSAKeys is set, it generates a fresh in-memory key pair
// and never touches disk. Otherwise it loads the private key file; if the
// public key file is missing, the public key is derived from the private
// key and written back atomically.
func LoadOrGenerateKeyPair(cfg Config) (*crypto.RSAWrapper, error) {
	if cfg.EnableOnetimeRSAKeys {
		w, err := crypto.NewRSAWrapper()
		if err != nil {
			return nil, newErr(KindCrypto, err, "generate one-time rsa key pair")
		}
		return w, nil
	}

	privPEM, err := os.ReadFile(cfg.PrivateRSAKeyFilePath)
	if err != nil {
		return nil, newErr(KindConfig, err, "read private rsa key file %q", cfg.PrivateRSAKeyFilePath)
	}

	w := crypto.NewEmptyRSAWrapper()

	pubPEM, err := os.ReadFile(cfg.PublicRSAKeyFilePath)
	switch {
	case err == nil:
		if err := w.SetPrivateKey(privPEM, false); err != nil {
			return nil, newErr(KindCrypto, err, "load private rsa key")
		}
		if err := w.SetPublicKey(pubPEM); err != nil {
			return nil, newErr(KindCrypto, err, "load public rsa key")
		}
	case os.IsNotExist(err):
		if err := w.SetPrivateKey(privPEM, true); err != nil {
			return nil, newErr(KindCrypto, err, "load private rsa key")
		}
		derived, err := w.PublicKey()
		if err != nil {
			return nil, newErr(KindCrypto, err, "derive public rsa key")
		}
		if err := writeFileAtomic(cfg.PublicRSAKeyFilePath, derived, 0o644); err != nil {
			return nil, newErr(KindConfig, err, "write derived public rsa key file %q", cfg.PublicRSAKeyFilePath)
		}
	default:
		return nil, newErr(KindConfig, err, "read public rsa key file %q", cfg.PublicRSAKeyFilePath)
	}

	return w, nil
}

// writeFileAtomic writes data to path via a temp file in the same directory
// followed by a rename, so a crash mid-write never leaves a truncated key
// file in place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
