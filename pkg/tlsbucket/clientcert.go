package tlsbucket

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/bucketpipe/bucketpipe/pkg/bucketlog"
	stderrors "github.com/bucketpipe/bucketpipe/pkg/errors"
)

// getClientCertificate drives the path_callback -> password_callback
// chain spec.md §4.9 describes, trying a cached (path, password) pair
// first: "Subsequent sessions try the cached values first; on mismatch
// they fall back to re-prompting."
func (c *Context) getClientCertificate(info *tls.CertificateRequestInfo) (*tls.Certificate, error) {
	c.mu.Lock()
	cache := c.certCache
	pathCB := c.pathCallback
	passwordCB := c.passwordCallback
	cachedPath := c.cachedPath
	cachedPassword := c.cachedPassword
	log := c.log
	c.mu.Unlock()

	if path, password, ok := lookupCachedCert(cache, cachedPath, cachedPassword); ok {
		if cert, err := loadClientCert(path, password); err == nil {
			return cert, nil
		}
		log.Log(bucketlog.LevelWarn, "tlsbucket", "cached client certificate no longer usable, re-prompting")
	}

	if pathCB == nil {
		return &tls.Certificate{}, nil
	}
	path, err := pathCB()
	if err != nil {
		return nil, err
	}
	var password string
	if passwordCB != nil {
		if password, err = passwordCB(); err != nil {
			return nil, err
		}
	}
	cert, err := loadClientCert(path, password)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cachedPath = path
	c.cachedPassword = password
	c.mu.Unlock()
	if cache != nil {
		cache.Set(CertCacheKeyPath, path)
		cache.Set(CertCacheKeyPassword, password)
	}
	return cert, nil
}

func lookupCachedCert(cache CertCache, fallbackPath, fallbackPassword string) (path, password string, ok bool) {
	if cache != nil {
		if p, found := cache.Get(CertCacheKeyPath); found {
			pw, _ := cache.Get(CertCacheKeyPassword)
			return p, pw, true
		}
		return "", "", false
	}
	if fallbackPath != "" {
		return fallbackPath, fallbackPassword, true
	}
	return "", "", false
}

// loadClientCert loads a client certificate/key pair named "cert.pem:key.pem".
// password is accepted for callback-chain symmetry with spec.md §4.9 but
// unused here: decrypting an encrypted private key is a collaborator
// concern (the caller's password_callback), not core plumbing.
func loadClientCert(path, password string) (*tls.Certificate, error) {
	_ = password
	certPath, keyPath, ok := splitCertKeyPath(path)
	if !ok {
		return nil, stderrors.NewValidationError(fmt.Sprintf("client cert path %q must be \"cert.pem:key.pem\"", path))
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func splitCertKeyPath(path string) (certPath, keyPath string, ok bool) {
	idx := strings.LastIndexByte(path, ':')
	if idx < 0 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}
