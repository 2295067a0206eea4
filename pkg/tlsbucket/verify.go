package tlsbucket

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/bucketpipe/bucketpipe/pkg/bucketlog"
	stderrors "github.com/bucketpipe/bucketpipe/pkg/errors"
)

// OCSPResult is the parsed form of a stapled OCSP response handed to the
// OCSPCallback (spec.md §4.9's OCSP stapling hook).
type OCSPResult struct {
	Status   int // one of golang.org/x/crypto/ocsp's Good/Revoked/Unknown
	Response *ocsp.Response
}

// verifyConnection is installed as tls.Config.VerifyConnection. The
// config carries InsecureSkipVerify so crypto/tls performs no automatic
// chain/hostname checking itself; this method does that work by hand so
// it can accumulate the CertFailureMask spec.md §4.9 describes instead of
// failing on the first problem found.
func (c *Context) verifyConnection(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return c.reportVerifyFailure(CertUnknownFailure, nil)
	}
	leaf := cs.PeerCertificates[0]
	now := time.Now()

	var mask CertFailureMask
	if now.Before(leaf.NotBefore) {
		mask |= CertNotYetValid
	}
	if now.After(leaf.NotAfter) {
		mask |= CertExpired
	}
	if badHostname(leaf, c.tlsConfig.ServerName) {
		mask |= CertInvalidHost
	}

	roots := c.tlsConfig.RootCAs
	if roots == nil {
		if pool, err := x509.SystemCertPool(); err == nil && pool != nil {
			roots = pool
		} else {
			roots = x509.NewCertPool()
		}
	}
	intermediates := x509.NewCertPool()
	for _, cert := range cs.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}

	_, chainErr := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	if chainErr != nil {
		var unknownAuth x509.UnknownAuthorityError
		var invalid x509.CertificateInvalidError
		switch {
		case errors.As(chainErr, &unknownAuth):
			if isSelfSigned(leaf) {
				mask |= CertSelfSigned
			} else {
				mask |= CertUnknownCA
			}
		case errors.As(chainErr, &invalid):
			// Expired/NotYetValid are already captured from wall-clock
			// comparison above; any other chain-structure reason (name
			// constraints, key usage, too many intermediates, ...) has
			// no dedicated bit.
			if mask == 0 {
				mask |= CertUnknownFailure
			}
		default:
			mask |= CertUnknownFailure
		}
	}

	if mask != 0 {
		return c.reportVerifyFailure(mask, leaf)
	}

	return c.checkOCSPStaple(cs, leaf)
}

// badHostname reports a hostname/CN/SAN mismatch, rejecting embedded NULs
// in either side per spec.md §4.9 ("rejecting NULs in either").
func badHostname(leaf *x509.Certificate, serverName string) bool {
	if serverName == "" {
		return false
	}
	if containsNUL(serverName) {
		return true
	}
	for _, name := range append([]string{leaf.Subject.CommonName}, leaf.DNSNames...) {
		if containsNUL(name) {
			return true
		}
	}
	return leaf.VerifyHostname(serverName) != nil
}

func containsNUL(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return true
		}
	}
	return false
}

func isSelfSigned(cert *x509.Certificate) bool {
	if cert.Subject.String() != cert.Issuer.String() {
		return false
	}
	return cert.CheckSignatureFrom(cert) == nil
}

// reportVerifyFailure consults the user callback (if any) once per
// failing certificate, then latches ErrSSLCertFailed if nothing overrode
// the decision (spec.md §4.9: "If neither callback is installed and the
// engine rejected the cert, latch pending_err = CERT_FAILED").
func (c *Context) reportVerifyFailure(mask CertFailureMask, leaf *x509.Certificate) error {
	c.mu.Lock()
	c.verifyMask = mask
	cb := c.verifyCallback
	log := c.log
	c.mu.Unlock()

	log.Log(bucketlog.LevelWarn, "tlsbucket", "certificate verification failed")

	if cb != nil {
		if err := cb(mask, leaf); err == nil {
			return nil
		}
	}
	return stderrors.ErrSSLCertFailed
}

// checkOCSPStaple parses a stapled OCSP response (if the peer sent one)
// and applies the same callback-or-latch pattern as certificate
// verification. With no EnforceOCSPStapling config set, failures are
// advisory: logged, not fatal to the handshake. A revoked status is always
// fatal. A missing staple fails only through an OCSPCallback that rejects it.
func (c *Context) checkOCSPStaple(cs tls.ConnectionState, leaf *x509.Certificate) error {
	c.mu.Lock()
	cb := c.ocspCallback
	enforce := c.enforceOCSP
	log := c.log
	c.mu.Unlock()

	if len(cs.OCSPResponse) == 0 {
		if cb != nil {
			if err := cb(nil, nil); err != nil {
				return c.reportOCSPFailure(err, enforce)
			}
		}
		return nil
	}

	issuer := leaf
	if len(cs.PeerCertificates) > 1 {
		issuer = cs.PeerCertificates[1]
	}
	resp, parseErr := ocsp.ParseResponseForCert(cs.OCSPResponse, leaf, issuer)

	var result *OCSPResult
	if resp != nil {
		result = &OCSPResult{Status: resp.Status, Response: resp}
	}

	if cb != nil {
		if err := cb(result, parseErr); err != nil {
			return c.reportOCSPFailure(err, enforce)
		}
		return nil
	}

	if parseErr != nil {
		var respErr ocsp.ResponseError
		var mapped error
		if errors.As(parseErr, &respErr) {
			switch respErr.Status {
			case ocsp.TryLater:
				mapped = stderrors.ErrOCSPResponderTryLater
			case ocsp.Malformed, ocsp.InternalError, ocsp.SigRequired, ocsp.Unauthorized:
				mapped = stderrors.ErrOCSPResponderError
			default:
				mapped = stderrors.ErrOCSPResponderUnknownFailure
			}
		} else {
			mapped = stderrors.ErrOCSPResponderUnknownFailure
		}
		log.Log(bucketlog.LevelWarn, "tlsbucket", "OCSP response error: "+mapped.Error())
		return c.reportOCSPFailure(mapped, enforce)
	}

	switch resp.Status {
	case ocsp.Good:
		return nil
	case ocsp.Revoked:
		c.mu.Lock()
		c.verifyMask |= CertRevoked
		c.mu.Unlock()
		return c.reportOCSPFailure(stderrors.ErrSSLCertFailed, true)
	default: // ocsp.Unknown
		return c.reportOCSPFailure(stderrors.ErrOCSPResponderUnknownFailure, enforce)
	}
}

func (c *Context) reportOCSPFailure(err error, fatal bool) error {
	c.mu.Lock()
	log := c.log
	c.mu.Unlock()
	log.Log(bucketlog.LevelWarn, "tlsbucket", "OCSP staple check failed: "+err.Error())
	if !fatal {
		return nil
	}
	return err
}
