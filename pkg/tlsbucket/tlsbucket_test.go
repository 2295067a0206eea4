package tlsbucket_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/bucketpipe/bucketpipe/pkg/bucket"
	"github.com/bucketpipe/bucketpipe/pkg/tlsbucket"
)

// memPipe is a one-directional, in-memory ciphertext transport used to
// wire a client Context's Encrypt/Decrypt pair to a server Context's,
// standing in for the socket collaborator spec.md §1 puts out of scope.
type memPipe struct {
	mu  sync.Mutex
	buf []byte
}

func (p *memPipe) push(b []byte) {
	if len(b) == 0 {
		return
	}
	p.mu.Lock()
	p.buf = append(p.buf, b...)
	p.mu.Unlock()
}

func (p *memPipe) Read(max int) ([]byte, bucket.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return nil, bucket.StatusAgain, nil
	}
	n := len(p.buf)
	if max != bucket.AllAvail && max < n {
		n = max
	}
	out := append([]byte(nil), p.buf[:n]...)
	p.buf = p.buf[n:]
	return out, bucket.StatusOK, nil
}

func (p *memPipe) Readline(bucket.LineMask) ([]byte, bucket.Found, bucket.Status, error) {
	return nil, bucket.FoundNone, bucket.StatusError, nil
}

func (p *memPipe) Peek() ([]byte, bucket.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return nil, bucket.StatusAgain, nil
	}
	return append([]byte(nil), p.buf...), bucket.StatusOK, nil
}

func (p *memPipe) ReadIovec(maxBytes, maxVecs int) ([][]byte, int, bucket.Status, error) {
	return bucket.DefaultReadIovec(p, maxBytes, maxVecs)
}

func (p *memPipe) Destroy()                {}
func (p *memPipe) SetConfig(bucket.Config) {}

var _ bucket.Bucket = (*memPipe)(nil)

// selfSignedCert generates a throwaway ECDSA cert/key good for the
// duration of one test, valid for DNS name "bucketpipe.test".
func selfSignedCert(t *testing.T) (tls.Certificate, *x509.Certificate) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "bucketpipe.test"},
		DNSNames:              []string{"bucketpipe.test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv, Leaf: leaf}, leaf
}

// TestHandshakeAndRoundTrip drives a client Context and a server Context
// against each other over two memPipes standing in for a socket, and
// checks that plaintext fed into the client's encrypt side arrives intact
// on the server's decrypt side once the handshake completes — spec.md §8
// invariant 8.
func TestHandshakeAndRoundTrip(t *testing.T) {
	serverCert, leaf := selfSignedCert(t)

	roots := x509.NewCertPool()
	roots.AddCert(leaf)

	clientToServer := &memPipe{}
	serverToClient := &memPipe{}

	plaintext := []byte("hello server, this is the client speaking")
	plaintextSrc := bucket.NewSimpleBucket(plaintext, bucket.Borrowed)

	client := tlsbucket.NewClientContext("bucketpipe.test", serverToClient, plaintextSrc, &tls.Config{
		RootCAs: roots,
	})
	defer client.Decrypt.Destroy()
	defer client.Encrypt.Destroy()

	server := tlsbucket.NewServerContext(serverCert, clientToServer, bucket.NewSimpleBucket(nil, bucket.Borrowed), nil)
	defer server.Decrypt.Destroy()
	defer server.Encrypt.Destroy()

	var received []byte
	const maxIterations = 500

	for i := 0; i < maxIterations && received == nil; i++ {
		time.Sleep(time.Millisecond)
		// Client side: drive handshake / outbound data, forward ciphertext.
		if out, status, err := client.Encrypt.Read(bucket.AllAvail); err != nil {
			t.Fatalf("client encrypt read: %v", err)
		} else if status == bucket.StatusOK && len(out) > 0 {
			clientToServer.push(out)
		}
		if _, status, err := client.Decrypt.Read(bucket.AllAvail); err != nil {
			t.Fatalf("client decrypt read: %v", err)
		} else {
			_ = status
		}

		// Server side: drive handshake / inbound data, forward ciphertext.
		if out, status, err := server.Encrypt.Read(bucket.AllAvail); err != nil {
			t.Fatalf("server encrypt read: %v", err)
		} else if status == bucket.StatusOK && len(out) > 0 {
			serverToClient.push(out)
		}
		data, status, err := server.Decrypt.Read(bucket.AllAvail)
		if err != nil {
			t.Fatalf("server decrypt read: %v", err)
		}
		if status == bucket.StatusOK && len(data) > 0 {
			received = append(received, data...)
		}
	}

	if received == nil {
		t.Fatalf("handshake/data exchange did not converge within %d iterations", maxIterations)
	}
	if string(received) != string(plaintext) {
		t.Fatalf("server received %q, want %q", received, plaintext)
	}
}

func TestCertFailureMaskBits(t *testing.T) {
	mask := tlsbucket.CertExpired | tlsbucket.CertInvalidHost
	if mask&tlsbucket.CertExpired == 0 {
		t.Fatalf("expected CertExpired bit set")
	}
	if mask&tlsbucket.CertSelfSigned != 0 {
		t.Fatalf("expected CertSelfSigned bit clear")
	}
}
