package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/nx0ly/moomoo2/internal/protocol"
	"github.com/nx0ly/moomoo2/internal/session"
)

func selfSignedTLS(t *testing.T, alpn string) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{alpn},
	}
}

func TestQUICEndToEnd(t *testing.T) {
	h := newHarness(t, testConfig())
	alpn := h.cfg.Server.ALPN

	ln, err := quic.ListenAddr("127.0.0.1:0", selfSignedTLS(t, alpn), h.srv.quicConfig())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- h.srv.Serve(ctx, ln) }()

	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()
	conn, err := quic.DialAddr(dctx, ln.Addr().String(), &tls.Config{InsecureSkipVerify: true, NextProtos: []string{alpn}}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	st, err := conn.OpenStreamSync(dctx)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	crypto, err := session.Dial(st)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}

	plain, _ := protocol.Encode(protocol.OpSpawn, protocol.SpawnRequest{Name: "quic"})
	sealed, _ := crypto.Seal(plain)
	if err := protocol.WriteFrame(st, sealed); err != nil {
		t.Fatal(err)
	}

	_ = st.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		frame, err := protocol.ReadFrame(st, 0)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		body, err := crypto.Open(frame)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		msg, err := protocol.DecodeServer(body)
		if err == nil && msg.Op == protocol.OpAddPlayer && msg.Add.IsMine {
			if msg.Add.Data.Name != "quic" {
				t.Fatalf("name = %q", msg.Add.Data.Name)
			}
			break
		}
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	eventually(t, "registry drained", func() bool { return h.reg.Len() == 0 })
}
