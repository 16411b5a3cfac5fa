package wsproto

import (
	"crypto/tls"
	"net"
)

// newListener binds addr and, when both certFile and keyFile are set
// (spec.md §6 "TLS key/cert file paths"), wraps the socket in a TLS
// listener so upgrades arrive over wss:// instead of ws://.
func newListener(addr, certFile, keyFile string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if certFile == "" && keyFile == "" {
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		ln.Close()
		return nil, err
	}
	return tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}}), nil
}
