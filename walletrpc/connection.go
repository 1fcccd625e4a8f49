// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletrpc performs dcrwallet JSON-RPC calls over a websocket
// connection and serializes access to wallet state.
package walletrpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"

	"github.com/jrick/wsrpc/v2"
)

var requiredWalletAPI = semver{major: 6, minor: 0, patch: 0}

type semver struct {
	major, minor, patch uint32
}

func (s semver) String() string {
	return fmt.Sprintf("%d.%d.%d", s.major, s.minor, s.patch)
}

// semverCompatible reports whether actual provides the API of required.
func semverCompatible(required, actual semver) bool {
	switch {
	case required.major != actual.major:
		return false
	case required.minor > actual.minor:
		return false
	case required.minor == actual.minor && required.patch > actual.patch:
		return false
	default:
		return true
	}
}

// RPCOptions specifies the network settings for establishing a websocket
// connection to a JSON-RPC server.
type RPCOptions struct {
	Host string
	User string
	Pass string
	CA   []byte
}

// Conn is a websocket JSON-RPC connection to dcrwallet.
type Conn struct {
	wsclient *wsrpc.Client
	host     string
}

// Call passes the json-RPC call along to the server.
func (c *Conn) Call(ctx context.Context, method string, res interface{}, args ...interface{}) error {
	return c.wsclient.Call(ctx, method, res, args...)
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.wsclient.Close()
}

// Dial connects to the dcrwallet JSON-RPC server and checks that its API
// version is compatible.  The connection is closed when ctx is done.
func Dial(ctx context.Context, wg *sync.WaitGroup, options *RPCOptions) (*Conn, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(options.CA) {
		return nil, errors.New("no certificates found in wallet RPC CA")
	}
	tc := &tls.Config{
		RootCAs: pool,
	}
	opts := []wsrpc.Option{
		wsrpc.WithBasicAuth(options.User, options.Pass),
		wsrpc.WithTLSConfig(tc),
	}
	hostAddr := "wss://" + options.Host + "/ws"
	log.Debugf("Connecting to dcrwallet at %s as user %s", hostAddr, options.User)
	wsclient, err := wsrpc.Dial(ctx, hostAddr, opts...)
	if err != nil {
		return nil, err
	}
	c := &Conn{wsclient: wsclient, host: options.Host}

	if err := checkVersion(ctx, New(c)); err != nil {
		c.Close()
		return nil, err
	}

	// Close connection on shutdown signal.
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case <-wsclient.Done():
			log.Debugf("RPC client disconnected from %s: %v", c.host, wsclient.Err())
		}
		c.Close()
	}()
	log.Infof("Established connection to RPC server %s", options.Host)
	return c, nil
}

// checkVersion ensures the wallet RPC server has a compatible API version.
func checkVersion(ctx context.Context, rpc *RPC) error {
	ver, err := rpc.Version(ctx)
	if err != nil {
		return fmt.Errorf("unable to get wallet RPC version: %v", err)
	}
	v, ok := ver["dcrwalletjsonrpcapi"]
	if !ok {
		return errors.New("wallet RPC server does not report dcrwalletjsonrpcapi version")
	}
	walletVer := semver{v.Major, v.Minor, v.Patch}
	if !semverCompatible(requiredWalletAPI, walletVer) {
		return fmt.Errorf("wallet JSON-RPC server does not have "+
			"a compatible API version. Advertises %v but require %v",
			walletVer, requiredWalletAPI)
	}
	log.Debugf("dcrwallet JSON-RPC API version %v", walletVer)
	return nil
}
