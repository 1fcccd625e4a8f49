// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package poolapi implements a client for the versioned REST API served by
// Decred stake pools.
package poolapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/context/ctxhttp"
)

const (
	// EarliestSupportedVersion is the oldest pool API version this client
	// can speak.
	EarliestSupportedVersion = 1

	// LatestSupportedVersion is the newest pool API version this client
	// can speak.
	LatestSupportedVersion = 2

	// voteBitsVersion is the first version accepting per-user vote bits.
	voteBitsVersion = 2
)

// maxResponseSize bounds how much of a pool response is read.
const maxResponseSize = 1 << 20

// IsSupportedVersion reports whether v is a pool API version this client
// implements.
func IsSupportedVersion(v uint32) bool {
	return v >= EarliestSupportedVersion && v <= LatestSupportedVersion
}

// BestSupportedVersion returns the highest version in offered that this
// client also implements.
func BestSupportedVersion(offered []uint32) (uint32, error) {
	var best uint32
	found := false
	for _, v := range offered {
		if IsSupportedVersion(v) && (!found || v > best) {
			best, found = v, true
		}
	}
	if !found {
		return 0, ErrNoCompatibleVersion
	}
	return best, nil
}

// SupportsVoteBits reports whether a pool speaking version v accepts vote
// bits from its users.
func SupportsVoteBits(v uint32) bool {
	return v >= voteBitsVersion
}

// Client performs authenticated calls against a single pool at a single
// negotiated API version.  It holds no mutable state and may be used
// concurrently.
type Client struct {
	version    uint32
	baseURL    *url.URL
	apiToken   string
	httpClient *http.Client
}

// NewClient returns a client for the pool at poolURL.  The pool is not
// contacted.  A nil httpClient selects http.DefaultClient.
func NewClient(version uint32, poolURL, apiToken string, httpClient *http.Client) (*Client, error) {
	if !IsSupportedVersion(version) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	u, err := url.Parse(poolURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pool URL %q: %v", poolURL, err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return nil, fmt.Errorf("%w: %s", ErrInsecureEndpoint, poolURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		version:    version,
		baseURL:    u,
		apiToken:   apiToken,
		httpClient: httpClient,
	}, nil
}

// Version returns the API version the client speaks.
func (c *Client) Version() uint32 {
	return c.version
}

// Host returns the host of the pool.
func (c *Client) Host() string {
	return c.baseURL.Host
}

func (c *Client) methodURL(method string) string {
	ref := &url.URL{Path: fmt.Sprintf("api/v%d/%s", c.version, method)}
	base := *c.baseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref).String()
}

// do sends one request and decodes the envelope.  A non-nil error is a
// *TransportError, *InvalidDataError or *RejectedError.
func (c *Client) do(ctx context.Context, httpMethod, method string, form url.Values) (*Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(httpMethod, c.methodURL(method), body)
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	log.Tracef("%s %s", httpMethod, req.URL)
	resp, err := ctxhttp.Do(ctx, c.httpClient, req)
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Method:     method,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	b, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Method: method, StatusCode: resp.StatusCode,
			Status: resp.Status, Err: err}
	}
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, &InvalidDataError{Field: "response envelope", Err: err}
	}
	if !r.Success() {
		return nil, &RejectedError{Method: method, Code: r.Code, Message: r.Message}
	}
	log.Debugf("%s: %s %s", c.baseURL.Host, method, r.Message)
	return &r, nil
}

// CreateVotingAddress submits the user's public key address so the pool can
// derive the 1-of-2 multisig voting script for the user.
func (c *Client) CreateVotingAddress(ctx context.Context, pubKeyAddr string) error {
	form := url.Values{"UserPubKeyAddr": {pubKeyAddr}}
	_, err := c.do(ctx, http.MethodPost, "address", form)
	return err
}

// SetVoteBits sets the vote bits the pool votes the user's tickets with.
// Version 1 pools always vote with their own defaults and do not accept
// this call.
func (c *Client) SetVoteBits(ctx context.Context, voteBits uint16) error {
	if !SupportsVoteBits(c.version) {
		return fmt.Errorf("voting: %w (v%d)", ErrNotSupportedAtVersion, c.version)
	}
	form := url.Values{"VoteBits": {strconv.FormatUint(uint64(voteBits), 10)}}
	_, err := c.do(ctx, http.MethodPost, "voting", form)
	return err
}

// PurchaseInfo fetches the addresses, script and fees required to purchase
// tickets through the pool.
func (c *Client) PurchaseInfo(ctx context.Context) (*UserInfo, error) {
	r, err := c.do(ctx, http.MethodGet, "getpurchaseinfo", nil)
	if err != nil {
		return nil, err
	}
	if r.Data == nil || string(*r.Data) == "null" {
		return nil, fmt.Errorf("getpurchaseinfo: %w", ErrMissingData)
	}

	var fields purchaseInfoFields
	if err := json.Unmarshal(*r.Data, &fields); err != nil {
		return nil, &InvalidDataError{Field: "purchase info", Err: err}
	}
	if missing := fields.missing(); len(missing) != 0 {
		return nil, fmt.Errorf("getpurchaseinfo: %w: %s", ErrMissingData,
			strings.Join(missing, ", "))
	}

	feePercent, err := ParseFeePercent(fields.PoolFees.String())
	if err != nil {
		return nil, &InvalidDataError{Field: "PoolFees", Err: err}
	}
	return &UserInfo{
		FeeAddress:      *fields.PoolAddress,
		FeePercent:      feePercent,
		FeeFraction:     FeeFraction(feePercent),
		RedeemScriptHex: *fields.Script,
		VotingAddress:   *fields.TicketAddress,
		VoteBits:        *fields.VoteBits,
		VoteBitsVersion: *fields.VoteBitsVersion,
	}, nil
}

// Stats fetches the pool's public statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	r, err := c.do(ctx, http.MethodGet, "stats", nil)
	if err != nil {
		return nil, err
	}
	if r.Data == nil || string(*r.Data) == "null" {
		return nil, fmt.Errorf("stats: %w", ErrMissingData)
	}
	var stats Stats
	if err := json.Unmarshal(*r.Data, &stats); err != nil {
		return nil, &InvalidDataError{Field: "stats", Err: err}
	}
	return &stats, nil
}
