// Copyright (c) 2017-2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package poolapi

import (
	"encoding/json"

	"google.golang.org/grpc/codes"
)

// Response is the envelope every pool API call is answered with.  Status is
// "success" or "error"; Data is only meaningful for successful responses.
type Response struct {
	Status  string           `json:"status"`
	Code    codes.Code       `json:"code"`
	Message string           `json:"message"`
	Data    *json.RawMessage `json:"data,omitempty"`
}

// Success reports whether the envelope signals a successful call.
func (r *Response) Success() bool {
	return r.Status == "success"
}

// TODO: make JSON tags lower-case and add "_" between words

// PurchaseInfo is the payload of the getpurchaseinfo call as it appears on
// the wire.  PoolFees is a percentage.
type PurchaseInfo struct {
	PoolAddress     string      `json:"PoolAddress"`
	PoolFees        json.Number `json:"PoolFees"`
	Script          string      `json:"Script"`
	TicketAddress   string      `json:"TicketAddress"`
	VoteBits        uint16      `json:"VoteBits"`
	VoteBitsVersion uint32      `json:"VoteBitsVersion"`
}

// purchaseInfoFields is used to detect fields the pool left out of an
// otherwise successful getpurchaseinfo response.
type purchaseInfoFields struct {
	PoolAddress     *string      `json:"PoolAddress"`
	PoolFees        *json.Number `json:"PoolFees"`
	Script          *string      `json:"Script"`
	TicketAddress   *string      `json:"TicketAddress"`
	VoteBits        *uint16      `json:"VoteBits"`
	VoteBitsVersion *uint32      `json:"VoteBitsVersion"`
}

func (f *purchaseInfoFields) missing() []string {
	var m []string
	if f.PoolAddress == nil {
		m = append(m, "PoolAddress")
	}
	if f.PoolFees == nil {
		m = append(m, "PoolFees")
	}
	if f.Script == nil {
		m = append(m, "Script")
	}
	if f.TicketAddress == nil {
		m = append(m, "TicketAddress")
	}
	if f.VoteBits == nil {
		m = append(m, "VoteBits")
	}
	if f.VoteBitsVersion == nil {
		m = append(m, "VoteBitsVersion")
	}
	return m
}

// UserInfo is the per-wallet record a pool returns for purchasing tickets,
// with the pool fee already converted from a percentage.
type UserInfo struct {
	// FeeAddress is the pool address ticket fees are paid to.
	FeeAddress string

	// FeePercent is the pool fee in hundredths of a percent.
	FeePercent uint32

	// FeeFraction is the pool fee as a ratio in [0, 1].
	FeeFraction float64

	// RedeemScriptHex is the hex encoded 1-of-2 multisig vote script.
	RedeemScriptHex string

	// VotingAddress is the P2SH address of the multisig vote script.
	VotingAddress string

	VoteBits        uint16
	VoteBitsVersion uint32
}

// Stats is the payload of the stats call.
type Stats struct {
	AllMempoolTix        uint32  `json:"AllMempoolTix"`
	APIVersionsSupported []int   `json:"APIVersionsSupported"`
	BlockHeight          int64   `json:"BlockHeight"`
	Difficulty           float64 `json:"Difficulty"`
	Expired              uint32  `json:"Expired"`
	Immature             uint32  `json:"Immature"`
	Live                 uint32  `json:"Live"`
	Missed               uint32  `json:"Missed"`
	OwnMempoolTix        uint32  `json:"OwnMempoolTix"`
	PoolSize             uint32  `json:"PoolSize"`
	ProportionLive       float64 `json:"ProportionLive"`
	ProportionMissed     float64 `json:"ProportionMissed"`
	Revoked              uint32  `json:"Revoked"`
	TotalSubsidy         float64 `json:"TotalSubsidy"`
	Voted                uint32  `json:"Voted"`
	Network              string  `json:"Network"`
	PoolEmail            string  `json:"PoolEmail"`
	PoolFees             float64 `json:"PoolFees"`
	PoolStatus           string  `json:"PoolStatus"`
	UserCount            int64   `json:"UserCount"`
	UserCountActive      int64   `json:"UserCountActive"`
	Version              string  `json:"Version"`
}
