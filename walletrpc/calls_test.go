// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletrpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/decred/dcrd/chaincfg/v2"
	"github.com/decred/dcrd/dcrutil/v2"
)

// mockRPC holds the expected JSON query and response.
type mockRPC struct {
	res string
	req string
	err error
}

// Call satisfies the Caller interface.
func (m *mockRPC) Call(ctx context.Context, method string, res interface{}, args ...interface{}) error {
	// JSON format for RPC calls.
	request := struct {
		JSONRPC string        `json:"jsonrpc"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params,omitempty"`
		ID      uint32        `json:"id"`
	}{
		JSONRPC: "2.0",
		Method:  method,
		Params:  args,
		ID:      0,
	}
	b, err := json.Marshal(&request)
	if err != nil {
		return err
	}
	// Test that the parsed request is the same as expected.
	if fmt.Sprintf("%s", b) != m.req {
		return fmt.Errorf("expected request %v does not match actual %s", m.req, b)
	}
	if m.err != nil {
		return m.err
	}
	if res != nil {
		// Supply the response with the expected JSON data and ensure
		// it parses.
		if err := json.Unmarshal(json.RawMessage(m.res), res); err != nil {
			return err
		}
	}
	return nil
}

type getBestBlockTest struct {
	res    string
	req    string
	hash   string
	height int64
}

var getBestBlockTests = []getBestBlockTest{
	{
		req:    `{"jsonrpc":"2.0","method":"getbestblock","id":0}`,
		res:    `{"hash":"00000083b3316c655ffd195854739140a823f897e9478fe6d28f40766e05674f","height":287734}`,
		hash:   `00000083b3316c655ffd195854739140a823f897e9478fe6d28f40766e05674f`,
		height: 287734},
	{
		req:    `{"jsonrpc":"2.0","method":"getbestblock","id":0}`,
		res:    `{"hash":"000000000000000007018c6572e5e48a8370974d8b18f691240622d623b7c5a1","height":388973}`,
		hash:   `000000000000000007018c6572e5e48a8370974d8b18f691240622d623b7c5a1`,
		height: 388973},
}

func TestGetBestBlock(t *testing.T) {
	for _, test := range getBestBlockTests {
		m := &mockRPC{res: test.res, req: test.req}
		wallet := New(m)
		hash, height, err := wallet.GetBestBlock(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if hash.String() != test.hash || height != test.height {
			t.Fatalf("expected %v at %d, got %v at %d", test.hash,
				test.height, hash, height)
		}
	}
}

func TestGetStakeInfo(t *testing.T) {
	m := &mockRPC{
		req: `{"jsonrpc":"2.0","method":"getstakeinfo","id":0}`,
		res: `{"blockheight":288518,"difficulty":69.8477006,"totalsubsidy":149.2277124,"ownmempooltix":0,"immature":0,"unspent":0,"voted":283,"revoked":5,"unspentexpired":0,"poolsize":4551,"allmempooltix":19,"missed":5,"proportionmissed":0.017361111111111112}`,
	}
	info, err := New(m).GetStakeInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.Difficulty != 69.8477006 || info.Voted != 283 {
		t.Fatalf("unexpected stake info %+v", info)
	}
}

func TestGetVoteChoices(t *testing.T) {
	m := &mockRPC{
		req: `{"jsonrpc":"2.0","method":"getvotechoices","id":0}`,
		res: `{"version":7,"choices":[{"agendaid":"fixlnseqlocks","agendadescription":"Modify sequence lock handling as defined in DCP0004","choiceid":"yes","choicedescription":"change to the new consensus rules"}]}`,
	}
	res, err := New(m).GetVoteChoices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Version != 7 || len(res.Choices) != 1 ||
		res.Choices[0].AgendaID != "fixlnseqlocks" || res.Choices[0].ChoiceID != "yes" {
		t.Fatalf("unexpected vote choices %+v", res)
	}
}

type importScriptTest struct {
	res      string
	req      string
	script   string
	rescan   bool
	scanFrom int
}

var importScriptTests = []importScriptTest{
	{
		req:      `{"jsonrpc":"2.0","method":"importscript","params":["5121032c4c0ec5caf4e2ae7df7d6d69757b549ba7c3c3f415d4768fb4e4ef27776cc2a2102325ee7f7b05557eee48d7663f3fe25a77f5343f22e9b0c70af65c70ba508114e52ae",true,5000],"id":0}`,
		res:      `null`,
		script:   `5121032c4c0ec5caf4e2ae7df7d6d69757b549ba7c3c3f415d4768fb4e4ef27776cc2a2102325ee7f7b05557eee48d7663f3fe25a77f5343f22e9b0c70af65c70ba508114e52ae`,
		rescan:   true,
		scanFrom: 5000},
	{
		req:      `{"jsonrpc":"2.0","method":"importscript","params":["51210214cdefce5e10a6ea0b9affdb0f55c37697e29c469fbd6ed16b2da654c14d1abd210256ff67a3f4e78c02e727211fd27dba451fdad9440fe651695dfef0678b3b882a52ae",false,0],"id":0}`,
		res:      `null`,
		script:   `51210214cdefce5e10a6ea0b9affdb0f55c37697e29c469fbd6ed16b2da654c14d1abd210256ff67a3f4e78c02e727211fd27dba451fdad9440fe651695dfef0678b3b882a52ae`,
		rescan:   false,
		scanFrom: 0},
}

func TestImportScriptRescanFrom(t *testing.T) {
	for _, test := range importScriptTests {
		m := &mockRPC{res: test.res, req: test.req}
		script, err := hex.DecodeString(test.script)
		if err != nil {
			t.Fatal(err)
		}
		err = New(m).ImportScriptRescanFrom(context.Background(), script,
			test.rescan, test.scanFrom)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestListScripts(t *testing.T) {
	m := &mockRPC{
		req: `{"jsonrpc":"2.0","method":"listscripts","id":0}`,
		res: `{"scripts":[{"hash160":"0201168337ea07885159f7cca5963639bdf6a04a","address":"TcXhQhWxCMP6kKufyxRGNuGTArNNaBA4PUB","redeemscript":"512103efae5ad4236405f666e007dea108642a30457c82c28daec69968fba499258c392102b8318f22d12f9ec90bf3ce92574a28d143c8e18300aba0a41594268913fddf9a52ae"}]}`,
	}
	scripts, err := New(m).ListScripts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := "512103efae5ad4236405f666e007dea108642a30457c82c28daec69968fba499258c392102b8318f22d12f9ec90bf3ce92574a28d143c8e18300aba0a41594268913fddf9a52ae"
	if len(scripts) != 1 || hex.EncodeToString(scripts[0]) != want {
		t.Fatalf("unexpected scripts %x", scripts)
	}
}

func TestPurchaseTicket(t *testing.T) {
	m := &mockRPC{
		req: `{"jsonrpc":"2.0","method":"purchaseticket","params":["default",69.8477006,2,"TcgL31UCVaL6ikPQXfVsS1enJrMMXJsLvgk",2,"Tsejf7AUnDMGEawzDnQkTmLvYzgb45CyX6y",2.5,288534,"",0.001],"id":0}`,
		res: `["00000083b3316c655ffd195854739140a823f897e9478fe6d28f40766e05674f","000000000000000007018c6572e5e48a8370974d8b18f691240622d623b7c5a1"]`,
	}
	hashes, err := New(m).PurchaseTicket(context.Background(), &PurchaseTicketCmd{
		FromAccount:   "default",
		SpendLimit:    6984770060,
		MinConf:       2,
		TicketAddress: "TcgL31UCVaL6ikPQXfVsS1enJrMMXJsLvgk",
		NumTickets:    2,
		PoolAddress:   "Tsejf7AUnDMGEawzDnQkTmLvYzgb45CyX6y",
		PoolFees:      2.5,
		Expiry:        288534,
		TicketFee:     1e5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 2 ||
		hashes[0].String() != "00000083b3316c655ffd195854739140a823f897e9478fe6d28f40766e05674f" ||
		hashes[1].String() != "000000000000000007018c6572e5e48a8370974d8b18f691240622d623b7c5a1" {
		t.Fatalf("unexpected hashes %v", hashes)
	}
}

func TestSetTxFee(t *testing.T) {
	m := &mockRPC{
		req: `{"jsonrpc":"2.0","method":"settxfee","params":[0.0002],"id":0}`,
		res: `true`,
	}
	if err := New(m).SetTxFee(context.Background(), 2e4); err != nil {
		t.Fatal(err)
	}
}

func TestSetVoteChoice(t *testing.T) {
	m := &mockRPC{
		req: `{"jsonrpc":"2.0","method":"setvotechoice","params":["headercommitments","no"],"id":0}`,
		res: `null`,
	}
	if err := New(m).SetVoteChoice(context.Background(), "headercommitments", "no"); err != nil {
		t.Fatal(err)
	}
}

type validateAddressTest struct {
	res           string
	req           string
	address       string
	pubKeyAddress string
}

var validateAddressTests = []validateAddressTest{
	{
		req:           `{"jsonrpc":"2.0","method":"validateaddress","params":["Tsejf7AUnDMGEawzDnQkTmLvYzgb45CyX6y"],"id":0}`,
		res:           `{"isvalid":true,"address":"Tsejf7AUnDMGEawzDnQkTmLvYzgb45CyX6y","ismine":true,"pubkeyaddr":"TkKkopSgMBfzoozzbNjcxp3wrc2jEWC8MyMty3tQXFMXHR5CuzNJt","pubkey":"0221d306bbc717dd26d47623e7eeae5c04ef64bdc06fa77c96be46f6a82e6ccea0","iscompressed":true,"account":"default"}`,
		address:       `Tsejf7AUnDMGEawzDnQkTmLvYzgb45CyX6y`,
		pubKeyAddress: `TkKkopSgMBfzoozzbNjcxp3wrc2jEWC8MyMty3tQXFMXHR5CuzNJt`},
	{
		req:           `{"jsonrpc":"2.0","method":"validateaddress","params":["TskauEiTUQYVZnN6debqguaJSd4oPwbRcnA"],"id":0}`,
		res:           `{"isvalid":true,"address":"TskauEiTUQYVZnN6debqguaJSd4oPwbRcnA","ismine":true,"pubkeyaddr":"TkKkjjFkVHd1oBwzhnVBvJQoJ266mXaL3Rc1BZMCdPBbqx9CYKiiN","pubkey":"021889e90c6c1e76eb0c9a534a7de61b1aa1e349b57fdf213fc03ddc476a0e01df","iscompressed":true,"account":"default"}`,
		address:       `TskauEiTUQYVZnN6debqguaJSd4oPwbRcnA`,
		pubKeyAddress: `TkKkjjFkVHd1oBwzhnVBvJQoJ266mXaL3Rc1BZMCdPBbqx9CYKiiN`},
}

func TestValidateAddress(t *testing.T) {
	for _, test := range validateAddressTests {
		addr, err := dcrutil.DecodeAddress(test.address, chaincfg.TestNet3Params())
		if err != nil {
			t.Fatal(err)
		}
		m := &mockRPC{res: test.res, req: test.req}
		validated, err := New(m).ValidateAddress(context.Background(), addr)
		if err != nil {
			t.Fatal(err)
		}
		if validated.PubKeyAddr != test.pubKeyAddress {
			t.Fatalf("expected pubkey address %v does not match actual %v",
				test.pubKeyAddress, validated.PubKeyAddr)
		}
	}
}

type versionTest struct {
	res string
	req string
	ver string
}

var versionTests = []versionTest{
	{
		req: `{"jsonrpc":"2.0","method":"version","id":0}`,
		res: `{"dcrd":{"versionstring":"1.5.0-pre+dev","major":1,"minor":5,"patch":0,"prerelease":"pre","buildmetadata":"dev.go1-12-7"},"dcrdjsonrpcapi":{"versionstring":"6.1.0","major":6,"minor":1,"patch":0,"prerelease":"","buildmetadata":""},"dcrwalletjsonrpcapi":{"versionstring":"6.2.0","major":6,"minor":2,"patch":0,"prerelease":"","buildmetadata":""}}`,
		ver: `6.2.0`},
	{
		req: `{"jsonrpc":"2.0","method":"version","id":0}`,
		res: `{"dcrd":{"versionstring":"1.5.0-pre+dev","major":1,"minor":5,"patch":0,"prerelease":"pre","buildmetadata":"dev.go1-12-7"},"dcrdjsonrpcapi":{"versionstring":"6.1.0","major":6,"minor":1,"patch":0,"prerelease":"","buildmetadata":""},"dcrwalletjsonrpcapi":{"versionstring":"6.2.1","major":6,"minor":2,"patch":1,"prerelease":"","buildmetadata":""}}`,
		ver: `6.2.1`},
}

func TestVersion(t *testing.T) {
	for _, test := range versionTests {
		m := &mockRPC{res: test.res, req: test.req}
		rpc := New(m)
		ver, err := rpc.Version(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		v := ver["dcrwalletjsonrpcapi"]
		vStr := fmt.Sprintf("%v.%v.%v", v.Major, v.Minor, v.Patch)
		if vStr != test.ver {
			t.Fatalf("expected version %v does not match actual %v", test.ver, vStr)
		}
		if err := checkVersion(context.Background(), rpc); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSemverCompatible(t *testing.T) {
	tests := []struct {
		required, actual semver
		want             bool
	}{
		{semver{6, 0, 0}, semver{6, 0, 0}, true},
		{semver{6, 0, 0}, semver{6, 2, 1}, true},
		{semver{6, 1, 2}, semver{6, 1, 1}, false},
		{semver{6, 1, 0}, semver{6, 0, 9}, false},
		{semver{6, 0, 0}, semver{5, 9, 9}, false},
		{semver{6, 0, 0}, semver{7, 0, 0}, false},
	}
	for _, test := range tests {
		if got := semverCompatible(test.required, test.actual); got != test.want {
			t.Errorf("semverCompatible(%v, %v) = %v, want %v", test.required,
				test.actual, got, test.want)
		}
	}
}
