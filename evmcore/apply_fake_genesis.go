// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package evmcore runs Load blocks on the go-ethereum execution stack.
// This file handles fake genesis creation for testing and development.

package evmcore

import (
	"crypto/ecdsa"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"

	"github.com/rony4d/go-load/load"
	"github.com/rony4d/go-load/load/genesis"
)

// FakeGenesisTime is the default timestamp of fake genesis blocks
// (December 22, 2020).
const FakeGenesisTime uint64 = 1608600000

// FakeBalance is what every fake account starts with: one million LOAD.
var FakeBalance = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(params.Ether))

// FakeGenesis returns the dev genesis with the first n fake keys funded.
//
// The result passes the Load genesis guardrails, so it can be handed to
// load.Derive and then to NewBackend for a self-contained test chain.
//
// Example:
//
//	g := FakeGenesis(3)
//	p, _ := load.Derive("fake", g)
//	b, _ := NewBackend(p, log)
func FakeGenesis(n int) *core.Genesis {
	g := genesis.Dev()
	g.Timestamp = FakeGenesisTime
	g.Alloc = ApplyFakeBalances(g.Alloc, n)
	return g
}

// ApplyFakeBalances credits FakeBalance to FakeKey(0..n-1) in alloc and
// returns it. A nil alloc is created.
func ApplyFakeBalances(alloc types.GenesisAlloc, n int) types.GenesisAlloc {
	if alloc == nil {
		alloc = make(types.GenesisAlloc, n)
	}
	for i := 0; i < n; i++ {
		addr := crypto.PubkeyToAddress(FakeKey(i).PublicKey)
		alloc[addr] = types.Account{Balance: new(big.Int).Set(FakeBalance)}
	}
	return alloc
}

// MustFakeParams derives parameters from FakeGenesis and panics on failure.
// It is only meant for tests and local development networks.
func MustFakeParams(n int) *load.Params {
	p, err := load.Derive("fake", FakeGenesis(n))
	if err != nil {
		panic(err)
	}
	return p
}

// FakeAddress is the address of FakeKey(n).
func FakeAddress(n int) common.Address {
	return crypto.PubkeyToAddress(FakeKey(n).PublicKey)
}

// FakeKey generates a deterministic fake private key for testing purposes.
//
// Given the same input n, it always returns the same secp256k1 key. The key
// is the Keccak-256 hash of a fixed label and n.
//
// Example:
//
//	key0 := FakeKey(0)  // First fake key
//	key1 := FakeKey(1)  // Second fake key (different from key0)
//	key0Again := FakeKey(0)  // Same as key0 (deterministic)
func FakeKey(n int) *ecdsa.PrivateKey {
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(n))

	key, err := crypto.ToECDSA(crypto.Keccak256([]byte("load fake key"), seed[:]))
	if err != nil {
		panic(err)
	}

	return key
}
