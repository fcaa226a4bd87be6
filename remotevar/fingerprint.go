// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remotevar

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint is a BLAKE3 keyed digest of one serialized variable.
type Fingerprint [32]byte

// fingerprintKey separates variable fingerprints from any other
// BLAKE3 use. ASCII, zero-padded to the 32 bytes NewKeyed requires.
var fingerprintKey = [32]byte{
	'r', 'o', 'o', 'm', 's', 'y', 'n', 'c', '.', 'r', 'e', 'm', 'o', 't', 'e', 'v',
	'a', 'r', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// FingerprintOf digests key and object. Each field is length-prefixed
// so no two distinct inputs share an encoding.
func FingerprintOf(key string, object DataObject) Fingerprint {
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("remotevar: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var length [binary.MaxVarintLen64]byte
	for _, field := range []string{key, object.Value} {
		n := binary.PutUvarint(length[:], uint64(len(field)))
		hasher.Write(length[:n])
		hasher.Write([]byte(field))
	}
	hasher.Write([]byte{byte(object.Visibility), byte(object.Index)})

	var fingerprint Fingerprint
	copy(fingerprint[:], hasher.Sum(nil))
	return fingerprint
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}
