// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package remotevar declares typed fields that are backed by the room
// service's key/value store.
//
// The room service stores custom data on a room and on each of its
// participants as a map from key to [DataObject]: a string value plus
// visibility (who may read it) and, for room data, an optional query
// index slot. A [Var] binds one such key to a typed [Payload] that
// knows how to parse the remote string and serialize itself back.
// Payloads are observable cells ([Value]), so UI code subscribes to the
// typed value and never sees strings.
//
// Owners declare their variables with an explicit [Schema]: a
// constructor and a function that lists the owner's variables. The
// schema validates keys once, caches the key table, and binds each
// owner instance to a [Registry] used for bulk copy-in and copy-out.
// No reflection is involved.
//
//	type Player struct {
//	    DisplayName *remotevar.Var[*remotevar.Value[string]]
//	}
//
//	var playerSchema = remotevar.MustSchema(remotevar.ScopeParticipant,
//	    func() *Player {
//	        return &Player{DisplayName: remotevar.NewParticipantVar(
//	            "DisplayName", remotevar.String(""), remotevar.Member)}
//	    },
//	    func(p *Player) []remotevar.Variable { return []remotevar.Variable{p.DisplayName} },
//	)
//
// Every payload obeys the round-trip law parse(serialize(x)) == x.
// Each variable also remembers a BLAKE3 fingerprint of the last value
// exchanged with the service, so writers can push only what changed
// ([Registry.DirtyObjects]).
package remotevar
