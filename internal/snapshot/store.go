// Package snapshot implements content-addressed storage of decision input
// snapshots. Every backend shares the same contract: Put is write-once and
// idempotent, and Get re-hashes the bytes it actually read and fails closed
// when they do not match the requested address.
package snapshot

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tradelab/draudit/internal/integrity"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
)

// HashField is the member name under which producers sometimes carry a
// snapshot's own address. It is never part of the hashed payload.
const HashField = "content_hash"

// Store is the content-addressed snapshot storage contract.
type Store interface {
	// Put persists payload and returns its content hash. Storing a payload
	// that already exists is a no-op returning the same hash.
	Put(ctx context.Context, payload jsonutil.Value) (model.HashValue, error)
	// Get returns the payload stored at hash, failing with ErrNotFound,
	// ErrHashMismatch or ErrEncoding.
	Get(ctx context.Context, hash model.HashValue) (jsonutil.Value, error)
	// Exists reports whether a payload is stored at hash.
	Exists(ctx context.Context, hash model.HashValue) (bool, error)
	// List returns all stored addresses in ascending order.
	List(ctx context.Context) ([]model.HashValue, error)
}

// Encode strips any embedded HashField, canonicalizes the payload and
// returns the canonical bytes with their address.
func Encode(payload jsonutil.Value) ([]byte, model.HashValue, error) {
	if payload.Kind() == jsonutil.KindObject {
		payload = payload.Without(HashField)
	}
	data, err := jsonutil.Canonicalize(payload)
	if err != nil {
		return nil, "", fmt.Errorf("encode snapshot: %w", err)
	}
	return data, integrity.HashBytes(data), nil
}

// Decode is the read-side integrity check shared by all backends. The hash
// is computed over data exactly as read and is never skipped.
func Decode(want model.HashValue, data []byte) (jsonutil.Value, error) {
	if got := integrity.HashBytes(data); got != want {
		return jsonutil.Value{}, errclass.ErrHashMismatch.WithMessagef(
			"snapshot %s: stored content hashes to %s", want, got)
	}
	v, err := jsonutil.Parse(data)
	if err != nil {
		return jsonutil.Value{}, fmt.Errorf("snapshot %s: %w", want, err)
	}
	canon, err := jsonutil.Canonicalize(v)
	if err != nil {
		return jsonutil.Value{}, fmt.Errorf("snapshot %s: %w", want, err)
	}
	if !bytes.Equal(canon, data) {
		return jsonutil.Value{}, errclass.ErrEncoding.WithMessagef("snapshot %s is not in canonical form", want)
	}
	if _, embedded := v.Get(HashField); embedded {
		return jsonutil.Value{}, errclass.ErrEncoding.WithMessagef("snapshot %s embeds %q", want, HashField)
	}
	return v, nil
}

func checkAddress(hash model.HashValue) error {
	if !hash.Valid() {
		return errclass.ErrNotFound.WithMessagef("malformed snapshot address %q", hash)
	}
	return nil
}
