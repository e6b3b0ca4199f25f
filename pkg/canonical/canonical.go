// Package canonical provides deterministic JSON serialization and SHA-256
// hashing for repro-pack manifests. Any verifier that re-serializes the same
// manifest must arrive at the same byte string, so object keys are emitted in
// code-point order and HTML escaping is disabled.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// StableStringify returns the canonical JSON representation of v.
//
// Rules:
//  1. Object keys are sorted by code-point-wise ascending comparison.
//  2. Array order is preserved.
//  3. Scalars use the standard JSON form; numbers are preserved exactly
//     when decoded as json.Number.
//  4. HTML escaping is disabled (unlike standard json.Marshal).
func StableStringify(v interface{}) (string, error) {
	// Marshal to intermediate JSON first so struct tags are respected, then
	// decode to a generic tree and re-marshal with sorted keys.
	intermediate, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}

	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return "", fmt.Errorf("canonical: intermediate decode failed: %w", err)
	}

	b, err := marshalRecursive(generic)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Hash returns the lower-case hex SHA-256 of the canonical JSON form of v.
func Hash(v interface{}) (string, error) {
	s, err := StableStringify(v)
	if err != nil {
		return "", err
	}
	return HashBytes([]byte(s)), nil
}

// LegacyHash returns the SHA-256 of the platform-default JSON serialization.
// Older packs were hashed this way before canonical serialization landed;
// verification still accepts it.
func LegacyHash(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical: legacy marshal failed: %w", err)
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hash of raw bytes and returns a hex string.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func marshalRecursive(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return []byte(t.String()), nil
	case string:
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
		// json.Encoder appends a newline; trim it.
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	case []interface{}:
		buf.Reset()
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalRecursive(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]interface{}:
		buf.Reset()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalRecursive(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := marshalRecursive(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("canonical: unsupported type %T", v)
	}
}
