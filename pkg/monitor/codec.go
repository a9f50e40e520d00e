package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

// CodecVersion is the envelope version written by the Encode functions
const CodecVersion = 1

// ErrUnsupportedVersion is returned when stored data was written by a newer codec
var ErrUnsupportedVersion = errors.New("unsupported codec version")

type envelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

// EncodeIssues serializes issues for storage
func EncodeIssues(issues []validate.Issue) (string, error) {
	if issues == nil {
		issues = []validate.Issue{}
	}
	return encode(issues)
}

// DecodeIssues reads issues written by EncodeIssues or stored as a bare
// JSON array. An empty string decodes to an empty list.
func DecodeIssues(s string) ([]validate.Issue, error) {
	issues := make([]validate.Issue, 0)
	if err := decode(s, &issues); err != nil {
		return nil, fmt.Errorf("failed to decode issues: %w", err)
	}
	if issues == nil {
		issues = make([]validate.Issue, 0)
	}
	return issues, nil
}

// EncodeSnapshot serializes a snapshot. Nil encodes to an empty string.
func EncodeSnapshot(s *opengraph.Snapshot) (string, error) {
	if s == nil {
		return "", nil
	}
	return encode(s)
}

// DecodeSnapshot is the inverse of EncodeSnapshot and also accepts bare JSON
func DecodeSnapshot(s string) (*opengraph.Snapshot, error) {
	if isEmpty(s) {
		return nil, nil
	}
	var snapshot opengraph.Snapshot
	if err := decode(s, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// EncodeMeta serializes the full metadata of a check. Nil encodes to an
// empty string.
func EncodeMeta(m *opengraph.MetaData) (string, error) {
	if m == nil {
		return "", nil
	}
	return encode(m)
}

// DecodeMeta is the inverse of EncodeMeta and also accepts bare JSON
func DecodeMeta(s string) (*opengraph.MetaData, error) {
	if isEmpty(s) {
		return nil, nil
	}
	var meta opengraph.MetaData
	if err := decode(s, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &meta, nil
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(envelope{V: CodecVersion, Data: data})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// decode unwraps the version envelope. Objects without a "v" key and arrays
// are legacy rows written before the envelope existed.
func decode(s string, v any) error {
	raw := bytes.TrimSpace([]byte(s))
	if isEmpty(s) {
		return nil
	}

	if raw[0] == '{' {
		var probe struct {
			V    *int            `json:"v"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return err
		}
		if probe.V != nil {
			if *probe.V < 1 || *probe.V > CodecVersion {
				return fmt.Errorf("%w: %d", ErrUnsupportedVersion, *probe.V)
			}
			if len(probe.Data) == 0 {
				return nil
			}
			raw = probe.Data
		}
	}

	return json.Unmarshal(raw, v)
}

func isEmpty(s string) bool {
	trimmed := bytes.TrimSpace([]byte(s))
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
