package fl

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
}

// MarshalParameters encodes p as deterministic CBOR.
func MarshalParameters(p Parameters) ([]byte, error) {
	data, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	return data, nil
}

func UnmarshalParameters(data []byte) (Parameters, error) {
	var p Parameters
	if err := cbor.Unmarshal(data, &p); err != nil {
		return Parameters{}, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}

	return p, nil
}

// MarshalCheckpoint encodes c as deterministic CBOR.
func MarshalCheckpoint(c Checkpoint) ([]byte, error) {
	data, err := encMode.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	return data, nil
}

func UnmarshalCheckpoint(data []byte) (Checkpoint, error) {
	var c Checkpoint
	if err := cbor.Unmarshal(data, &c); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if err := c.Parameters.Validate(); err != nil {
		return Checkpoint{}, err
	}

	return c, nil
}
