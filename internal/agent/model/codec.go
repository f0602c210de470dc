package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalState decodes a checkpointed state. Numbers are kept as json.Number so
// result cells round-trip exactly.
func UnmarshalState(data []byte) (*PipelineState, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	s := NewPipelineState("")
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("decode pipeline state: %w", err)
	}
	if s.SchemaVersion != StateSchemaVersion {
		return nil, fmt.Errorf("unsupported pipeline state schema version %d", s.SchemaVersion)
	}
	if s.DomainTermMappings == nil {
		s.DomainTermMappings = map[string]DomainTerm{}
	}
	return s, nil
}
