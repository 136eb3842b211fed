package registry

import (
	"encoding/json"
	"testing"

	"github.com/wayfarehq/wayfare-backend/pkg/enums"
)

func TestDecoderRegistry(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventOccupancyChanged, 1, func(payload json.RawMessage) (interface{}, error) {
		var decoded map[string]string
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})

	input := json.RawMessage(`{"visit_date":"2026-07-04"}`)
	output, err := reg.Decode(enums.EventOccupancyChanged, 1, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outMap, ok := output.(map[string]string); !ok || outMap["visit_date"] != "2026-07-04" {
		t.Fatalf("unexpected output %+v", output)
	}
}
