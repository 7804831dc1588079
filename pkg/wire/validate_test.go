package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodePayload(t *testing.T) {
	var p JoinRoomPayload
	raw := json.RawMessage(`{"roomId":"ab12cd34","playerName":"Bob","preferredColor":"black"}`)
	if err := DecodePayload(raw, &p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.RoomID != "ab12cd34" || p.PreferredColor != "black" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecodePayloadRejectsMissingRequired(t *testing.T) {
	var p LeaveRoomPayload
	if err := DecodePayload(json.RawMessage(`{}`), &p); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	// an absent payload validates against the zero value and still fails
	var q ResignPayload
	if err := DecodePayload(nil, &q); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty payload, got %v", err)
	}
}

func TestDecodePayloadRejectsBadEnum(t *testing.T) {
	var p CreateRoomPayload
	raw := json.RawMessage(`{"preferredColor":"green"}`)
	if err := DecodePayload(raw, &p); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	// empty preference is fine, the server picks
	p = CreateRoomPayload{}
	if err := DecodePayload(json.RawMessage(`{}`), &p); err != nil {
		t.Fatalf("empty create payload must validate: %v", err)
	}
}

func TestDecodePayloadRejectsBadMove(t *testing.T) {
	var p PlayMovePayload
	cases := []string{
		`{"roomId":"r1","move":{"from":"e2"}}`,
		`{"roomId":"r1","move":{"from":"e22","to":"e4"}}`,
		`{"roomId":"r1","move":{"from":"e7","to":"e8","promotion":"k"}}`,
		`{"move":{"from":"e2","to":"e4"}}`,
	}
	for _, c := range cases {
		p = PlayMovePayload{}
		if err := DecodePayload(json.RawMessage(c), &p); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %s, got %v", c, err)
		}
	}
	p = PlayMovePayload{}
	ok := `{"roomId":"r1","move":{"from":"e7","to":"e8","promotion":"q"}}`
	if err := DecodePayload(json.RawMessage(ok), &p); err != nil {
		t.Fatalf("promotion move must validate: %v", err)
	}
}

func TestDecodePayloadRejectsMalformedJSON(t *testing.T) {
	var p JoinRoomPayload
	if err := DecodePayload(json.RawMessage(`{"roomId":`), &p); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
