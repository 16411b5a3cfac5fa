package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Errors from spec.md §7 "Protocol errors".
var (
	ErrUnknownFrame     = errors.New("protocol: unrecognised control message tag")
	ErrMalformedPayload = errors.New("protocol: malformed control message payload")
)

// Codec turns tagged control messages into wire frames and back. It is
// treated as an external collaborator in spec.md §1; jsonCodec below is
// this module's default implementation.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(frame []byte) (any, error)
}

// envelope is the on-wire wrapper: a type tag plus the tagged payload.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JSONCodec is the default Codec implementation.
type JSONCodec struct{}

// NewJSONCodec constructs the default codec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

func (JSONCodec) Encode(v any) ([]byte, error) {
	tag, err := tagOf(v)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return json.Marshal(envelope{Type: tag, Payload: payload})
}

func (JSONCodec) Decode(frame []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	target, err := zeroValueFor(env.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return derefValue(target), nil
}

func tagOf(v any) (string, error) {
	switch v.(type) {
	case BroadcastMessage, *BroadcastMessage:
		return TagBroadcastMessage, nil
	case UnicastMessage, *UnicastMessage:
		return TagUnicastMessage, nil
	case SubscribeRequest, *SubscribeRequest:
		return TagSubscribeRequest, nil
	case UnsubscribeRequest, *UnsubscribeRequest:
		return TagUnsubscribeRequest, nil
	case ResendLastRequest, *ResendLastRequest:
		return TagResendLastRequest, nil
	case ResendFromRequest, *ResendFromRequest:
		return TagResendFromRequest, nil
	case ResendRangeRequest, *ResendRangeRequest:
		return TagResendRangeRequest, nil
	case ResendResponseResending, *ResendResponseResending:
		return TagResendResponseResending, nil
	case ResendResponseResent, *ResendResponseResent:
		return TagResendResponseResent, nil
	case ResendResponseNoResend, *ResendResponseNoResend:
		return TagResendResponseNoResend, nil
	case StatusMessage, *StatusMessage:
		return TagStatusMessage, nil
	case InstructionMessage, *InstructionMessage:
		return TagInstructionMessage, nil
	case StorageNodesRequest, *StorageNodesRequest:
		return TagStorageNodesRequest, nil
	case StorageNodesResponse, *StorageNodesResponse:
		return TagStorageNodesResponse, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownFrame, v)
	}
}

func zeroValueFor(tag string) (any, error) {
	switch tag {
	case TagBroadcastMessage:
		return &BroadcastMessage{}, nil
	case TagUnicastMessage:
		return &UnicastMessage{}, nil
	case TagSubscribeRequest:
		return &SubscribeRequest{}, nil
	case TagUnsubscribeRequest:
		return &UnsubscribeRequest{}, nil
	case TagResendLastRequest:
		return &ResendLastRequest{}, nil
	case TagResendFromRequest:
		return &ResendFromRequest{}, nil
	case TagResendRangeRequest:
		return &ResendRangeRequest{}, nil
	case TagResendResponseResending:
		return &ResendResponseResending{}, nil
	case TagResendResponseResent:
		return &ResendResponseResent{}, nil
	case TagResendResponseNoResend:
		return &ResendResponseNoResend{}, nil
	case TagStatusMessage:
		return &StatusMessage{}, nil
	case TagInstructionMessage:
		return &InstructionMessage{}, nil
	case TagStorageNodesRequest:
		return &StorageNodesRequest{}, nil
	case TagStorageNodesResponse:
		return &StorageNodesResponse{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, tag)
	}
}

// derefValue unwraps the pointer zeroValueFor allocates so callers receive
// plain values, matching the types accepted by Encode.
func derefValue(v any) any {
	switch p := v.(type) {
	case *BroadcastMessage:
		return *p
	case *UnicastMessage:
		return *p
	case *SubscribeRequest:
		return *p
	case *UnsubscribeRequest:
		return *p
	case *ResendLastRequest:
		return *p
	case *ResendFromRequest:
		return *p
	case *ResendRangeRequest:
		return *p
	case *ResendResponseResending:
		return *p
	case *ResendResponseResent:
		return *p
	case *ResendResponseNoResend:
		return *p
	case *StatusMessage:
		return *p
	case *InstructionMessage:
		return *p
	case *StorageNodesRequest:
		return *p
	case *StorageNodesResponse:
		return *p
	default:
		return v
	}
}
