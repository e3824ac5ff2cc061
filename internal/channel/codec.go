package channel

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes a message for a byte-oriented transport.
func Encode(msg Message) ([]byte, error) {
	if err := check(msg); err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("encode channel message: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode channel message: %w", err)
	}
	if err := check(msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func check(msg Message) error {
	switch msg.Type {
	case KindUploadRequest:
		if msg.Success != nil || msg.Failure != nil {
			return fmt.Errorf("upload request carries a response body")
		}
	case KindUploadSuccess:
		if msg.Success == nil || msg.Request != nil || msg.Failure != nil {
			return fmt.Errorf("malformed upload success")
		}
	case KindUploadFailure:
		if msg.Failure == nil || msg.Request != nil || msg.Success != nil {
			return fmt.Errorf("malformed upload failure")
		}
	default:
		return fmt.Errorf("unknown channel message type %q", msg.Type)
	}
	return nil
}
