package gatewayhttp

import (
	"encoding/json"
	"fmt"

	"sessiongate/internal/protocol"
)

// decodeRequest parses the `request` form field: a JSON array of message
// arrays, `[[type, arg, arg, ...], ...]`, where type is numeric and every
// arg is a string.
func decodeRequest(data []byte) ([]protocol.Message, error) {
	var arr [][]interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("gatewayhttp: decode request: %w", err)
	}

	msgs := make([]protocol.Message, 0, len(arr))
	for _, item := range arr {
		if len(item) == 0 {
			continue
		}
		typeNum, ok := item[0].(float64)
		if !ok {
			return nil, fmt.Errorf("gatewayhttp: message type must be numeric")
		}
		m := protocol.Message{Type: protocol.Type(byte(typeNum))}
		for _, a := range item[1:] {
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("gatewayhttp: message argument must be a string")
			}
			m.Args = append(m.Args, []byte(s))
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// encodeResponse renders messages in the same `[type, arg, arg, ...]`
// shape the request decoder accepts.
func encodeResponse(msgs []protocol.Message) ([]byte, error) {
	arr := make([][]interface{}, 0, len(msgs))
	for _, m := range msgs {
		item := make([]interface{}, 0, len(m.Args)+1)
		item = append(item, int(m.Type))
		for _, a := range m.Args {
			item = append(item, string(a))
		}
		arr = append(arr, item)
	}
	return json.Marshal(arr)
}
