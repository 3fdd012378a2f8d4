package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

// Codec builds outbound envelopes and classifies inbound payloads.
type Codec struct {
	newID func() string
}

// NewCodec creates a codec that assigns uuid request ids
func NewCodec() *Codec {
	return &Codec{newID: func() string { return uuid.New().String() }}
}

// EncodeRequest serializes a request for method with a fresh id
func (c *Codec) EncodeRequest(method string, params any) (string, []byte, error) {
	id := c.newID()
	data, err := json.Marshal(models.RequestEnvelope{
		JSONRPC: models.JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	return id, data, nil
}

// EncodeNotification serializes a message that expects no response
func (c *Codec) EncodeNotification(method string, params any) ([]byte, error) {
	data, err := json.Marshal(models.NotificationEnvelope{
		JSONRPC: models.JSONRPCVersion,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s notification: %w", method, err)
	}
	return data, nil
}

// EncodeResponse serializes a successful response to request id
func (c *Codec) EncodeResponse(id string, result any) ([]byte, error) {
	if result == nil {
		result = json.RawMessage("null")
	}
	return json.Marshal(models.ResponseEnvelope{
		JSONRPC: models.JSONRPCVersion,
		ID:      id,
		Result:  result,
	})
}

// EncodeError serializes an error response to request id
func (c *Codec) EncodeError(id string, rpcErr *models.JSONRPCError) ([]byte, error) {
	return json.Marshal(models.ResponseEnvelope{
		JSONRPC: models.JSONRPCVersion,
		ID:      id,
		Error:   rpcErr,
	})
}

type wireMessage struct {
	JSONRPC *string         `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// Decode classifies one inbound payload. Any payload whose version tag is
// missing or unsupported fails with a ProtocolValidationError.
func (c *Codec) Decode(data []byte) (*models.Envelope, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, models.NewProtocolValidationError(data, err)
	}
	if msg.JSONRPC == nil || *msg.JSONRPC != models.JSONRPCVersion {
		return nil, models.NewProtocolValidationError(data, nil)
	}

	id, err := decodeID(msg.ID)
	if err != nil {
		return nil, models.NewProtocolValidationError(data, err)
	}

	env := &models.Envelope{
		ID:     id,
		Method: msg.Method,
		Params: msg.Params,
	}

	switch {
	case id != "" && isPresent(msg.Error):
		var rpcErr models.JSONRPCError
		if err := json.Unmarshal(msg.Error, &rpcErr); err != nil {
			return nil, models.NewProtocolValidationError(data, err)
		}
		env.Kind = models.KindErrorResponse
		env.Error = &rpcErr
	case id != "" && msg.Method != "" && msg.Result == nil:
		env.Kind = models.KindRequest
	case id != "":
		env.Kind = models.KindResponse
		env.Result = msg.Result
	case msg.Method != "":
		env.Kind = models.KindNotification
	default:
		return nil, models.NewProtocolValidationError(data, nil)
	}

	return env, nil
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeID accepts string and numeric ids; absent and null ids decode to "".
func decodeID(raw json.RawMessage) (string, error) {
	if !isPresent(raw) {
		return "", nil
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", err
		}
		return id, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("unsupported id %s", string(raw))
	}
	return n.String(), nil
}
