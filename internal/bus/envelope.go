package bus

import (
	"encoding/json"
	"time"
)

// inboundWire and outboundWire mirror InboundMessage/OutboundMessage but
// carry Timestamp as a string so providers can serialize ISO-8601 and
// tolerate the double-JSON-encoding some fabrics perform (they re-quote the
// payload, so decoding once yields a JSON string literal rather than an
// object).
type inboundWire struct {
	Channel   string            `json:"channel"`
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	Media     []string          `json:"media,omitempty"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type outboundWire struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to,omitempty"`
	Timestamp string `json:"timestamp"`
}

// EncodeInbound serializes an InboundMessage to the wire JSON form used by
// every provider, with Timestamp as ISO-8601.
func EncodeInbound(msg InboundMessage) ([]byte, error) {
	w := inboundWire{
		Channel:   msg.Channel,
		SenderID:  msg.SenderID,
		ChatID:    msg.ChatID,
		Content:   msg.Content,
		Media:     msg.Media,
		Timestamp: msg.Timestamp.Format(time.RFC3339),
		Metadata:  msg.Metadata,
	}
	return json.Marshal(w)
}

// DecodeInbound parses the wire JSON form, tolerating double-JSON-encoded
// payloads: if the first decode yields a JSON string rather than an object,
// it is decoded a second time.
func DecodeInbound(data []byte) (*InboundMessage, error) {
	data, err := unwrapDoubleEncoding(data)
	if err != nil {
		return nil, err
	}
	var w inboundWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	msg := InboundMessage{
		Channel:  w.Channel,
		SenderID: w.SenderID,
		ChatID:   w.ChatID,
		Content:  w.Content,
		Media:    w.Media,
		Metadata: w.Metadata,
	}
	if w.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
			msg.Timestamp = ts
		}
	}
	return &msg, nil
}

// EncodeOutbound serializes an OutboundMessage to the wire JSON form.
func EncodeOutbound(msg OutboundMessage) ([]byte, error) {
	w := outboundWire{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		Content:   msg.Content,
		ReplyTo:   msg.ReplyTo,
		Timestamp: msg.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(w)
}

// DecodeOutbound parses the wire JSON form, tolerating double-JSON-encoded
// payloads.
func DecodeOutbound(data []byte) (*OutboundMessage, error) {
	data, err := unwrapDoubleEncoding(data)
	if err != nil {
		return nil, err
	}
	var w outboundWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	msg := OutboundMessage{
		Channel: w.Channel,
		ChatID:  w.ChatID,
		Content: w.Content,
		ReplyTo: w.ReplyTo,
	}
	if w.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
			msg.Timestamp = ts
		}
	}
	return &msg, nil
}

// unwrapDoubleEncoding parses data once; if the result is still a JSON
// string literal (some fabrics re-quote the payload), it parses again.
func unwrapDoubleEncoding(data []byte) ([]byte, error) {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		return []byte(asString), nil
	}
	return data, nil
}
