// Package watch is a terminal subscriber for the NEXUS websocket stream.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"nexus-sim/internal/broadcast"
	"nexus-sim/internal/logging"
)

// ErrUnknownMessage is returned by Decode for an unrecognised type.
var ErrUnknownMessage = errors.New("unknown message type")

// Decode parses one outbound message into its broadcast type.
func Decode(data []byte) (broadcast.Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	var (
		msg broadcast.Message
		err error
	)
	switch envelope.Type {
	case broadcast.TypeConnectionAck:
		var m broadcast.ConnectionAck
		err = json.Unmarshal(data, &m)
		msg = m
	case broadcast.TypeStateUpdate:
		var m broadcast.StateUpdate
		err = json.Unmarshal(data, &m)
		msg = m
	case broadcast.TypeAlert:
		var m broadcast.Alert
		err = json.Unmarshal(data, &m)
		msg = m
	case broadcast.TypeRemediationResult:
		var m broadcast.RemediationResult
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, envelope.Type)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Subscribe connects to url and hands every decoded message to handle until
// ctx is cancelled or the server goes away. Keepalive pings are answered.
func Subscribe(ctx context.Context, url string, handle func(broadcast.Message)) error {
	log := logging.FromContext(ctx)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	})
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if string(data) == broadcast.PingText {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(broadcast.PongText)); err != nil {
				return err
			}
			continue
		}
		if string(data) == broadcast.PongText {
			continue
		}
		msg, err := Decode(data)
		if err != nil {
			log.Warn("skipping undecodable message", "err", err)
			continue
		}
		handle(msg)
	}
}
