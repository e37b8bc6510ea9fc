package ipc

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"secure-tunnel/internal/core"
)

// Event is one relay message: a name from core.RelayEvent* and a string payload.
type Event struct {
	Name    string
	Payload string
}

func (e Event) toStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"event":   structpb.NewStringValue(e.Name),
		"payload": structpb.NewStringValue(e.Payload),
	}}
}

func eventFromStruct(s *structpb.Struct) (Event, error) {
	name := s.GetFields()["event"].GetStringValue()
	if name == "" {
		return Event{}, fmt.Errorf("relay event without name")
	}
	return Event{Name: name, Payload: s.GetFields()["payload"].GetStringValue()}, nil
}

// relayEvent maps a bus event to its relay form. ok is false for events not relayed.
func relayEvent(e core.Event) (ev Event, ok bool) {
	switch e.Type {
	case core.EventMessage:
		if p, isMsg := e.Payload.(core.MessagePayload); isMsg {
			return Event{Name: core.RelayEventMessage, Payload: p.Text}, true
		}
	case core.EventBackendInfo:
		if p, isMsg := e.Payload.(core.MessagePayload); isMsg {
			return Event{Name: core.RelayEventBackendInfo, Payload: p.Text}, true
		}
	case core.EventStateChanged:
		if p, isState := e.Payload.(core.StatePayload); isState {
			return Event{Name: core.RelayEventState, Payload: p.NewState.String()}, true
		}
	}
	return Event{}, false
}
