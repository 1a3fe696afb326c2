package protocol

import (
	"encoding/json"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestFrame_toProto(t *testing.T) {
	tests := []struct {
		name      string
		frame     Frame
		wantEvent string
		wantKind  string
	}{
		{
			name:      "string payload",
			frame:     Frame{Event: CommandJoinRoom, Data: json.RawMessage(`"conv-1"`)},
			wantEvent: "join_conversation",
			wantKind:  "string",
		},
		{
			name:      "object payload",
			frame:     Frame{Event: CommandMarkRead, Data: json.RawMessage(`{"conversationId":"c","messageIds":["m1"]}`)},
			wantEvent: "mark_read",
			wantKind:  "struct",
		},
		{
			name:      "no payload",
			frame:     Frame{Event: EventConnect},
			wantEvent: "connect",
			wantKind:  "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toProto(tt.frame)
			if err != nil {
				t.Fatalf("toProto() error = %v", err)
			}
			if ev := got.GetFields()["event"].GetStringValue(); ev != tt.wantEvent {
				t.Errorf("toProto() event = %q, want %q", ev, tt.wantEvent)
			}
			data := got.GetFields()["data"]
			var kind string
			switch data.GetKind().(type) {
			case *structpb.Value_StringValue:
				kind = "string"
			case *structpb.Value_StructValue:
				kind = "struct"
			case *structpb.Value_NullValue:
				kind = "null"
			}
			if kind != tt.wantKind {
				t.Errorf("toProto() data kind = %q, want %q", kind, tt.wantKind)
			}
		})
	}
}

func TestFrame_toProtoRejectsInvalidJSON(t *testing.T) {
	if _, err := toProto(Frame{Event: CommandSendMessage, Data: json.RawMessage(`{broken`)}); err == nil {
		t.Error("toProto() expected error for invalid payload")
	}
}

func TestFrame_fromProto(t *testing.T) {
	t.Run("object payload", func(t *testing.T) {
		data, _ := structpb.NewStruct(map[string]any{"conversationId": "c1", "messageId": "m1"})
		pbMsg := &structpb.Struct{Fields: map[string]*structpb.Value{
			"event": structpb.NewStringValue("message_deleted"),
			"data":  structpb.NewStructValue(data),
		}}

		got, err := fromProto(pbMsg)
		if err != nil {
			t.Fatalf("fromProto() error = %v", err)
		}
		if got.Event != EventMessageDeleted {
			t.Errorf("fromProto() Event = %q", got.Event)
		}
		var payload MessageDeleted
		if err := got.Bind(&payload); err != nil {
			t.Fatalf("Bind() error = %v", err)
		}
		if payload.ConversationID != "c1" || payload.MessageID != "m1" {
			t.Errorf("payload = %+v", payload)
		}
	})

	t.Run("missing event", func(t *testing.T) {
		if _, err := fromProto(&structpb.Struct{}); err == nil {
			t.Error("fromProto() expected error for missing event")
		}
	})

	t.Run("null payload", func(t *testing.T) {
		got, err := fromProto(&structpb.Struct{Fields: map[string]*structpb.Value{
			"event": structpb.NewStringValue("connect"),
			"data":  structpb.NewNullValue(),
		}})
		if err != nil {
			t.Fatalf("fromProto() error = %v", err)
		}
		if len(got.Data) != 0 {
			t.Errorf("fromProto() Data = %s, want empty", got.Data)
		}
	})
}
