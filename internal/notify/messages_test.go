package notify_test

import (
	"encoding/json"
	"testing"

	"sloppy/internal/notify"
)

func TestDecodeValidatesMessages(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		inbound bool
	}{
		{"join", `{"type":"join_channel","channel_id":"j1"}`, false, true},
		{"leave", `{"type":"leave_channel","channel_id":"j1"}`, false, true},
		{"join missing channel", `{"type":"join_channel"}`, true, false},
		{"unknown type", `{"type":"task_update","channel_id":"j1"}`, true, false},
		{"garbage", `{"type":`, true, false},
		{"outcome", `{"type":"job_outcome","job_id":"j1","status":"failed","error":"renderer timeout"}`, false, false},
		{"outcome bad status", `{"type":"job_outcome","job_id":"j1","status":"running"}`, true, false},
		{"completed with error", `{"type":"job_outcome","job_id":"j1","status":"completed","error":"x"}`, true, false},
		{"ack", `{"type":"connection_ack","connection_id":"c1"}`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := notify.Decode([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && msg.Inbound() != tt.inbound {
				t.Fatalf("Inbound = %v, want %v", msg.Inbound(), tt.inbound)
			}
		})
	}
}

func TestJobOutcomeWireShape(t *testing.T) {
	data, err := json.Marshal(notify.JobOutcome("j2", "item-1", false, "renderer timeout"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"job_outcome","job_id":"j2","item_id":"item-1","status":"failed","error":"renderer timeout"}`
	if string(data) != want {
		t.Fatalf("unexpected wire form:\n got %s\nwant %s", data, want)
	}

	ok := notify.JobOutcome("j1", "item-1", true, "ignored")
	if ok.Error != "" || ok.Status != notify.StatusCompleted {
		t.Fatalf("completed outcome must not carry error: %+v", ok)
	}
}
