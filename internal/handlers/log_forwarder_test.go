package handlers

import (
	"encoding/json"
	"testing"
	"time"

	plog "github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
)

func TestLogForwarder_BroadcastsFilteredLines(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewNoOpLogger(), nil)
	conn := dial(t, startWebSocketServer(t, handler))
	readMessage(t, conn, 2*time.Second) // hello

	forwarder := NewLogForwarder(handler, arbor.NewNoOpLogger(), &common.WebSocketConfig{
		MinLevel:        "info",
		ExcludePatterns: []string{"WebSocket client"},
	})
	forwarder.Start()
	t.Cleanup(func() { forwarder.Close() })

	at := time.Date(2024, 10, 19, 9, 30, 0, 0, time.UTC)
	forwarder.Channel() <- []arbormodels.LogEvent{
		{Level: plog.DebugLevel, Message: "Step delay elapsed", Timestamp: at, CorrelationID: "job-1"},
		{Level: plog.InfoLevel, Message: "WebSocket client connected", Timestamp: at},
		{Level: plog.InfoLevel, Message: "Campaign analysis started", Timestamp: at, CorrelationID: "job-1"},
		{Level: plog.ErrorLevel, Message: "Agent job failed", Timestamp: at, CorrelationID: "job-1"},
	}

	first := readMessage(t, conn, 2*time.Second)
	assert.Equal(t, MessageTypeLog, first.Type)
	var line LogLine
	require.NoError(t, json.Unmarshal(first.Payload, &line))
	assert.Equal(t, LogLine{Timestamp: "09:30:00", Level: "info", Message: "Campaign analysis started", JobID: "job-1"}, line)

	second := readMessage(t, conn, 2*time.Second)
	require.NoError(t, json.Unmarshal(second.Payload, &line))
	assert.Equal(t, "error", line.Level)
	assert.Equal(t, "Agent job failed", line.Message)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var extra wsPayload
	assert.Error(t, conn.ReadJSON(&extra), "filtered lines must not be forwarded")
}

func TestLogForwarder_Levels(t *testing.T) {
	tests := []struct {
		name  string
		level plog.Level
		want  levels.LogLevel
	}{
		{"trace folds into debug", plog.TraceLevel, levels.DebugLevel},
		{"debug", plog.DebugLevel, levels.DebugLevel},
		{"info", plog.InfoLevel, levels.InfoLevel},
		{"warn", plog.WarnLevel, levels.WarnLevel},
		{"error", plog.ErrorLevel, levels.ErrorLevel},
		{"fatal folds into error", plog.FatalLevel, levels.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, plogToArborLevel(tt.level))
		})
	}

	assert.Equal(t, levels.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, levels.InfoLevel, parseLogLevel(""))
}

func TestLogForwarder_CloseStopsDraining(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewNoOpLogger(), nil)
	forwarder := NewLogForwarder(handler, arbor.NewNoOpLogger(), nil)
	forwarder.Start()

	done := make(chan struct{})
	go func() {
		forwarder.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
