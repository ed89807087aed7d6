package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
)

// MessageTypeLog carries one forwarded log line
const MessageTypeLog = "log"

const defaultLogBufferSize = 10

var defaultExcludePatterns = []string{
	"WebSocket client connected",
	"WebSocket client disconnected",
	"HTTP request",
}

// LogLine is the payload of a "log" message
type LogLine struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	JobID     string `json:"job_id,omitempty"`
}

// LogForwarder drains arbor log batches and pushes them to /ws clients.
// Attach it with logger.SetChannel("context", f.Channel()); loggers derived with
// WithCorrelationId then reach the feed tagged with their job id.
type LogForwarder struct {
	handler         *WebSocketHandler
	logger          arbor.ILogger
	channel         chan []arbormodels.LogEvent
	minLevel        levels.LogLevel
	excludePatterns []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLogForwarder(handler *WebSocketHandler, logger arbor.ILogger, config *common.WebSocketConfig) *LogForwarder {
	minLevel := levels.InfoLevel
	excludePatterns := defaultExcludePatterns
	if config != nil {
		minLevel = parseLogLevel(config.MinLevel)
		if len(config.ExcludePatterns) > 0 {
			excludePatterns = config.ExcludePatterns
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &LogForwarder{
		handler:         handler,
		logger:          logger,
		channel:         make(chan []arbormodels.LogEvent, defaultLogBufferSize),
		minLevel:        minLevel,
		excludePatterns: excludePatterns,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Channel returns the batch channel to register with arbor
func (f *LogForwarder) Channel() chan []arbormodels.LogEvent {
	return f.channel
}

// Start begins draining the channel
func (f *LogForwarder) Start() {
	f.wg.Add(1)
	common.SafeGo(f.logger, "logForwarder", func() {
		defer f.wg.Done()
		f.run()
	})
}

func (f *LogForwarder) run() {
	for {
		select {
		case <-f.ctx.Done():
			return
		case batch, ok := <-f.channel:
			if !ok {
				return
			}
			for _, event := range batch {
				if line, keep := f.transform(event); keep {
					f.handler.Broadcast(MessageTypeLog, line)
				}
			}
		}
	}
}

// transform filters one event and converts it to a LogLine
func (f *LogForwarder) transform(event arbormodels.LogEvent) (LogLine, bool) {
	level := plogToArborLevel(event.Level)
	if level < f.minLevel {
		return LogLine{}, false
	}
	for _, pattern := range f.excludePatterns {
		if strings.Contains(event.Message, pattern) {
			return LogLine{}, false
		}
	}

	message := event.Message
	if len(event.Fields) > 0 {
		parts := make([]string, 0, len(event.Fields))
		for key, value := range event.Fields {
			parts = append(parts, fmt.Sprintf("%s=%v", key, value))
		}
		message = message + " " + strings.Join(parts, " ")
	}

	return LogLine{
		Timestamp: event.Timestamp.Format("15:04:05"),
		Level:     levelName(level),
		Message:   message,
		JobID:     event.CorrelationID,
	}, true
}

// Close stops the drain loop. Batches still queued are dropped.
func (f *LogForwarder) Close() error {
	f.cancel()
	f.wg.Wait()
	return nil
}

func plogToArborLevel(level plog.Level) levels.LogLevel {
	switch level {
	case plog.ErrorLevel, plog.FatalLevel, plog.PanicLevel:
		return levels.ErrorLevel
	case plog.WarnLevel:
		return levels.WarnLevel
	case plog.DebugLevel, plog.TraceLevel:
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

func parseLogLevel(level string) levels.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return levels.ErrorLevel
	case "warn", "warning":
		return levels.WarnLevel
	case "debug":
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

func levelName(level levels.LogLevel) string {
	switch level {
	case levels.ErrorLevel:
		return "error"
	case levels.WarnLevel:
		return "warn"
	case levels.DebugLevel:
		return "debug"
	default:
		return "info"
	}
}
