package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/lock"
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
)

// event is one structured line of the subprocess's event stream.
type event struct {
	Type    string `json:"type"`
	Tool    string `json:"tool,omitempty"`
	Text    string `json:"text,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// StreamResult summarizes a consumed event stream.
type StreamResult struct {
	// Log is the full captured output, structured and opaque lines alike,
	// scanned later for completion markers and rate-limit hints.
	Log string
	// ResultError is set when a terminal result event carried an error flag;
	// it is independent of the process exit code and both must be checked.
	ResultError bool
}

// StreamConsumer reads the line-oriented event stream of a supervised
// subprocess. Structured JSON lines become agent-roster events; unparsable
// lines are opaque log output, never errors. The consumer only ever writes
// the agent-tracking document. It has no access to the queue or run state.
type StreamConsumer struct {
	stateDir string
	lockMap  *lock.MutexMap
	logger   *log.Logger
	logLevel LogLevel
}

func NewStreamConsumer(stateDir string, lockMap *lock.MutexMap, logger *log.Logger, logLevel LogLevel) *StreamConsumer {
	return &StreamConsumer{
		stateDir: stateDir,
		lockMap:  lockMap,
		logger:   logger,
		logLevel: logLevel,
	}
}

func (c *StreamConsumer) rosterPath() string {
	return filepath.Join(c.stateDir, "state", store.AgentsDoc)
}

// Consume reads the stream to EOF and records structured events.
func (c *StreamConsumer) Consume(r io.Reader) StreamResult {
	var sb strings.Builder
	var events []model.AgentEvent
	result := StreamResult{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		sb.WriteString(line)
		sb.WriteByte('\n')

		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
			// Opaque log output.
			continue
		}
		events = append(events, model.AgentEvent{
			Type:      ev.Type,
			Tool:      ev.Tool,
			Text:      ev.Text,
			IsError:   ev.IsError,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		if ev.Type == "result" && ev.IsError {
			result.ResultError = true
		}
	}
	if err := scanner.Err(); err != nil {
		c.log(LogLevelWarn, "stream read: %v", err)
	}

	if len(events) > 0 {
		c.appendEvents(events)
	}
	result.Log = sb.String()
	return result
}

// MarkActive adjusts the active-agent count in the roster document. The
// count feeds the resources confidence factor.
func (c *StreamConsumer) MarkActive(delta int) {
	c.lockMap.Lock("agents")
	defer c.lockMap.Unlock("agents")

	roster := c.loadRoster()
	roster.Active += delta
	if roster.Active < 0 {
		roster.Active = 0
	}
	roster.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := store.AtomicWrite(c.rosterPath(), roster); err != nil {
		c.log(LogLevelError, "write roster: %v", err)
	}
}

// ActiveAgents reads the current active count; missing document means zero.
func ActiveAgents(stateDir string) int {
	var roster model.AgentRoster
	if err := store.Load(filepath.Join(stateDir, "state", store.AgentsDoc), &roster); err != nil {
		return 0
	}
	return roster.Active
}

func (c *StreamConsumer) appendEvents(events []model.AgentEvent) {
	c.lockMap.Lock("agents")
	defer c.lockMap.Unlock("agents")

	roster := c.loadRoster()
	roster.Events = append(roster.Events, events...)
	// Keep the roster bounded; it is a tracking document, not an archive.
	const maxEvents = 500
	if n := len(roster.Events) - maxEvents; n > 0 {
		roster.Events = append([]model.AgentEvent(nil), roster.Events[n:]...)
	}
	roster.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := store.AtomicWrite(c.rosterPath(), roster); err != nil {
		c.log(LogLevelError, "write roster: %v", err)
	}
}

func (c *StreamConsumer) loadRoster() *model.AgentRoster {
	roster := &model.AgentRoster{SchemaVersion: 1, FileType: "agent_roster"}
	if err := store.Load(c.rosterPath(), roster); err != nil && !os.IsNotExist(err) {
		c.log(LogLevelWarn, "roster unreadable, starting fresh: %v", err)
		return &model.AgentRoster{SchemaVersion: 1, FileType: "agent_roster"}
	}
	return roster
}

func (c *StreamConsumer) log(level LogLevel, format string, args ...any) {
	if level < c.logLevel {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	c.logger.Printf("%s %s stream: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
