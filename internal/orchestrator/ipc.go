package orchestrator

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/internal/uds"
)

// EnqueueParams is the wire shape of the enqueue command.
type EnqueueParams struct {
	Type        string   `json:"type"`
	Priority    int      `json:"priority"`
	Goal        string   `json:"goal,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	Target      string   `json:"target,omitempty"`
	Action      string   `json:"action,omitempty"`
	Description string   `json:"description,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	TimeoutSec  int      `json:"timeout_sec,omitempty"`
}

// SocketPath returns the control socket location for a state directory.
func SocketPath(stateDir string) string {
	return filepath.Join(stateDir, uds.DefaultSocketName)
}

// ipcServer builds the command surface served on the control socket.
func (l *Loop) ipcServer() *uds.Server {
	srv := uds.NewServer(SocketPath(l.stateDir), l.logger)

	srv.Handle(uds.CmdPing, func(_ *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]bool{"pong": true})
	})

	srv.Handle(uds.CmdStatus, func(_ *uds.Request) *uds.Response {
		l.writeStatus()
		var status model.LoopStatus
		if err := store.Load(filepath.Join(l.stateDir, "state", store.StatusDoc), &status); err != nil {
			return uds.ErrorResponse(uds.ErrCodeNotFound, "no status yet")
		}
		return uds.SuccessResponse(status)
	})

	srv.Handle(uds.CmdEnqueue, func(req *uds.Request) *uds.Response {
		var p EnqueueParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		if strings.TrimSpace(p.Type) == "" {
			return uds.ErrorResponse(uds.ErrCodeValidation, "type is required")
		}
		if p.Priority < 0 || p.Priority > 10 {
			return uds.ErrorResponse(uds.ErrCodeValidation, "priority must be in [0,10]")
		}
		id, err := model.GenerateID(model.IDTypeTask)
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
		}
		task := model.Task{
			ID:          id,
			Type:        p.Type,
			Priority:    p.Priority,
			Goal:        p.Goal,
			Constraints: p.Constraints,
			Target:      p.Target,
			Action:      p.Action,
			Description: p.Description,
			DependsOn:   p.DependsOn,
			TimeoutSec:  p.TimeoutSec,
		}
		if err := l.queue.Enqueue(task); err != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
		}
		return uds.SuccessResponse(map[string]string{"id": task.ID})
	})

	srv.Handle(uds.CmdScan, func(_ *uds.Request) *uds.Response {
		n := l.watcher.Scan()
		return uds.SuccessResponse(map[string]int{"enqueued": n})
	})

	srv.Handle(uds.CmdShutdown, func(_ *uds.Request) *uds.Response {
		l.log(LogLevelInfo, "shutdown requested over control socket")
		l.Shutdown()
		return uds.SuccessResponse(nil)
	})

	return srv
}
