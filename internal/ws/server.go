package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kdimtricp/trainbox/internal/dataset"
	"github.com/kdimtricp/trainbox/internal/jobs"
)

// Server owns the command side of the channel: it validates each incoming
// command, performs the store mutation under the project's lock, replies to
// the issuing client, and broadcasts the invalidation once a batch completes.
type Server struct {
	hub           *Hub
	store         *dataset.Store
	locks         *dataset.ProjectLocks
	orchestrator  *jobs.Orchestrator
	maxImageBytes int64
	batches       *batchTracker
	upgrader      websocket.Upgrader
	onMutation    func(project string)
}

func NewServer(hub *Hub, store *dataset.Store, orchestrator *jobs.Orchestrator, maxImageBytes int64) *Server {
	return &Server{
		hub:           hub,
		store:         store,
		locks:         dataset.NewProjectLocks(),
		orchestrator:  orchestrator,
		maxImageBytes: maxImageBytes,
		batches:       newBatchTracker(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// OnMutation registers a hook called with the project name just before each
// store mutation. The assembled server points this at the filesystem
// watcher's Suppress so the server's own writes are not re-broadcast as
// external changes.
func (s *Server) OnMutation(fn func(project string)) {
	s.onMutation = fn
}

func (s *Server) markMutation(project string) {
	if s.onMutation != nil {
		s.onMutation(project)
	}
}

// ServeWS upgrades an HTTP request to the command channel.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	client := &Client{server: s, conn: conn, send: make(chan []byte, 256)}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (s *Server) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendEvent("", EvtCommandError, errorReply{ErrKindValidation, "malformed envelope: " + err.Error()})
		return
	}

	switch env.Type {
	case CmdUpload:
		s.handleUpload(c, env)
	case CmdMoveImage:
		s.handleMoveImage(c, env)
	case CmdDeleteImage:
		s.handleDeleteImage(c, env)
	case CmdCreateLabel:
		s.handleCreateLabel(c, env)
	case CmdDeleteLabel:
		s.handleDeleteLabel(c, env)
	case CmdUploadFolder:
		s.handleUploadFolder(c, env)
	case CmdStartTraining:
		s.handleStartTraining(c, env)
	case CmdStartVerification:
		s.handleStartVerification(c, env)
	default:
		c.sendEvent(env.RequestID, EvtCommandError, errorReply{ErrKindValidation, fmt.Sprintf("unknown command %q", env.Type)})
	}
}

// decode unmarshals a command payload and runs its schema validation before
// any handler logic sees it.
func decode(env Envelope, cmd interface{ Validate() error }) error {
	if err := json.Unmarshal(env.Data, cmd); err != nil {
		return fmt.Errorf("malformed %s command: %v", env.Type, err)
	}
	return cmd.Validate()
}

func (s *Server) handleUpload(c *Client, env Envelope) {
	var cmd UploadCommand
	if err := decode(env, &cmd); err != nil {
		c.sendEvent(env.RequestID, EvtUploadError, errorReply{ErrKindValidation, err.Error()})
		// A validation failure still counts toward its declared batch so the
		// remaining items can complete it.
		if cmd.BatchID != "" {
			s.completeBatchItem(cmd.Project, cmd.Batch)
		}
		return
	}

	if int64(len(cmd.FileBytes)) > s.maxImageBytes {
		// Per-file policy: an oversized file is logged and skipped, the rest
		// of the batch proceeds, and the skip still counts toward batch
		// completion.
		log.Printf("[WS] Rejecting oversized upload %s (%d bytes) for %s/%s",
			cmd.FileName, len(cmd.FileBytes), cmd.Project, cmd.Label)
		c.sendEvent(env.RequestID, EvtUploadError, errorReply{
			ErrKindValidation,
			fmt.Sprintf("file %s exceeds the %d byte limit", cmd.FileName, s.maxImageBytes),
		})
		s.completeBatchItem(cmd.Project, cmd.Batch)
		return
	}

	s.locks.Lock(cmd.Project)
	s.markMutation(cmd.Project)
	name, err := s.store.WriteImage(cmd.Project, cmd.Label, cmd.FileName, cmd.FileBytes)
	s.locks.Unlock(cmd.Project)

	if err != nil {
		c.sendEvent(env.RequestID, EvtUploadError, toErrorReply(err))
	} else {
		c.sendEvent(env.RequestID, EvtUploadSuccess, successReply{
			Message:  fmt.Sprintf("Uploaded %s to %s", cmd.FileName, cmd.Label),
			FileName: name,
		})
	}
	s.completeBatchItem(cmd.Project, cmd.Batch)
}

func (s *Server) handleMoveImage(c *Client, env Envelope) {
	var cmd MoveImageCommand
	if err := decode(env, &cmd); err != nil {
		c.sendEvent(env.RequestID, EvtMoveImageError, errorReply{ErrKindValidation, err.Error()})
		if cmd.BatchID != "" {
			s.completeBatchItem(cmd.Project, cmd.Batch)
		}
		return
	}

	if cmd.SourceLabel == cmd.TargetLabel {
		// No-op move: skipped, not an error.
		c.sendEvent(env.RequestID, EvtMoveImageSuccess, successReply{
			Message: fmt.Sprintf("%s already in %s", cmd.ImageName, cmd.TargetLabel),
		})
		s.completeBatchItem(cmd.Project, cmd.Batch)
		return
	}

	s.locks.Lock(cmd.Project)
	s.markMutation(cmd.Project)
	err := s.store.MoveImage(cmd.Project, cmd.SourceLabel, cmd.TargetLabel, cmd.ImageName)
	s.locks.Unlock(cmd.Project)

	if err != nil {
		c.sendEvent(env.RequestID, EvtMoveImageError, toErrorReply(err))
	} else {
		c.sendEvent(env.RequestID, EvtMoveImageSuccess, successReply{
			Message: fmt.Sprintf("Moved %s to %s", cmd.ImageName, cmd.TargetLabel),
		})
	}
	s.completeBatchItem(cmd.Project, cmd.Batch)
}

func (s *Server) handleDeleteImage(c *Client, env Envelope) {
	var cmd DeleteImageCommand
	if err := decode(env, &cmd); err != nil {
		c.sendEvent(env.RequestID, EvtDeleteImageError, errorReply{ErrKindValidation, err.Error()})
		if cmd.BatchID != "" {
			s.completeBatchItem(cmd.Project, cmd.Batch)
		}
		return
	}

	s.locks.Lock(cmd.Project)
	s.markMutation(cmd.Project)
	err := s.store.DeleteImage(cmd.Project, cmd.LabelName, cmd.ImageName)
	s.locks.Unlock(cmd.Project)

	if err != nil {
		c.sendEvent(env.RequestID, EvtDeleteImageError, toErrorReply(err))
	} else {
		c.sendEvent(env.RequestID, EvtDeleteImageSuccess, successReply{
			Message: fmt.Sprintf("Deleted %s from %s", cmd.ImageName, cmd.LabelName),
		})
	}
	s.completeBatchItem(cmd.Project, cmd.Batch)
}

func (s *Server) handleCreateLabel(c *Client, env Envelope) {
	var cmd CreateLabelCommand
	if err := decode(env, &cmd); err != nil {
		c.sendEvent(env.RequestID, EvtCreateLabelError, errorReply{ErrKindValidation, err.Error()})
		return
	}

	s.locks.Lock(cmd.Project)
	s.markMutation(cmd.Project)
	err := s.store.CreateLabel(cmd.Project, cmd.LabelName)
	s.locks.Unlock(cmd.Project)

	if err != nil {
		c.sendEvent(env.RequestID, EvtCreateLabelError, toErrorReply(err))
		return
	}
	c.sendEvent(env.RequestID, EvtCreateLabelSuccess, successReply{
		Message: fmt.Sprintf("Created label %s", cmd.LabelName),
	})
	s.hub.NotifyDatasetChanged(cmd.Project)
}

func (s *Server) handleDeleteLabel(c *Client, env Envelope) {
	var cmd DeleteLabelCommand
	if err := decode(env, &cmd); err != nil {
		c.sendEvent(env.RequestID, EvtDeleteLabelError, errorReply{ErrKindValidation, err.Error()})
		return
	}

	s.locks.Lock(cmd.Project)
	s.markMutation(cmd.Project)
	err := s.store.DeleteLabel(cmd.Project, cmd.LabelName)
	s.locks.Unlock(cmd.Project)

	if err != nil {
		c.sendEvent(env.RequestID, EvtDeleteLabelError, toErrorReply(err))
		return
	}
	c.sendEvent(env.RequestID, EvtDeleteLabelSuccess, successReply{
		Message: fmt.Sprintf("Deleted label %s", cmd.LabelName),
	})
	s.hub.NotifyDatasetChanged(cmd.Project)
}

func (s *Server) handleUploadFolder(c *Client, env Envelope) {
	var cmd UploadFolderCommand
	if err := decode(env, &cmd); err != nil {
		c.sendEvent(env.RequestID, EvtUploadFolderError, errorReply{ErrKindValidation, err.Error()})
		return
	}

	// Same per-file size policy as single-image upload: oversized files are
	// logged and skipped, the folder is still created for the rest.
	files := make([]dataset.VerifyFile, 0, len(cmd.Files))
	for _, f := range cmd.Files {
		if int64(len(f.FileBytes)) > s.maxImageBytes {
			log.Printf("[WS] Skipping oversized file %s (%d bytes) in folder %s",
				f.FileName, len(f.FileBytes), cmd.DesiredFolderName)
			continue
		}
		files = append(files, dataset.VerifyFile{Name: f.FileName, Data: f.FileBytes})
	}

	s.locks.Lock(cmd.Project)
	s.markMutation(cmd.Project)
	actual, err := s.store.CreateVerifyFolder(cmd.Project, cmd.DesiredFolderName, files)
	s.locks.Unlock(cmd.Project)

	if err != nil {
		c.sendEvent(env.RequestID, EvtUploadFolderError, toErrorReply(err))
		return
	}
	c.sendEvent(env.RequestID, EvtUploadFolderSuccess, successReply{
		Message:          fmt.Sprintf("Uploaded %d files to %s", len(files), actual),
		ActualFolderName: actual,
	})
	s.hub.NotifyDatasetChanged(cmd.Project)
}

func (s *Server) handleStartTraining(c *Client, env Envelope) {
	var cmd StartTrainingCommand
	if err := decode(env, &cmd); err != nil {
		c.sendEvent(env.RequestID, EvtLearnError, errorReply{ErrKindValidation, err.Error()})
		return
	}

	// Progress and the terminal event are broadcast to all clients by the
	// orchestrator; only a rejected start is answered here.
	if err := s.orchestrator.StartTraining(cmd.Project); err != nil {
		c.sendEvent(env.RequestID, EvtLearnError, toErrorReply(err))
	}
}

func (s *Server) handleStartVerification(c *Client, env Envelope) {
	var cmd StartVerificationCommand
	if err := decode(env, &cmd); err != nil {
		c.sendEvent(env.RequestID, EvtVerificationError, errorReply{ErrKindValidation, err.Error()})
		return
	}

	if err := s.store.VerifyFolderExists(cmd.Project, cmd.FolderName); err != nil {
		c.sendEvent(env.RequestID, EvtVerificationError, toErrorReply(err))
		return
	}

	if err := s.orchestrator.StartVerification(cmd.Project, cmd.FolderName); err != nil {
		c.sendEvent(env.RequestID, EvtVerificationError, toErrorReply(err))
	}
}

func (s *Server) completeBatchItem(project string, b Batch) {
	if s.batches.complete(project, b) {
		s.hub.NotifyDatasetChanged(project)
	}
}

func toErrorReply(err error) errorReply {
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		return errorReply{ErrKindNotFound, err.Error()}
	case errors.Is(err, dataset.ErrAlreadyExists):
		return errorReply{ErrKindAlreadyExists, err.Error()}
	case errors.Is(err, dataset.ErrInvalidName):
		return errorReply{ErrKindValidation, err.Error()}
	case errors.Is(err, dataset.ErrStorage):
		return errorReply{ErrKindStorage, err.Error()}
	case errors.Is(err, jobs.ErrJobRunning):
		return errorReply{ErrKindJob, err.Error()}
	default:
		return errorReply{ErrKindInternal, err.Error()}
	}
}
