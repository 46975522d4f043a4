package ws

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame for every channel message in both directions.
// RequestID is caller-generated; replies echo it so concurrent same-type
// commands from different clients cannot cross-talk.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Client -> server command types.
const (
	CmdUpload            = "upload"
	CmdMoveImage         = "moveImage"
	CmdDeleteImage       = "deleteImage"
	CmdCreateLabel       = "createLabel"
	CmdDeleteLabel       = "deleteLabel"
	CmdUploadFolder      = "uploadFolder"
	CmdStartTraining     = "startTraining"
	CmdStartVerification = "startVerification"
)

// Server -> client event types.
const (
	EvtUploadSuccess       = "uploadSuccess"
	EvtUploadError         = "uploadError"
	EvtMoveImageSuccess    = "moveImageSuccess"
	EvtMoveImageError      = "moveImageError"
	EvtDeleteImageSuccess  = "deleteImageSuccess"
	EvtDeleteImageError    = "deleteImageError"
	EvtCreateLabelSuccess  = "createLabelSuccess"
	EvtCreateLabelError    = "createLabelError"
	EvtDeleteLabelSuccess  = "deleteLabelSuccess"
	EvtDeleteLabelError    = "deleteLabelError"
	EvtUploadFolderSuccess = "uploadFolderSuccess"
	EvtUploadFolderError   = "uploadFolderError"
	EvtLearnError          = "learnError"
	EvtVerificationError   = "verificationError"
	EvtCommandError        = "commandError"
	EvtDatasetChanged      = "dataset-changed"
)

// Error kinds carried in error replies.
const (
	ErrKindNotFound      = "not-found"
	ErrKindAlreadyExists = "already-exists"
	ErrKindValidation    = "validation"
	ErrKindStorage       = "storage"
	ErrKindJob           = "job"
	ErrKindInternal      = "internal"
)

// Batch identifies one item of a multi-item mutation. The server counts the
// declared size down and broadcasts a single dataset-changed once every
// item's outcome is known. A command without a batch is a singleton batch.
type Batch struct {
	BatchID   string `json:"batchId,omitempty"`
	BatchSize int    `json:"batchSize,omitempty"`
}

type UploadCommand struct {
	Project   string `json:"project"`
	Label     string `json:"label"`
	FileName  string `json:"fileName"`
	FileBytes []byte `json:"fileBytes"`
	Batch
}

func (c *UploadCommand) Validate() error {
	if err := required("project", c.Project, "label", c.Label, "fileName", c.FileName); err != nil {
		return err
	}
	if len(c.FileBytes) == 0 {
		return fmt.Errorf("empty file %s", c.FileName)
	}
	return nil
}

type MoveImageCommand struct {
	Project     string `json:"project"`
	ImageName   string `json:"imageName"`
	SourceLabel string `json:"sourceLabel"`
	TargetLabel string `json:"targetLabel"`
	Batch
}

func (c *MoveImageCommand) Validate() error {
	return required("project", c.Project, "imageName", c.ImageName,
		"sourceLabel", c.SourceLabel, "targetLabel", c.TargetLabel)
}

type DeleteImageCommand struct {
	Project   string `json:"project"`
	ImageName string `json:"imageName"`
	LabelName string `json:"labelName"`
	Batch
}

func (c *DeleteImageCommand) Validate() error {
	return required("project", c.Project, "imageName", c.ImageName, "labelName", c.LabelName)
}

type CreateLabelCommand struct {
	Project   string `json:"project"`
	LabelName string `json:"labelName"`
}

func (c *CreateLabelCommand) Validate() error {
	return required("project", c.Project, "labelName", c.LabelName)
}

type DeleteLabelCommand struct {
	Project   string `json:"project"`
	LabelName string `json:"labelName"`
}

func (c *DeleteLabelCommand) Validate() error {
	return required("project", c.Project, "labelName", c.LabelName)
}

type FolderFile struct {
	FileName  string `json:"fileName"`
	FileBytes []byte `json:"fileBytes"`
}

type UploadFolderCommand struct {
	Project           string       `json:"project"`
	DesiredFolderName string       `json:"desiredFolderName"`
	Files             []FolderFile `json:"files"`
}

func (c *UploadFolderCommand) Validate() error {
	if err := required("project", c.Project, "desiredFolderName", c.DesiredFolderName); err != nil {
		return err
	}
	if len(c.Files) == 0 {
		return fmt.Errorf("folder %s has no files", c.DesiredFolderName)
	}
	for _, f := range c.Files {
		if f.FileName == "" {
			return fmt.Errorf("folder %s contains a file without a name", c.DesiredFolderName)
		}
	}
	return nil
}

type StartTrainingCommand struct {
	Project string `json:"project"`
}

func (c *StartTrainingCommand) Validate() error {
	return required("project", c.Project)
}

type StartVerificationCommand struct {
	Project    string `json:"project"`
	FolderName string `json:"folderName"`
}

func (c *StartVerificationCommand) Validate() error {
	return required("project", c.Project, "folderName", c.FolderName)
}

type successReply struct {
	Message          string `json:"message"`
	FileName         string `json:"fileName,omitempty"`
	ActualFolderName string `json:"actualFolderName,omitempty"`
}

type errorReply struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("missing required field %s", pairs[i])
		}
	}
	return nil
}
