// Package trainer shells out to the external training and verification
// commands. The model itself is opaque to the server: the train command reads
// a directory of labeled images and saves a model, the verify command reads a
// model and a folder of images and prints a classification result.
package trainer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kdimtricp/trainbox/internal/jobs"
)

// ExecRunner implements jobs.Trainer and jobs.Verifier over two commands.
//
// Train protocol (stdout, line oriented):
//
//	progress <percent>     zero or more times
//	report <json>          once, a jobs.Report, before exit
//
// Verify protocol: the command prints a single jobs.Result JSON document.
type ExecRunner struct {
	TrainCmd  string
	VerifyCmd string
}

func NewExecRunner(trainCmd, verifyCmd string) *ExecRunner {
	return &ExecRunner{TrainCmd: trainCmd, VerifyCmd: verifyCmd}
}

func (r *ExecRunner) Train(ctx context.Context, dataDir, modelDir string, progress chan<- int) (*jobs.Report, error) {
	cmd := exec.CommandContext(ctx, r.TrainCmd, dataDir, modelDir)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open trainer stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start trainer: %w", err)
	}

	var report *jobs.Report
	var decodeErr error
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// After a decode failure keep draining so a still-writing trainer
		// cannot block on a full pipe before Wait reaps it.
		if decodeErr != nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "progress "):
			percent, err := strconv.Atoi(strings.TrimPrefix(line, "progress "))
			if err != nil {
				log.Printf("[JOB] Ignoring malformed progress line: %q", line)
				continue
			}
			progress <- percent
		case strings.HasPrefix(line, "report "):
			r := &jobs.Report{}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "report ")), r); err != nil {
				decodeErr = fmt.Errorf("failed to decode training report: %w", err)
				continue
			}
			report = r
		}
	}

	waitErr := cmd.Wait()
	if decodeErr != nil {
		return nil, decodeErr
	}
	if waitErr != nil {
		return nil, fmt.Errorf("trainer failed: %w (%s)", waitErr, strings.TrimSpace(stderr.String()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading trainer output: %w", err)
	}
	if report == nil {
		return nil, fmt.Errorf("trainer exited without a report")
	}
	return report, nil
}

func (r *ExecRunner) Verify(ctx context.Context, modelDir, folderDir string) (*jobs.Result, error) {
	cmd := exec.CommandContext(ctx, r.VerifyCmd, modelDir, folderDir)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("verifier failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	var result jobs.Result
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("failed to decode verification result: %w", err)
	}
	for _, img := range result.Images {
		if len(img.Confidence) != len(result.Classes) {
			return nil, fmt.Errorf("verifier returned %d confidences for %s, expected %d",
				len(img.Confidence), img.Name, len(result.Classes))
		}
	}
	return &result, nil
}
