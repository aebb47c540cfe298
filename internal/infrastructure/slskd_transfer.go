package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/trackfetch-go/internal/domain"
	"go.uber.org/zap"
)

// slskd transfer states
const (
	transferQueuedRemotely = "Queued, Remotely"
	transferSucceeded      = "Completed, Succeeded"
	transferCompleted      = "Completed"
)

type enqueueFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type userTransfers struct {
	Username    string              `json:"username"`
	Directories []transferDirectory `json:"directories"`
}

type transferDirectory struct {
	Directory string         `json:"directory"`
	Files     []transferFile `json:"files"`
}

type transferFile struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	State            string `json:"state"`
	Size             int64  `json:"size"`
	BytesTransferred int64  `json:"bytesTransferred"`
	PlaceInQueue     int    `json:"placeInQueue"`
}

// ErrTransferNotFound is returned when slskd forgets a transfer it accepted
var ErrTransferNotFound = errors.New("transfer disappeared from slskd")

// Download asks slskd to fetch one file from a peer, polls until the transfer
// settles and moves the result to req.Destination.
func (c *SlskdClient) Download(ctx context.Context, req domain.TransferRequest, onProgress domain.ProgressFunc) error {
	if onProgress == nil {
		onProgress = func(domain.TransferProgress) {}
	}

	userEndpoint := "/transfers/downloads/" + url.PathEscape(req.PeerID)
	files := []enqueueFile{{Filename: req.RemoteFilename, Size: req.ExpectedSize}}
	if err := c.post(ctx, userEndpoint, files, nil); err != nil {
		return fmt.Errorf("failed to enqueue transfer: %w", err)
	}

	c.eventLogger.LogQueueEvent("transfer_requested",
		zap.String("job_id", req.JobID),
		zap.String("peer", req.PeerID),
		zap.String("filename", req.RemoteFilename))

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var transferID string
	cancel := func() {
		if transferID != "" {
			c.cleanup(userEndpoint + "/" + url.PathEscape(transferID) + "?remove=true")
		}
	}

	missing := 0
	for {
		select {
		case <-ctx.Done():
			cancel()
			return ctx.Err()
		case <-ticker.C:
		}

		var transfers userTransfers
		if err := c.get(ctx, userEndpoint, &transfers); err != nil {
			if ctx.Err() != nil {
				cancel()
				return ctx.Err()
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
				transfers = userTransfers{}
			} else {
				return err
			}
		}

		file, ok := transfers.find(req.RemoteFilename)
		if !ok {
			// slskd may not list the transfer on the first polls
			missing++
			if transferID != "" || missing > 10 {
				return ErrTransferNotFound
			}
			continue
		}
		transferID = file.ID

		onProgress(domain.TransferProgress{
			BytesTransferred: file.BytesTransferred,
			TotalBytes:       file.Size,
			RemoteQueued:     file.State == transferQueuedRemotely,
			QueuePosition:    file.PlaceInQueue,
		})

		switch {
		case file.State == transferSucceeded:
			return c.finishTransfer(req, userEndpoint, file)
		case strings.HasPrefix(file.State, transferCompleted):
			c.cleanup(userEndpoint + "/" + url.PathEscape(file.ID) + "?remove=true")
			return fmt.Errorf("transfer ended in state %q", file.State)
		}
	}
}

// find returns the transfer for filename, preferring one still in flight
func (t userTransfers) find(filename string) (transferFile, bool) {
	var settled *transferFile
	for _, dir := range t.Directories {
		for i := range dir.Files {
			f := dir.Files[i]
			if f.Filename != filename {
				continue
			}
			if !strings.HasPrefix(f.State, transferCompleted) {
				return f, true
			}
			if settled == nil {
				settled = &f
			}
		}
	}
	if settled != nil {
		return *settled, true
	}
	return transferFile{}, false
}

func (c *SlskdClient) finishTransfer(req domain.TransferRequest, userEndpoint string, file transferFile) error {
	source, err := c.locateDownload(req.RemoteFilename)
	if err != nil {
		return err
	}
	if err := moveFile(source, req.Destination); err != nil {
		return fmt.Errorf("failed to move download: %w", err)
	}

	c.cleanup(userEndpoint + "/" + url.PathEscape(file.ID) + "?remove=true")
	c.eventLogger.LogQueueEvent("transfer_finished",
		zap.String("job_id", req.JobID),
		zap.String("destination", req.Destination),
		zap.Int64("bytes", file.BytesTransferred))
	return nil
}

// locateDownload finds the file slskd wrote. slskd saves into a folder named
// after the remote parent directory, older versions saved flat.
func (c *SlskdClient) locateDownload(remoteFilename string) (string, error) {
	parts := strings.FieldsFunc(remoteFilename, func(r rune) bool { return r == '\\' || r == '/' })
	if len(parts) == 0 {
		return "", fmt.Errorf("empty remote filename")
	}
	base := parts[len(parts)-1]

	candidates := []string{filepath.Join(c.downloadsDir, base)}
	if len(parts) > 1 {
		candidates = append([]string{filepath.Join(c.downloadsDir, parts[len(parts)-2], base)}, candidates...)
	}

	for _, path := range candidates {
		if fileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("downloaded file not found in %s: %s", c.downloadsDir, base)
}

// moveFile renames src to dst, copying when they sit on different devices
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
