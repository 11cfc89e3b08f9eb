package api

import (
	"bufio"
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"sync"
	"time"

	"mnemora/app/agent"
	"mnemora/loader/types"

	"github.com/gofiber/fiber/v2"
)

// heartbeatInterval is how often a comment frame is written so a client
// that left during a long quiet phase is noticed.
var heartbeatInterval = 15 * time.Second

// streamEvents writes every element of the sequence built by open as one
// server-sent event `data: <json>\n\n`. The context handed to open derives
// from the request's user context and is cancelled once a write fails,
// which ends the sequence.
func streamEvents(c *fiber.Ctx, open func(ctx context.Context) iter.Seq[fiber.Map]) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	base := c.UserContext()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(base)
		sw := &sseWriter{w: w}
		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			sw.heartbeat(ctx, cancel, heartbeatInterval)
		}()
		defer func() {
			cancel()
			<-stopped
		}()

		for payload := range open(ctx) {
			if err := sw.event(payload); err != nil {
				slog.Debug("client left the stream", "error", err)
				return
			}
		}
	})
	return nil
}

// sseWriter serialises event and heartbeat frames on one stream.
type sseWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (s *sseWriter) event(payload fiber.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeEvent(s.w, payload)
}

func (s *sseWriter) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(": ping\n\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

// heartbeat pings every interval until ctx is done and cancels it when a
// ping cannot be delivered.
func (s *sseWriter) heartbeat(ctx context.Context, cancel context.CancelFunc, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				slog.Debug("client left the stream", "error", err)
				cancel()
				return
			}
		}
	}
}

// encoded maps every event of seq to its wire payload.
func encoded[T any](seq iter.Seq[T], encode func(T) fiber.Map) iter.Seq[fiber.Map] {
	return func(yield func(fiber.Map) bool) {
		for ev := range seq {
			if !yield(encode(ev)) {
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, payload fiber.Map) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return w.Flush()
}

func progressPayload(ev types.ProgressEvent) fiber.Map {
	switch e := ev.(type) {
	case types.Discovery:
		return fiber.Map{"type": e.Kind(), "total_files": e.TotalFiles, "folder": e.Folder}
	case types.FileDone:
		return fiber.Map{
			"type":      e.Kind(),
			"file":      e.File,
			"file_path": e.Path,
			"chunks":    e.ChunkCount,
			"current":   e.Current,
			"total":     e.Total,
			"percent":   e.Percent,
		}
	case types.FileError:
		return fileErrorPayload(e)
	case types.EmbeddingStatus:
		return fiber.Map{"type": e.Kind(), "status": e.Status, "count": e.Count}
	case types.Done:
		files := make([]fiber.Map, len(e.Errors))
		for i, fe := range e.Errors {
			files[i] = fileErrorPayload(fe)
		}
		return fiber.Map{"type": e.Kind(), "processed": e.Processed, "errors": e.ErrorCount, "error_files": files}
	case types.PipelineError:
		return fiber.Map{"type": e.Kind(), "message": e.Message}
	}
	return fiber.Map{"type": ev.Kind()}
}

func fileErrorPayload(e types.FileError) fiber.Map {
	return fiber.Map{
		"type":      e.Kind(),
		"file":      e.File,
		"file_path": e.Path,
		"error":     e.Message,
		"current":   e.Current,
		"total":     e.Total,
	}
}

func queryPayload(ev agent.Event) fiber.Map {
	switch e := ev.(type) {
	case agent.Sources:
		return fiber.Map{"type": e.Kind(), "sources": e.Sources}
	case agent.Token:
		return fiber.Map{"type": e.Kind(), "content": e.Content}
	case agent.Error:
		return fiber.Map{"type": e.Kind(), "message": e.Message}
	}
	return fiber.Map{"type": ev.Kind()}
}
