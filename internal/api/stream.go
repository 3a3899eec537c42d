package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/pipeline"
)

// batchRequest is the first message a streaming client sends.
type batchRequest struct {
	Documents []extractRequest `json:"documents"`
}

// streamMessage is sent once per finished document and once for the batch.
type streamMessage struct {
	Type     string                   `json:"type"` // "document", "summary" or "error"
	Document *pipeline.DocumentReport `json:"document,omitempty"`
	Summary  *exercise.Summary        `json:"summary,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// inlineExtractor serves the pages carried by a batch request.
type inlineExtractor map[string][]exercise.RawPage

func (e inlineExtractor) Extract(_ context.Context, doc pipeline.DocumentRef) ([]exercise.RawPage, error) {
	pages, ok := e[doc.Source]
	if !ok {
		return nil, errors.New("document not in request")
	}
	return pages, nil
}

// handleExtractStream runs a batch over a websocket, reporting each
// document as it finishes and the summary at the end.
func (s *Server) handleExtractStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	var req batchRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		s.logger.Warn("invalid batch request", "error", err)
		conn.Close(websocket.StatusUnsupportedData, "invalid batch request")
		return
	}
	// The hijacked request context outlives the client; CloseRead cancels
	// ctx once the peer closes or sends anything else.
	ctx = conn.CloseRead(ctx)

	docs := make([]pipeline.DocumentRef, 0, len(req.Documents))
	pages := make(inlineExtractor, len(req.Documents))
	for _, d := range req.Documents {
		if err := d.validate(); err != nil {
			_ = wsjson.Write(ctx, conn, streamMessage{Type: "error", Error: err.Error()})
			conn.Close(websocket.StatusPolicyViolation, "invalid document")
			return
		}
		if _, dup := pages[d.Source]; dup {
			_ = wsjson.Write(ctx, conn, streamMessage{Type: "error", Error: "duplicate source " + d.Source})
			conn.Close(websocket.StatusPolicyViolation, "invalid document")
			return
		}
		pages[d.Source] = d.rawPages()
		docs = append(docs, pipeline.DocumentRef{Source: d.Source, Year: d.Year, Day: d.Day})
	}

	var mu sync.Mutex
	send := func(msg streamMessage) {
		mu.Lock()
		defer mu.Unlock()
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			s.logger.Debug("stream write failed", "error", err)
		}
	}

	runner := pipeline.NewRunner(s.deps.Pipeline, pages, s.deps.Runner, s.runnerOptions(
		pipeline.WithProgress(func(rep pipeline.DocumentReport) {
			send(streamMessage{Type: "document", Document: &rep})
		}),
	)...)

	sum, err := runner.Run(ctx, docs)
	if err != nil {
		s.logger.Warn("streamed batch interrupted", "run_id", sum.RunID, "error", err)
		return
	}
	send(streamMessage{Type: "summary", Summary: &sum})
	conn.Close(websocket.StatusNormalClosure, "")
}
