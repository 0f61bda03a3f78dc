// Package server ingests chunks and metadata published under the resource
// space and answers queries for them.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/prappser/prappser_cdn/internal/catalog"
	"github.com/prappser/prappser_cdn/internal/cdnerr"
	"github.com/prappser/prappser_cdn/internal/keyspace"
	"github.com/prappser/prappser_cdn/internal/storage"
	"github.com/prappser/prappser_cdn/internal/transport"
	"github.com/rs/zerolog/log"
)

// Server runs one event loop over change notifications and queries. Handlers
// run to completion before the next message is taken from either source, so
// writes to a shard are never concurrent.
type Server struct {
	session transport.Session
	ks      keyspace.KeySpace
	ingest  *IngestHandler
	query   *QueryHandler
	ready   chan struct{}
}

func New(session transport.Session, ks keyspace.KeySpace, store *storage.ShardStore, cat *catalog.Catalog) *Server {
	return &Server{
		session: session,
		ks:      ks,
		ingest:  NewIngestHandler(store, cat),
		query:   NewQueryHandler(ks, store),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the server is subscribed and answering queries.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Run blocks until ctx ends or the session drops. Per-message failures are
// logged and never stop the loop.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pattern := s.ks.Pattern()
	changes, err := s.session.Subscribe(ctx, pattern)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	queries, err := s.session.DeclareQueryable(ctx, pattern)
	if err != nil {
		return fmt.Errorf("declaring queryable %s: %w", pattern, err)
	}
	close(s.ready)

	log.Info().Str("pattern", pattern).Msg("[SERVER] Serving resource space")

	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return s.stopped(ctx)
			}
			s.handleChange(ctx, change)

		case q, ok := <-queries:
			if !ok {
				return s.stopped(ctx)
			}
			s.handleQuery(ctx, q)

		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Server) stopped(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return transport.ErrClosed
}

// Serve starts Run in a goroutine. The channel receives Run's result and is
// then closed.
func (s *Server) Serve(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Run(ctx); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

func (s *Server) handleChange(ctx context.Context, change transport.Change) {
	msg, err := Decode(s.ks, change)
	if err != nil {
		event := log.Error()
		if errors.Is(err, cdnerr.ErrUnsupportedEncoding) {
			event = log.Warn()
		}
		event.Err(err).Str("key", change.Key).Msg("[INGEST] Dropping message")
		return
	}

	if err := s.ingest.Handle(ctx, msg); err != nil {
		log.Error().Err(err).Str("key", change.Key).Msg("[INGEST] Failed to ingest")
	}
}

func (s *Server) handleQuery(ctx context.Context, q *transport.Query) {
	if err := s.query.Handle(ctx, q); err != nil {
		event := log.Error()
		if errors.Is(err, cdnerr.ErrNotFound) {
			event = log.Debug()
		}
		event.Err(err).Str("selector", q.Selector()).Msg("[QUERY] No reply")
		return
	}

	log.Trace().Str("selector", q.Selector()).Msg("[QUERY] Replied")
}
