package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-bytebpe/internal/config"
	"github.com/example/go-bytebpe/internal/encoding"
	"github.com/example/go-bytebpe/internal/tokenizer"
	"github.com/example/go-bytebpe/internal/truncation"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Encoder is the tokenizer surface the handler serves. *tokenizer.Pipeline
// implements it.
type Encoder interface {
	EncodeBatch(ctx context.Context, inputs []tokenizer.Input, addSpecial bool) ([]encoding.Encoding, error)
	Decode(ids []int, skipSpecial bool) string
	VocabSize() int
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes     int
	maxBatchSize     int
	workers          int
	requestTimeout   time.Duration
	addSpecialTokens bool
	logger           *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:     1 << 20,
		maxBatchSize:     256,
		workers:          4,
		requestTimeout:   30 * time.Second,
		addSpecialTokens: true,
		logger:           slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum total text size in bytes per request.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxBatchSize sets the maximum number of inputs in POST /encode/batch.
func WithMaxBatchSize(n int) Option {
	return func(o *options) { o.maxBatchSize = n }
}

// WithWorkers sets the maximum number of concurrently served encode and
// decode requests. Zero disables the limit.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithAddSpecialTokens sets the default for requests that omit
// add_special_tokens.
func WithAddSpecialTokens(b bool) Option {
	return func(o *options) { o.addSpecialTokens = b }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	enc  Encoder
	opts options
	sem  chan struct{} // semaphore for worker pool
	log  *slog.Logger
}

// NewHandler returns an http.Handler that serves GET /health and
// POST /encode, /encode/batch and /decode.
func NewHandler(enc Encoder, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		enc:  enc,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /encode", h.withRequest(h.handleEncode))
	mux.HandleFunc("POST /encode/batch", h.withRequest(h.handleEncodeBatch))
	mux.HandleFunc("POST /decode", h.withRequest(h.handleDecode))
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    buildVersion(),
		"vocab_size": h.enc.VocabSize(),
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequest assigns a request id, waits for a worker slot and applies the
// request timeout before calling next.
func (h *handler) withRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		if r.Body == nil {
			writeError(w, http.StatusBadRequest, "request body is required")
			return
		}

		// Acquire a worker slot, honouring context cancellation while waiting.
		if h.sem != nil {
			select {
			case h.sem <- struct{}{}:
				// slot acquired
			case <-r.Context().Done():
				writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
				return
			}
			defer func() { <-h.sem }()
		}

		ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
		defer cancel()
		ctx = context.WithValue(ctx, requestIDKey{}, id)

		next(w, r.WithContext(ctx))
	}
}

type encodeRequest struct {
	Text             string  `json:"text"`
	Pair             *string `json:"pair,omitempty"`
	AddSpecialTokens *bool   `json:"add_special_tokens,omitempty"`
}

type encodeBatchRequest struct {
	Inputs           []tokenizer.Input `json:"inputs"`
	AddSpecialTokens *bool             `json:"add_special_tokens,omitempty"`
}

type encodeBatchResponse struct {
	Encodings []encoding.Encoding `json:"encodings"`
}

type decodeRequest struct {
	IDs               []int `json:"ids"`
	SkipSpecialTokens bool  `json:"skip_special_tokens"`
}

type decodeResponse struct {
	Text string `json:"text"`
}

func (h *handler) addSpecial(override *bool) bool {
	if override != nil {
		return *override
	}
	return h.opts.addSpecialTokens
}

func (h *handler) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	in := tokenizer.Input{A: req.Text, B: req.Pair}
	if !h.checkSize(w, []tokenizer.Input{in}) {
		return
	}

	encs, ok := h.encode(w, r, []tokenizer.Input{in}, h.addSpecial(req.AddSpecialTokens))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, encs[0])
}

func (h *handler) handleEncodeBatch(w http.ResponseWriter, r *http.Request) {
	var req encodeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if len(req.Inputs) == 0 {
		writeError(w, http.StatusBadRequest, "inputs field is required")
		return
	}

	if h.opts.maxBatchSize > 0 && len(req.Inputs) > h.opts.maxBatchSize {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch exceeds maximum of %d inputs", h.opts.maxBatchSize))
		return
	}

	if !h.checkSize(w, req.Inputs) {
		return
	}

	encs, ok := h.encode(w, r, req.Inputs, h.addSpecial(req.AddSpecialTokens))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, encodeBatchResponse{Encodings: encs})
}

func (h *handler) checkSize(w http.ResponseWriter, inputs []tokenizer.Input) bool {
	total := 0
	for _, in := range inputs {
		total += len(in.A)
		if in.B != nil {
			total += len(*in.B)
		}
	}
	if total > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return false
	}
	return true
}

// encode runs the batch and writes an error response on failure.
func (h *handler) encode(w http.ResponseWriter, r *http.Request, inputs []tokenizer.Input, addSpecial bool) ([]encoding.Encoding, bool) {
	ctx := r.Context()

	start := time.Now()
	encs, err := h.enc.EncodeBatch(ctx, inputs, addSpecial)
	if err == nil {
		err = ctx.Err()
	}
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		attrs := []any{
			slog.String("request_id", requestID(ctx)),
			slog.Int("inputs", len(inputs)),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		}
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			h.log.WarnContext(ctx, "encode timed out", attrs...)
			writeError(w, http.StatusGatewayTimeout, "encode timed out")
		case errors.Is(err, truncation.ErrSequenceTooShort) || errors.Is(err, truncation.ErrSecondSequenceMissing):
			h.log.InfoContext(ctx, "encode rejected", attrs...)
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.log.ErrorContext(ctx, "encode failed", attrs...)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}

	tokens := 0
	for _, e := range encs {
		tokens += e.Len()
	}
	h.log.InfoContext(ctx, "encode complete",
		slog.String("request_id", requestID(ctx)),
		slog.Int("inputs", len(inputs)),
		slog.Int("tokens", tokens),
		slog.Int64("duration_ms", durationMS),
	)
	return encs, true
}

func (h *handler) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.IDs == nil {
		writeError(w, http.StatusBadRequest, "ids field is required")
		return
	}

	text := h.enc.Decode(req.IDs, req.SkipSpecialTokens)

	h.log.InfoContext(r.Context(), "decode complete",
		slog.String("request_id", requestID(r.Context())),
		slog.Int("ids", len(req.IDs)),
		slog.Int("text_len", len(text)),
	)
	writeJSON(w, http.StatusOK, decodeResponse{Text: text})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server: wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	enc             Encoder
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

func New(cfg config.Config, enc Encoder) *Server {
	shutdown := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}
	return &Server{
		cfg:             cfg,
		enc:             enc,
		shutdownTimeout: shutdown,
		logger:          slog.Default(),
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if s.enc == nil {
		return errors.New("server: no tokenizer configured")
	}

	handlerOpts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithMaxBatchSize(s.cfg.Server.MaxBatchSize),
		WithAddSpecialTokens(s.cfg.Tokenizer.AddSpecialTokens),
		WithLogger(s.logger),
	}
	if s.cfg.Server.RequestTimeout > 0 {
		handlerOpts = append(handlerOpts, WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second))
	}

	h := NewHandler(s.enc, handlerOpts...)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("listening", slog.String("addr", s.cfg.Server.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
