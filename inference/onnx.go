// Package inference evaluates the exported Q-network with ONNX Runtime.
package inference

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// InputSize is the feature vector width.
	InputSize = 11
	// OutputSize is one Q-value per relative action.
	OutputSize = 3
)

const (
	DefaultBatchSize    = 32
	DefaultBatchTimeout = 1 * time.Millisecond
)

// Tensor names in the exported model.
const (
	InputName  = "input"
	OutputName = "q_values"
)

var ErrClosed = errors.New("onnx client closed")

type OnnxClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	// UseCUDA appends the CUDA execution provider when it is available.
	UseCUDA bool
	Logger  *slog.Logger
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	q   []float32
	err error
}

// RuntimeStats summarises batching behaviour.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

// OnnxClient implements agent.Predictor using ONNX Runtime with batching.
// Predict is safe for concurrent use; concurrent callers share batches.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan inferenceRequest
	cfg          OnnxClientConfig
	logger       *slog.Logger

	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	batches   atomic.Int64
	items     atomic.Int64
	runNanos  atomic.Int64
	lastBatch atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnxClient(modelPath string) (*OnnxClient, error) {
	return NewOnnxClientWithConfig(modelPath, OnnxClientConfig{BatchSize: DefaultBatchSize, BatchTimeout: DefaultBatchTimeout})
}

func NewOnnxClientWithConfig(modelPath string, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model %s: %w", modelPath, err)
	}

	if err := initRuntime(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// The network is tiny; extra threads only add contention.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if cfg.UseCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				logger.Warn("failed to append CUDA provider", "error", err)
			} else {
				logger.Info("CUDA provider enabled")
			}
		} else {
			logger.Warn("failed to create CUDA options", "error", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{InputName}, []string{OutputName}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client := &OnnxClient{
		session:      session,
		cfg:          cfg,
		logger:       logger,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}

	go client.batchLoop()

	return client, nil
}

// initRuntime points onnxruntime_go at the shared library and initialises
// the process-global environment once.
func initRuntime() error {
	if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	} else if runtime.GOOS == "linux" {
		cwd, _ := os.Getwd()
		for _, name := range []string{"libonnxruntime.so", "libonnxruntime.so.1"} {
			abs := filepath.Join(cwd, name)
			if _, err := os.Stat(abs); err == nil {
				ort.SetSharedLibraryPath(abs)
				break
			}
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return fmt.Errorf("failed to init ort: %w", ortInitErr)
	}
	return nil
}

// Close stops the batching loop and releases the session. Pending and later
// Predict calls fail with ErrClosed.
func (c *OnnxClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.loopDone
		err = c.session.Destroy()
	})
	return err
}

// Predict returns the Q-values for one feature vector.
func (c *OnnxClient) Predict(features []float32) ([]float32, error) {
	if len(features) != InputSize {
		return nil, fmt.Errorf("input has %d features, want %d", len(features), InputSize)
	}
	input := make([]float32, InputSize)
	copy(input, features)

	respChan := make(chan inferenceResponse, 1)
	select {
	case c.requestsChan <- inferenceRequest{input: input, respChan: respChan}:
	case <-c.done:
		return nil, ErrClosed
	}

	select {
	case resp := <-respChan:
		return resp.q, resp.err
	case <-c.loopDone:
		// The loop may have answered just before exiting.
		select {
		case resp := <-respChan:
			return resp.q, resp.err
		default:
			return nil, ErrClosed
		}
	}
}

func (c *OnnxClient) batchLoop() {
	defer close(c.loopDone)

	batchInput := make([]float32, 0, c.cfg.BatchSize*InputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(requests) == 0 {
			return
		}
		c.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)
			if len(requests) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-c.done:
			c.failBatch(requests, ErrClosed)
			for {
				select {
				case req := <-c.requestsChan:
					req.respChan <- inferenceResponse{err: ErrClosed}
				default:
					return
				}
			}
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	n := int64(len(requests))

	inputTensor, err := ort.NewTensor(ort.NewShape(n, InputSize), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, OutputSize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer outputTensor.Destroy()

	start := time.Now()
	if err := c.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		c.failBatch(requests, err)
		return
	}
	c.batches.Add(1)
	c.items.Add(n)
	c.runNanos.Add(time.Since(start).Nanoseconds())
	c.lastBatch.Store(n)

	out := outputTensor.GetData()
	for i, req := range requests {
		q := make([]float32, OutputSize)
		copy(q, out[i*OutputSize:(i+1)*OutputSize])
		req.respChan <- inferenceResponse{q: q}
	}
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}

func (c *OnnxClient) Stats() RuntimeStats {
	st := RuntimeStats{
		TotalBatches:  c.batches.Load(),
		TotalItems:    c.items.Load(),
		TotalRunNanos: c.runNanos.Load(),
		LastBatchSize: c.lastBatch.Load(),
		QueueLen:      len(c.requestsChan),
	}
	st.fillAverages()
	return st
}

func (s *RuntimeStats) fillAverages() {
	if s.TotalBatches > 0 {
		s.AvgBatchSize = float64(s.TotalItems) / float64(s.TotalBatches)
		s.AvgRunMs = (float64(s.TotalRunNanos) / 1e6) / float64(s.TotalBatches)
	}
}
