package inference

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// OnnxPool fans Predict calls out across several OnnxClient instances, each
// with its own batching loop and session. Used when many self-play workers
// share one model.
type OnnxPool struct {
	clients []*OnnxClient
	rr      atomic.Uint64
}

func NewOnnxClientPool(modelPath string, sessions int, cfg OnnxClientConfig) (*OnnxPool, error) {
	if sessions <= 0 {
		sessions = 1
	}

	clients := make([]*OnnxClient, 0, sessions)
	for i := 0; i < sessions; i++ {
		c, err := NewOnnxClientWithConfig(modelPath, cfg)
		if err != nil {
			for _, created := range clients {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx client %d/%d: %w", i+1, sessions, err)
		}
		clients = append(clients, c)
	}

	return &OnnxPool{clients: clients}, nil
}

func (p *OnnxPool) Predict(features []float32) ([]float32, error) {
	if len(p.clients) == 0 {
		return nil, errors.New("onnx pool has no clients")
	}
	idx := int(p.rr.Add(1)-1) % len(p.clients)
	return p.clients[idx].Predict(features)
}

func (p *OnnxPool) Close() error {
	var errs []error
	for _, c := range p.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *OnnxPool) Stats() RuntimeStats {
	var st RuntimeStats
	for _, c := range p.clients {
		cs := c.Stats()
		st.TotalBatches += cs.TotalBatches
		st.TotalItems += cs.TotalItems
		st.TotalRunNanos += cs.TotalRunNanos
		st.QueueLen += cs.QueueLen
		if cs.LastBatchSize > st.LastBatchSize {
			st.LastBatchSize = cs.LastBatchSize
		}
	}
	st.fillAverages()
	return st
}
