package mobilemoney

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/SialouWebServices/Saas/internal/config"
	"github.com/SialouWebServices/Saas/internal/pkg/apperror"
)

type Options struct {
	HTTPClient  *http.Client
	MinInterval time.Duration
	Observer    Observer
}

// Factory builds providers on demand and keeps one instance per operator so
// token caches and rate limiters are shared across batches.
type Factory struct {
	cfg  config.MobileMoneyConfig
	opts Options

	mu        sync.Mutex
	providers map[Operator]Provider
}

func NewFactory(cfg config.MobileMoneyConfig, observer Observer) *Factory {
	return &Factory{
		cfg: cfg,
		opts: Options{
			HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
			MinInterval: cfg.MinInterval,
			Observer:    observer,
		},
		providers: make(map[Operator]Provider),
	}
}

// Create returns the provider for op, or an UnsupportedOperation error when
// the operator is unknown or has no credentials configured.
func (f *Factory) Create(op Operator) (Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.providers[op]; ok {
		return p, nil
	}

	var p Provider
	switch op {
	case OperatorOrange:
		if !f.cfg.Orange.Configured() {
			return nil, notConfigured(op)
		}
		p = NewOrangeMoney(f.cfg.Orange, f.opts)
	case OperatorMTN:
		if !f.cfg.MTN.Configured() {
			return nil, notConfigured(op)
		}
		p = NewMTNMoMo(f.cfg.MTN, f.opts)
	case OperatorWave:
		if !f.cfg.Wave.Configured() {
			return nil, notConfigured(op)
		}
		p = NewWave(f.cfg.Wave, f.opts)
	default:
		return nil, apperror.New(apperror.ErrUnsupportedOperation, fmt.Sprintf("unsupported mobile money operator %q", op))
	}

	f.providers[op] = p
	return p, nil
}

// Configured lists the operators that have credentials.
func (f *Factory) Configured() []Operator {
	var ops []Operator
	for _, op := range Operators {
		switch {
		case op == OperatorOrange && f.cfg.Orange.Configured(),
			op == OperatorMTN && f.cfg.MTN.Configured(),
			op == OperatorWave && f.cfg.Wave.Configured():
			ops = append(ops, op)
		}
	}
	return ops
}

func notConfigured(op Operator) error {
	return apperror.New(apperror.ErrUnsupportedOperation, fmt.Sprintf("%s is not configured", op.DisplayName()))
}
