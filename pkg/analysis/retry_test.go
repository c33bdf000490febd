package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
)

type scriptedProvider struct {
	errs  []error
	resps []capability.MessageResponse
	calls int
}

func (p *scriptedProvider) CreateMessage(ctx context.Context, req capability.MessageRequest) (capability.MessageResponse, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return capability.MessageResponse{}, p.errs[i]
	}
	if i < len(p.resps) {
		return p.resps[i], nil
	}
	return capability.MessageResponse{}, errors.New("scriptedProvider: no more scripted responses")
}

func (p *scriptedProvider) SubmitBatch(ctx context.Context, reqs []capability.BatchRequest) (string, error) {
	return "", nil
}
func (p *scriptedProvider) RetrieveBatch(ctx context.Context, id string) (capability.BatchStatus, error) {
	return capability.BatchStatus{}, nil
}
func (p *scriptedProvider) BatchResults(ctx context.Context, id string) ([]capability.BatchResult, error) {
	return nil, nil
}

func withoutSleep(t *testing.T) {
	orig := sleeper
	sleeper = func(ctx context.Context, d time.Duration) {}
	t.Cleanup(func() { sleeper = orig })
}

func TestCallWithRetrySucceedsFirstTry(t *testing.T) {
	withoutSleep(t)
	p := &scriptedProvider{resps: []capability.MessageResponse{{StopReason: capability.StopEndTurn}}}
	resp, err := CallWithRetry(context.Background(), nil, p, capability.MessageRequest{})
	require.NoError(t, err)
	assert.Equal(t, capability.StopEndTurn, resp.StopReason)
	assert.Equal(t, 1, p.calls)
}

func TestCallWithRetryRecoversFromRateLimit(t *testing.T) {
	withoutSleep(t)
	p := &scriptedProvider{
		errs:  []error{&capability.RateLimitError{Info: capability.RateLimitInfo{StatusCode: 429}}},
		resps: []capability.MessageResponse{{}, {StopReason: capability.StopEndTurn}},
	}
	resp, err := CallWithRetry(context.Background(), nil, p, capability.MessageRequest{})
	require.NoError(t, err)
	assert.Equal(t, capability.StopEndTurn, resp.StopReason)
	assert.Equal(t, 2, p.calls)
}

func TestCallWithRetryRecoversFromCreditLow(t *testing.T) {
	withoutSleep(t)
	p := &scriptedProvider{
		errs:  []error{&capability.CreditLowError{Message: "credit balance low"}},
		resps: []capability.MessageResponse{{}, {StopReason: capability.StopEndTurn}},
	}
	_, err := CallWithRetry(context.Background(), nil, p, capability.MessageRequest{})
	require.NoError(t, err)
}

func TestCallWithRetryRecoversFromConnectionError(t *testing.T) {
	withoutSleep(t)
	p := &scriptedProvider{
		errs:  []error{NewConnectionError(errors.New("dial tcp: timeout"))},
		resps: []capability.MessageResponse{{}, {StopReason: capability.StopEndTurn}},
	}
	_, err := CallWithRetry(context.Background(), nil, p, capability.MessageRequest{})
	require.NoError(t, err)
}

func TestCallWithRetryPropagatesOtherErrorsImmediately(t *testing.T) {
	withoutSleep(t)
	wantErr := errors.New("malformed request")
	p := &scriptedProvider{errs: []error{wantErr}}
	_, err := CallWithRetry(context.Background(), nil, p, capability.MessageRequest{})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, p.calls)
}

func TestCallWithRetryExhaustsAttempts(t *testing.T) {
	withoutSleep(t)
	rlErr := &capability.RateLimitError{Info: capability.RateLimitInfo{StatusCode: 429}}
	p := &scriptedProvider{errs: []error{rlErr, rlErr, rlErr, rlErr, rlErr}}
	_, err := CallWithRetry(context.Background(), nil, p, capability.MessageRequest{})
	assert.Error(t, err)
	assert.Equal(t, 5, p.calls)
}
