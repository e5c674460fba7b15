package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"companion/internal/domain"
	"companion/internal/infra"
	"companion/internal/providers/image"
)

// Mode selects which stages a generation request runs.
type Mode string

const (
	ModeFace     Mode = "face"
	ModeFaceBody Mode = "face_body"
)

// Coin costs per stage.
const (
	FaceCost = 2
	BodyCost = 5
)

// Cost is the total charged for a successful request in this mode.
func (m Mode) Cost() int {
	if m == ModeFaceBody {
		return FaceCost + BodyCost
	}
	return FaceCost
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFace || m == ModeFaceBody
}

// State is a step of the generation state machine.
type State string

const (
	StateIdle            State = "idle"
	StateCheckingBalance State = "checking-balance"
	StateGeneratingFace  State = "generating-face"
	StateGeneratingBody  State = "generating-body"
	StateSucceeded       State = "succeeded"
	StateFailed          State = "failed"
)

// Stage names the upstream call that failed.
type Stage string

const (
	StageFace Stage = "face"
	StageBody Stage = "body"
)

// Ledger is the coin ledger surface used by the orchestrator.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	HasEnough(userID string, amount int) bool
	Debit(ctx context.Context, userID string, amount int) (int, error)
}

// Recorder receives generation metrics. A nil Recorder is allowed.
type Recorder interface {
	ObserveAttempt(stage string, outcome string)
	ObserveGeneration(mode string, outcome string, took time.Duration)
	AddCoinsDebited(n int)
}

// Options wires the orchestrator.
type Options struct {
	Endpoints   image.Endpoints
	Ledger      Ledger
	Retry       RetryPolicy
	FaceTimeout time.Duration
	BodyTimeout time.Duration
	Metrics     Recorder
	Logger      *infra.Logger
}

// Orchestrator drives the face and face+body generation flows.
type Orchestrator struct {
	endpoints   image.Endpoints
	ledger      Ledger
	retry       RetryPolicy
	faceTimeout time.Duration
	bodyTimeout time.Duration
	metrics     Recorder
	logger      infra.Logger
	sleep       sleepFunc
}

// Input is a single generation request.
type Input struct {
	UserID     string
	Mode       Mode
	Attributes domain.Attributes
	// OnState, when set, is called on every state transition.
	OnState func(State)
}

// Result carries the generated variants and the balance after the debit.
type Result struct {
	Mode    Mode
	Face    domain.GenerationResult
	Body    *domain.GenerationResult
	Cost    int
	Balance int
}

// New validates options and applies defaults.
func New(opts Options) (*Orchestrator, error) {
	if opts.Endpoints.Face == nil || opts.Endpoints.Body == nil {
		return nil, errors.New("imagegen: face and body endpoints are required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("imagegen: ledger is required")
	}
	policy := opts.Retry
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	faceTimeout := opts.FaceTimeout
	if faceTimeout <= 0 {
		faceTimeout = 60 * time.Second
	}
	bodyTimeout := opts.BodyTimeout
	if bodyTimeout <= 0 {
		bodyTimeout = 120 * time.Second
	}
	logger := infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Orchestrator{
		endpoints:   opts.Endpoints,
		ledger:      opts.Ledger,
		retry:       policy,
		faceTimeout: faceTimeout,
		bodyTimeout: bodyTimeout,
		metrics:     opts.Metrics,
		logger:      infra.Component(logger, "imagegen"),
		sleep:       sleepContext,
	}, nil
}

// Generate runs the flow for in.Mode. Coins are debited once, only after
// every stage produced an image; any failure leaves the balance untouched.
func (o *Orchestrator) Generate(ctx context.Context, in Input) (*Result, error) {
	if !in.Mode.Valid() {
		return nil, fmt.Errorf("imagegen: unknown mode %q", in.Mode)
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("imagegen: user id is required")
	}
	start := time.Now()
	notify := func(s State) {
		if in.OnState != nil {
			in.OnState(s)
		}
	}
	log := o.logger.With().Str("user_id", in.UserID).Str("mode", string(in.Mode)).Logger()

	res, err := o.run(ctx, in, notify, &log)
	if err != nil {
		notify(StateFailed)
		var genErr *Error
		outcome := "error"
		if errors.As(err, &genErr) {
			outcome = string(genErr.Kind)
		}
		o.observeGeneration(in.Mode, outcome, time.Since(start))
		log.Warn().Err(err).Msg("generation failed")
		return nil, err
	}
	notify(StateSucceeded)
	o.observeGeneration(in.Mode, "succeeded", time.Since(start))
	if o.metrics != nil {
		o.metrics.AddCoinsDebited(res.Cost)
	}
	log.Info().Int("cost", res.Cost).Int("balance", res.Balance).Dur("took", time.Since(start)).Msg("generation succeeded")
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, in Input, notify func(State), log *infra.Logger) (*Result, error) {
	notify(StateIdle)
	cost := in.Mode.Cost()

	notify(StateCheckingBalance)
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindCancelled, Err: err}
	}
	if _, err := o.ledger.Balance(ctx, in.UserID); err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Kind: KindCancelled, Err: ctx.Err()}
		}
		return nil, &Error{Kind: KindLedger, Detail: "balance unavailable", Err: err}
	}
	if !o.ledger.HasEnough(in.UserID, cost) {
		return nil, &Error{Kind: KindInsufficientBalance, Detail: fmt.Sprintf("%d coins required", cost)}
	}

	notify(StateGeneratingFace)
	faceReq := image.Request{
		Prompt:     image.BuildFacePrompt(in.Attributes),
		NumSamples: image.FaceSamples,
	}
	face, err := o.stage(ctx, StageFace, o.endpoints.Face, faceReq, o.faceTimeout, log)
	if err != nil {
		return nil, err
	}
	out := &Result{Mode: in.Mode, Face: face, Cost: cost}

	if in.Mode == ModeFaceBody {
		notify(StateGeneratingBody)
		bodyReq := image.Request{
			Prompt:         image.BuildBodyPrompt(in.Attributes),
			NumSamples:     image.BodySamples,
			SourceImageURL: face.PrimaryURL(),
		}
		body, err := o.stage(ctx, StageBody, o.endpoints.Body, bodyReq, o.bodyTimeout, log)
		if err != nil {
			return nil, err
		}
		out.Body = &body
	}

	balance, err := o.ledger.Debit(ctx, in.UserID, cost)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, &Error{Kind: KindInsufficientBalance, Detail: "balance changed during generation", Err: err}
		}
		if ctx.Err() != nil {
			return nil, &Error{Kind: KindCancelled, Err: ctx.Err()}
		}
		return nil, &Error{Kind: KindLedger, Detail: "debit failed", Err: err}
	}
	out.Balance = balance
	return out, nil
}

// stage calls one endpoint under the retry policy. Every attempt has its own
// deadline; running past it counts as a failed attempt.
func (o *Orchestrator) stage(ctx context.Context, stage Stage, ep image.Endpoint, req image.Request, timeout time.Duration, log *infra.Logger) (domain.GenerationResult, error) {
	stop := func(err error) bool {
		var ae *attemptError
		return errors.As(err, &ae) && ae.kind == KindCancelled
	}
	res, attempts, err := retry(ctx, o.retry, o.sleep, stop, func(ctx context.Context, attempt int) (domain.GenerationResult, error) {
		res, err := o.attempt(ctx, ep, req, timeout)
		outcome := "ok"
		if err != nil {
			var ae *attemptError
			if errors.As(err, &ae) {
				outcome = string(ae.kind)
			}
			log.Warn().Err(err).Str("stage", string(stage)).Int("attempt", attempt).Msg("generation attempt failed")
		}
		if o.metrics != nil {
			o.metrics.ObserveAttempt(string(stage), outcome)
		}
		return res, err
	})
	if err == nil {
		return res, nil
	}

	var ae *attemptError
	if errors.As(err, &ae) {
		return domain.GenerationResult{}, &Error{Kind: ae.kind, Stage: stage, Detail: ae.detail, Attempts: attempts, Err: ae.err}
	}
	// retry itself only fails with a context error.
	return domain.GenerationResult{}, &Error{Kind: KindCancelled, Stage: stage, Attempts: attempts, Err: err}
}

func (o *Orchestrator) attempt(ctx context.Context, ep image.Endpoint, req image.Request, timeout time.Duration) (domain.GenerationResult, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := ep.Generate(actx, req)
	if err != nil {
		return domain.GenerationResult{}, classify(ctx, actx, err, timeout)
	}
	res, err := image.NormalizeJSON(raw, req.Prompt)
	if err != nil {
		return domain.GenerationResult{}, &attemptError{kind: KindInvalidResponse, detail: "response is not valid JSON", err: err}
	}
	if !res.HasImage() {
		return domain.GenerationResult{}, &attemptError{kind: KindInvalidResponse, detail: "response contained no image"}
	}
	return res, nil
}

func classify(parent, attemptCtx context.Context, err error, timeout time.Duration) error {
	if parent.Err() != nil {
		return &attemptError{kind: KindCancelled, detail: "request cancelled", err: parent.Err()}
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &attemptError{kind: KindNetwork, detail: fmt.Sprintf("attempt timed out after %s", timeout), err: err}
	}
	var upstream *image.UpstreamError
	if errors.As(err, &upstream) {
		return &attemptError{kind: KindUpstream, detail: upstream.Detail, err: err}
	}
	return &attemptError{kind: KindNetwork, detail: err.Error(), err: err}
}

func (o *Orchestrator) observeGeneration(mode Mode, outcome string, took time.Duration) {
	if o.metrics != nil {
		o.metrics.ObserveGeneration(string(mode), outcome, took)
	}
}
