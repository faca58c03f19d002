package operations

import (
	"errors"
	"fmt"

	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/ruteri/shamir-custody/verify"
)

// Stage codes produced by the lifecycle itself.
const (
	CodeDryRunActive         = "DRY_RUN_ACTIVE"
	CodeSplitFailed          = "SPLIT_FAILED"
	CodeReconstructionFailed = "RECONSTRUCTION_FAILED"
	CodeStageOutOfOrder      = "STAGE_OUT_OF_ORDER"
)

// Stage is a step of the forward-only pipeline.
type Stage int

const (
	StageNone Stage = iota
	StageInitialize
	StageSplit
	StageVerify
	StageReconstruct
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageInitialize:
		return "initialize"
	case StageSplit:
		return "split"
	case StageVerify:
		return "verify"
	case StageReconstruct:
		return "reconstruct"
	default:
		return "unknown"
	}
}

// MarshalText lets stages appear by name in JSON output.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result describes the outcome of a single stage.
type Result struct {
	Stage     Stage  `json:"stage"`
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`

	// Err is the typed error behind a failure, if any.
	Err error `json:"-"`
}

// Error makes a failed Result usable as an error value.
func (r Result) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s failed (%s): %v", r.Stage, r.ErrorCode, r.Err)
	}
	return fmt.Sprintf("%s failed (%s): %s", r.Stage, r.ErrorCode, r.Message)
}

func (r Result) Unwrap() error { return r.Err }

// AsError returns nil for a successful result and the result itself
// otherwise.
func (r Result) AsError() error {
	if r.Success {
		return nil
	}
	return r
}

// Splitter and Reconstructor are the cryptographic operations the pipeline
// drives; shamir.SplitBytes and shamir.CombineBytes satisfy them.
type (
	Splitter      func(secret []byte, threshold, n int) (map[int][]byte, error)
	Reconstructor func(payloads map[int][]byte) ([]byte, error)
)

// CollectedShare is a decoded share ready for the gate.
type CollectedShare struct {
	verify.Share
	Payload []byte
}

// Pipeline is the explicit lifecycle state. Transitions are methods on a
// value receiver: they return the next state and never mutate the receiver.
type Pipeline struct {
	Context OperationContext
	Stage   Stage
	Halted  bool
	Last    Result
}

// Initialize validates ctx and returns the initial pipeline state.
func Initialize(ctx OperationContext) (Pipeline, Result) {
	p := Pipeline{Context: ctx, Stage: StageInitialize}

	if code := ctx.Validate(); code != "" {
		res := Result{
			Stage:     StageInitialize,
			ErrorCode: code,
			Message:   "Context validation failed",
			Err:       &interfaces.ValidationError{Code: code, Err: errors.New("invalid operation context")},
		}
		return p.halt(res), res
	}

	res := Result{Stage: StageInitialize, Success: true, Message: "Context initialized successfully"}
	p.Last = res
	return p, res
}

// Split runs the SPLIT stage. In dry-run mode it returns DRY_RUN_ACTIVE
// without calling splitter.
func (p Pipeline) Split(secret []byte, splitter Splitter) (Pipeline, Result, map[int][]byte) {
	if res, ok := p.guard(StageSplit); !ok {
		return p.halt(res), res, nil
	}

	if p.Context.DryRun {
		res := Result{Stage: StageSplit, ErrorCode: CodeDryRunActive, Message: "Split skipped due to dry-run mode"}
		return p.halt(res), res, nil
	}

	payloads, err := splitter(secret, p.Context.Threshold, p.Context.TotalShares)
	if err != nil {
		res := Result{Stage: StageSplit, ErrorCode: CodeSplitFailed, Message: "Secret splitting failed", Err: err}
		return p.halt(res), res, nil
	}

	res := Result{Stage: StageSplit, Success: true, Message: "Secret split successfully"}
	return p.advance(res), res, payloads
}

// Verify runs the verification gate against the pipeline's context.
func (p Pipeline) Verify(shares []CollectedShare) (Pipeline, Result) {
	if res, ok := p.guard(StageVerify); !ok {
		return p.halt(res), res
	}
	return p.runGate(shares)
}

// runGate checks shares without consulting the stage order.
func (p Pipeline) runGate(shares []CollectedShare) (Pipeline, Result) {
	list := make([]verify.Share, len(shares))
	for i, s := range shares {
		list[i] = s.Share
	}

	if err := verify.Check(list, p.Context.VerifyContext()); err != nil {
		res := Result{Stage: StageVerify, ErrorCode: interfaces.ErrorCode(err), Message: "Share verification failed", Err: err}
		return p.halt(res), res
	}

	res := Result{Stage: StageVerify, Success: true, Message: "Shares verified successfully"}
	return p.advance(res), res
}

// Reconstruct always re-runs verification before calling reconstructor, so
// it may follow either INITIALIZE or VERIFY.
func (p Pipeline) Reconstruct(shares []CollectedShare, reconstructor Reconstructor) (Pipeline, Result, []byte) {
	if res, ok := p.guard(StageReconstruct); !ok {
		return p.halt(res), res, nil
	}

	next, res := p.runGate(shares)
	if !res.Success {
		return next, res, nil
	}

	payloads := make(map[int][]byte, len(shares))
	for _, s := range shares {
		payloads[s.ID] = s.Payload
	}

	secret, err := reconstructor(payloads)
	if err != nil {
		res := Result{Stage: StageReconstruct, ErrorCode: CodeReconstructionFailed, Message: "Secret reconstruction failed", Err: err}
		return next.halt(res), res, nil
	}

	res = Result{Stage: StageReconstruct, Success: true, Message: "Secret reconstructed successfully"}
	return next.advance(res), res, secret
}

// guard rejects transitions on a halted pipeline and any transition that is
// not strictly forward.
func (p Pipeline) guard(target Stage) (Result, bool) {
	if p.Halted {
		return p.Last, false
	}
	if p.Stage == StageNone || target <= p.Stage {
		return Result{
			Stage:     target,
			ErrorCode: CodeStageOutOfOrder,
			Message:   fmt.Sprintf("cannot enter %s after %s", target, p.Stage),
		}, false
	}
	return Result{}, true
}

func (p Pipeline) advance(res Result) Pipeline {
	p.Stage = res.Stage
	p.Last = res
	return p
}

func (p Pipeline) halt(res Result) Pipeline {
	p.Halted = true
	p.Last = res
	return p
}
