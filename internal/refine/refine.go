package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/audit"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/bounds"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/delta"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/gateway"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/prompt"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/validate"
)

// #region interfaces
// Refiner turns a prompt payload into a parsed candidate. *gateway.Gateway satisfies it.
type Refiner interface {
	Refine(ctx context.Context, payload string) (gateway.Candidate, error)
	ModelName() string
}

// Recorder persists a finished refinement. *audit.Log satisfies it.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) (string, error)
}

// #endregion interfaces

// #region orchestrator
// Options carries the optional collaborators of an Orchestrator. Zero values get defaults.
type Options struct {
	Validator   *validate.Validator
	Analyzer    *delta.Analyzer
	GenderRules params.GenderRules
	Recorder    Recorder
	Logger      *zap.Logger
	Now         func() time.Time
}

// Orchestrator runs one refinement end to end: bounds, prompt, gateway, validation,
// deltas and audit. It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	provider  bounds.Provider
	gateway   Refiner
	validator *validate.Validator
	analyzer  *delta.Analyzer
	rules     params.GenderRules
	recorder  Recorder
	logger    *zap.Logger
	now       func() time.Time
	check     *validator.Validate
}

// NewOrchestrator wires the refinement pipeline.
func NewOrchestrator(provider bounds.Provider, gw Refiner, opts Options) *Orchestrator {
	o := &Orchestrator{
		provider:  provider,
		gateway:   gw,
		validator: opts.Validator,
		analyzer:  opts.Analyzer,
		rules:     opts.GenderRules,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		now:       opts.Now,
		check:     newRequestValidator(),
	}
	if o.validator == nil {
		o.validator = validate.New(validate.DefaultConfig())
	}
	if o.analyzer == nil {
		o.analyzer = delta.NewAnalyzer(delta.DefaultConfig())
	}
	if o.rules == nil {
		o.rules = params.DefaultGenderRules()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("refine")
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// #endregion orchestrator

// #region refine
// Refine runs the pipeline for req. Malformed requests return *RequestShapeError and
// missing bounds return *bounds.BoundsUnavailableError. Every gateway failure degrades
// to a fallback response carrying the blend unmodified.
func (o *Orchestrator) Refine(ctx context.Context, req Request) (Response, error) {
	start := o.now()

	gender, err := o.checkRequest(req)
	if err != nil {
		return Response{}, err
	}

	b, err := o.provider.Bounds(ctx, gender, req.BoundsVersion)
	if err != nil {
		if !errors.Is(err, bounds.ErrBoundsUnavailable) {
			err = &bounds.BoundsUnavailableError{Gender: gender, Version: req.BoundsVersion, Err: err}
		}
		return Response{}, err
	}
	k5 := overlayK5(b.K5, req.K5)
	constraints := params.DeriveConstraints(gender, b.DB, o.rules)

	payload := prompt.Build(prompt.Input{
		BlendShape:     req.BlendShape,
		BlendLimb:      req.BlendLimb,
		K5:             k5,
		DB:             b.DB,
		Constraints:    constraints,
		Classification: *req.Classification,
		Ratios:         req.PhotoRatios,
		Measurements:   req.Measurements,
	})

	var resp Response
	var trail params.AuditTrail
	candidate, err := o.gateway.Refine(ctx, payload)
	if err != nil {
		resp = o.fallback(req, err)
		o.logger.Warn("gateway failed, passing blend through",
			zap.String("scan_id", req.ScanID),
			zap.String("reason", resp.FallbackReason),
			zap.Error(err))
	} else {
		res, err := o.validator.Validate(validate.Input{
			Shape:          candidate.Shape,
			Limb:           candidate.Limb,
			K5:             k5,
			DB:             b.DB,
			Constraints:    constraints,
			Classification: *req.Classification,
		})
		if err != nil {
			return Response{}, fmt.Errorf("refine %s: %w", req.ScanID, err)
		}
		trail = res.Audit
		resp = o.assemble(req, candidate, res)
	}

	resp.BoundsVersion = b.Version
	resp.ProcessingTimeMS = o.now().Sub(start).Milliseconds()
	resp.RefinementID = o.record(ctx, req, gender, resp, trail)

	o.logger.Info("refinement complete",
		zap.String("scan_id", req.ScanID),
		zap.Bool("ai_refine", resp.AIRefine),
		zap.Int("out_of_range", resp.OutOfRangeCount),
		zap.Int("active_keys", resp.ActiveKeys),
		zap.Int64("processing_ms", resp.ProcessingTimeMS))
	return resp, nil
}

// checkRequest validates the struct tags and the gender label.
func (o *Orchestrator) checkRequest(req Request) (params.Gender, error) {
	if err := o.check.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return "", &RequestShapeError{Field: fe.Field(), Reason: "failed " + fe.Tag()}
		}
		return "", &RequestShapeError{Field: "request", Reason: err.Error()}
	}
	gender, err := params.ParseGender(req.Gender)
	if err != nil {
		return "", &RequestShapeError{Field: "gender", Reason: err.Error()}
	}
	for _, g := range []struct {
		name string
		v    params.Vector
	}{{"blend_shape", req.BlendShape}, {"blend_limb", req.BlendLimb}} {
		for _, k := range g.v.SortedKeys() {
			if !params.IsFinite(g.v[k]) {
				return "", &RequestShapeError{Field: g.name + "." + k, Reason: "non-finite value"}
			}
		}
	}
	return gender, nil
}

// #endregion refine

// #region assemble
func (o *Orchestrator) assemble(req Request, c gateway.Candidate, res validate.Result) Response {
	a := res.Audit
	report := o.analyzer.Analyze(
		delta.Pair{Shape: req.BlendShape, Limb: req.BlendLimb},
		delta.Pair{Shape: res.Shape, Limb: res.Limb},
	)
	return Response{
		FinalShape:           res.Shape,
		FinalLimb:            res.Limb,
		AIRefine:             true,
		ClampedKeys:          nonNil(a.ClampedKeys()),
		EnvelopeViolations:   nonNil(a.KeysBySource(params.SourceEnvelope)),
		DBViolations:         nonNil(a.KeysBySource(params.SourceDB)),
		GenderViolations:     nonNil(a.KeysBySource(params.SourceGender)),
		CoherenceCorrections: nonNil(a.KeysBySource(params.SourceCoherence)),
		MissingKeysAdded:     nonNil(a.MissingKeysAdded),
		ExtraKeysRemoved:     nonNil(a.ExtraKeysRemoved),
		OutOfRangeCount:      a.OutOfRangeCount(),
		EnvelopeExceptions:   nonNilViolations(a.EnvelopeExceptions),
		RefinementDeltas:     report,
		ClampingMetadata:     a.ByPriority(),
		AIConfidence:         c.Confidence,
		AIReasoning:          nonNil(c.Reasoning),
		AIWarnings:           nonNil(c.Warnings),
		AIAdjustments:        nonNil(c.Adjustments),
		ActiveKeys:           o.analyzer.ActiveKeys(res.Shape, res.Limb),
	}
}

// fallback returns the blend unchanged. No validation runs, so every audit list is empty.
func (o *Orchestrator) fallback(req Request, err error) Response {
	reason := string(gateway.KindTransport)
	if kind, ok := gateway.KindOf(err); ok {
		reason = string(kind)
	}
	shape, limb := req.BlendShape.Clone(), req.BlendLimb.Clone()
	return Response{
		FinalShape:           shape,
		FinalLimb:            limb,
		AIRefine:             false,
		FallbackReason:       reason,
		ClampedKeys:          []string{},
		EnvelopeViolations:   []string{},
		DBViolations:         []string{},
		GenderViolations:     []string{},
		CoherenceCorrections: []string{},
		MissingKeysAdded:     []string{},
		ExtraKeysRemoved:     []string{},
		EnvelopeExceptions:   []params.Violation{},
		RefinementDeltas:     delta.Report{Shape: []delta.Delta{}, Limb: []delta.Delta{}},
		ClampingMetadata:     map[string][]params.Violation{},
		AIReasoning:          []string{},
		AIWarnings:           []string{},
		AIAdjustments:        []string{},
		ActiveKeys:           o.analyzer.ActiveKeys(shape, limb),
	}
}

// overlayK5 copies the provider envelope and replaces ranges supplied by the request.
func overlayK5(base params.BoundSet, over *K5Overlay) params.BoundSet {
	out := params.BoundSet{Shape: params.Envelope{}, Limb: params.Envelope{}}
	for k, r := range base.Shape {
		out.Shape[k] = r
	}
	for k, r := range base.Limb {
		out.Limb[k] = r
	}
	if over == nil {
		return out
	}
	for k, r := range over.Shape {
		out.Shape[k] = r
	}
	for k, r := range over.Limb {
		out.Limb[k] = r
	}
	return out
}

// #endregion assemble

// #region record
// record writes the audit row. Failures are logged and never fail the request.
func (o *Orchestrator) record(ctx context.Context, req Request, gender params.Gender, resp Response, trail params.AuditTrail) string {
	if o.recorder == nil {
		return ""
	}
	auditJSON, err := json.Marshal(trail)
	if err != nil {
		o.logger.Warn("marshal audit trail", zap.Error(err))
		auditJSON = nil
	}
	deltasJSON, err := json.Marshal(resp.RefinementDeltas)
	if err != nil {
		o.logger.Warn("marshal deltas", zap.Error(err))
		deltasJSON = nil
	}
	id, err := o.recorder.Record(context.WithoutCancel(ctx), audit.Entry{
		ScanID:           req.ScanID,
		UserID:           req.UserID,
		Gender:           string(gender),
		BoundsVersion:    resp.BoundsVersion,
		Model:            o.gateway.ModelName(),
		AIRefine:         resp.AIRefine,
		FallbackReason:   resp.FallbackReason,
		Confidence:       resp.AIConfidence,
		OutOfRangeCount:  resp.OutOfRangeCount,
		AuditJSON:        auditJSON,
		DeltasJSON:       deltasJSON,
		ProcessingMillis: resp.ProcessingTimeMS,
		CreatedAt:        o.now().UTC(),
	})
	if err != nil {
		o.logger.Error("record refinement", zap.String("scan_id", req.ScanID), zap.Error(err))
		return ""
	}
	return id
}

// #endregion record

// #region helpers
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilViolations(v []params.Violation) []params.Violation {
	if v == nil {
		return []params.Violation{}
	}
	return v
}

// #endregion helpers
