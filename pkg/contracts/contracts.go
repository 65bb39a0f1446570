// Package contracts implements policy backed validation contracts.
// Policies are written in rego and evaluated per entity; a rejected
// entity is dropped by the caller without failing the operation that
// produced it.
package contracts

import (
	"context"
	"fmt"
	"io"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("entity-store/contracts")

// InputBuilder turns an entity into the input document the policy is
// evaluated against.
type InputBuilder func(e any) map[string]any

type policyContract struct {
	preparedQuery rego.PreparedEvalQuery
	describe      InputBuilder
}

// WithInputBuilder overrides how entities are described to the
// policy.
func WithInputBuilder(describe InputBuilder) func(*policyContract) {
	return func(c *policyContract) {
		c.describe = describe
	}
}

// NewPolicyContract compiles the rego module read from policies into
// a contract. The module is expected to define
// data.entitystore.contract.allow.
func NewPolicyContract(ctx context.Context, policies io.Reader, options ...func(*policyContract)) (store.Contract, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read contract policies: %s", err.Error())
	}

	impl := &policyContract{describe: describeEntity}

	for _, option := range options {
		option(impl)
	}

	impl.preparedQuery, err = rego.New(
		rego.Query("x = data.entitystore.contract.allow"),
		rego.Module("contract.rego", string(module)),
	).PrepareForEval(ctx)

	if err != nil {
		return nil, err
	}

	return impl, nil
}

func (c *policyContract) Accept(ctx context.Context, e any) bool {
	var err error

	ctx, span := tracer.Start(ctx, "check-contract")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	results, err := c.preparedQuery.Eval(ctx, rego.EvalInput(c.describe(e)))
	if err != nil {
		logging.GetFromContext(ctx).Error("contract eval failed", "err", err.Error())
		return false
	}

	if len(results) == 0 {
		err = fmt.Errorf("contract query could not be satisfied")
		logging.GetFromContext(ctx).Error("contract eval failed", "err", err.Error())
		return false
	}

	allowed, ok := results[0].Bindings["x"].(bool)
	return ok && allowed
}

// describeEntity is the default input builder. It understands records
// and anything that exposes its type and identity the way graph nodes
// do.
func describeEntity(e any) map[string]any {
	input := map[string]any{}

	if r, ok := e.(*entities.Record); ok {
		fields := map[string]any{}
		r.ForEachField(func(name string, value entities.Lazy[any]) {
			if v, requested := value.Value(); requested {
				fields[name] = v
			}
		})

		return map[string]any{
			"type":   r.RecordType(),
			"id":     r.Identifier().Key(),
			"fields": fields,
		}
	}

	if t, ok := e.(interface{ EntityType() string }); ok {
		input["type"] = t.EntityType()
	}

	if i, ok := e.(interface{ Identity() entities.Identifier }); ok {
		input["id"] = i.Identity().Key()
	}

	return input
}
